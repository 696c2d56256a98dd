package chat

// User 用户信息。IsSelf 由消息推导：该 id 发出过任意一条 is_sender 消息即为本人。
type User struct {
	ID        string
	Nickname  string
	Remark    string
	AvatarURL string
	IsSelf    bool
}

// DisplayName 备注优先，其次昵称，最后是原始 id。
func (u *User) DisplayName() string {
	if u == nil {
		return ""
	}
	if u.Remark != "" {
		return u.Remark
	}
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.ID
}

// Directory 以用户 id 为键。
type Directory map[string]*User

// unknownSender 是导出工具对缺失发送者的占位写法。
const unknownSender = "未知"

// SynthesizeDirectory 在没有用户文件时，从消息发送者构造用户表。
func SynthesizeDirectory(msgs []Message) Directory {
	dir := Directory{}
	for _, m := range msgs {
		if m.SenderID == "" || m.SenderID == unknownSender {
			continue
		}
		if _, ok := dir[m.SenderID]; ok {
			continue
		}
		dir[m.SenderID] = &User{ID: m.SenderID, Nickname: m.SenderID}
	}
	return dir
}

// MarkSelf 标记本人账号。
func (d Directory) MarkSelf(msgs []Message) {
	for _, m := range msgs {
		if !m.Outgoing {
			continue
		}
		if u, ok := d[m.SenderID]; ok {
			u.IsSelf = true
		}
	}
}

// Name 返回发送者的展示名，用户表中不存在时退回原始 id。
func (d Directory) Name(id string) string {
	if u, ok := d[id]; ok {
		return u.DisplayName()
	}
	return id
}

// AvatarURLs 返回去重后的头像地址。
func (d Directory) AvatarURLs() []string {
	seen := map[string]struct{}{}
	var out []string
	for _, u := range d {
		if u.AvatarURL == "" {
			continue
		}
		if _, ok := seen[u.AvatarURL]; ok {
			continue
		}
		seen[u.AvatarURL] = struct{}{}
		out = append(out, u.AvatarURL)
	}
	return out
}
