package chat

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
)

var (
	// ErrEmptyTranscript 聊天记录为空，属于输入错误。
	ErrEmptyTranscript = errors.New("聊天记录为空")
	// ErrMalformedTranscript 聊天记录无法解析为消息数组。
	ErrMalformedTranscript = errors.New("聊天记录格式错误")
)

// rawMessage 对应导出 JSON 中的一条消息，字段类型在不同导出工具间并不一致。
type rawMessage struct {
	CreateTime flexString `json:"CreateTime"`
	Talker     flexString `json:"talker"`
	TypeName   flexString `json:"type_name"`
	Msg        flexString `json:"msg"`
	Src        flexString `json:"src"`
	ID         flexString `json:"id"`
	IsSender   flexBool   `json:"is_sender"`
}

type rawUser struct {
	Nickname   flexString `json:"nickname"`
	Remark     flexString `json:"remark"`
	HeadImgURL flexString `json:"headImgUrl"`
}

// LoadTranscript 读取并校验聊天记录文件，返回按出现顺序排列的消息。
func LoadTranscript(path string, loc *time.Location) ([]Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取聊天记录 %s 失败: %w", path, err)
	}
	return DecodeTranscript(data, loc)
}

// DecodeTranscript 解析消息数组。空数组返回 ErrEmptyTranscript。
func DecodeTranscript(data []byte, loc *time.Location) ([]Message, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var raws []rawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedTranscript, err)
	}
	if len(raws) == 0 {
		return nil, ErrEmptyTranscript
	}
	out := make([]Message, 0, len(raws))
	for _, raw := range raws {
		out = append(out, raw.toMessage(loc))
	}
	return out, nil
}

func (r rawMessage) toMessage(loc *time.Location) Message {
	created, ok := ParseTimestamp(string(r.CreateTime), loc)
	typeName := strings.TrimSpace(string(r.TypeName))
	msg := Message{
		ID:        strings.TrimSpace(string(r.ID)),
		SenderID:  strings.TrimSpace(string(r.Talker)),
		RawTime:   string(r.CreateTime),
		CreatedAt: created,
		TimeKnown: ok,
		Type:      ParseType(typeName),
		Outgoing:  bool(r.IsSender),
	}
	body := string(r.Msg)
	ref := strings.TrimSpace(string(r.Src))
	switch msg.Type {
	case TypeText:
		msg.Content = Text{Body: body}
	case TypeImage, TypeVideo, TypeVoice, TypeAnimatedEmoji:
		msg.Content = Media{Ref: ref, Caption: body}
	case TypeFile:
		msg.Content = File{Name: strings.TrimSpace(body), Ref: ref}
	case TypeSystemNotice:
		msg.Content = Notice{Text: body}
	default:
		if typeName == "" {
			typeName = "未知"
		}
		msg.Content = Unknown{TypeName: typeName, Body: body}
	}
	return msg
}

// LoadDirectory 读取 id → 用户信息 的 JSON 对象。
func LoadDirectory(path string) (Directory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取用户文件 %s 失败: %w", path, err)
	}
	return DecodeDirectory(data)
}

// DecodeDirectory 解析用户 JSON 对象。
func DecodeDirectory(data []byte) (Directory, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	var raws map[string]rawUser
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("用户文件格式错误: %w", err)
	}
	dir := make(Directory, len(raws))
	for id, u := range raws {
		dir[id] = &User{
			ID:        id,
			Nickname:  strings.TrimSpace(string(u.Nickname)),
			Remark:    strings.TrimSpace(string(u.Remark)),
			AvatarURL: strings.TrimSpace(string(u.HeadImgURL)),
		}
	}
	return dir, nil
}

// flexString 接受字符串、数字、布尔与 null。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		*f = ""
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case b[0] == '{' || b[0] == '[':
		return fmt.Errorf("期望标量值，得到 %s", b)
	default:
		*f = flexString(b)
	}
	return nil
}

// flexBool 接受 0/1、true/false 以及它们的字符串形式。
type flexBool bool

func (f *flexBool) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return err
	}
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "", "0", "false", "0.0":
		*f = false
	default:
		*f = true
	}
	return nil
}
