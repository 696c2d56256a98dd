package chat

import (
	"strings"
	"time"
)

// MessageType 为消息类型的判别标签，在加载阶段由 type_name 确定。
type MessageType int

const (
	TypeText MessageType = iota
	TypeImage
	TypeVideo
	TypeVoice
	TypeAnimatedEmoji
	TypeFile
	TypeSystemNotice
	TypeOther
)

// String 返回用于日志与指标标签的英文名。
func (t MessageType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeImage:
		return "image"
	case TypeVideo:
		return "video"
	case TypeVoice:
		return "voice"
	case TypeAnimatedEmoji:
		return "emoji"
	case TypeFile:
		return "file"
	case TypeSystemNotice:
		return "notice"
	default:
		return "other"
	}
}

// IsMedia 表示该类型的内容需要经过媒体解析。
func (t MessageType) IsMedia() bool {
	switch t {
	case TypeImage, TypeVideo, TypeVoice, TypeAnimatedEmoji:
		return true
	}
	return false
}

// ParseType 将导出文件中的 type_name 映射为 MessageType。
func ParseType(name string) MessageType {
	name = strings.TrimSpace(name)
	switch name {
	case "文本":
		return TypeText
	case "图片":
		return TypeImage
	case "视频":
		return TypeVideo
	case "语音":
		return TypeVoice
	case "动画表情":
		return TypeAnimatedEmoji
	case "系统通知":
		return TypeSystemNotice
	}
	if strings.Contains(name, "文件") {
		return TypeFile
	}
	return TypeOther
}

// Content 是按消息类型区分的载荷，具体类型为 Text、Media、File、Notice 或 Unknown。
type Content interface {
	isContent()
}

// Text 普通文本消息。
type Text struct {
	Body string
}

// Media 图片、视频、语音与动画表情共用的载荷。
type Media struct {
	Ref     string // src 字段，可能是 URL、相对路径或存储布局中的文件名
	Caption string // msg 字段，通常为空或是平台生成的描述
}

// File 文件消息。
type File struct {
	Name string
	Ref  string
}

// Notice 系统通知。
type Notice struct {
	Text string
}

// Unknown 未识别类型，保留原始类型名以便展示。
type Unknown struct {
	TypeName string
	Body     string
}

func (Text) isContent()    {}
func (Media) isContent()   {}
func (File) isContent()    {}
func (Notice) isContent()  {}
func (Unknown) isContent() {}

// Message 是加载后不可变的一条聊天记录。
type Message struct {
	ID        string
	SenderID  string
	RawTime   string
	CreatedAt time.Time
	// TimeKnown 为 false 表示时间戳无法解析，CreatedAt 此时为 Unix 0。
	TimeKnown bool
	Type      MessageType
	Outgoing  bool
	Content   Content
}

// MediaRef 返回媒体或文件引用，其他类型返回空串。
func (m Message) MediaRef() string {
	switch c := m.Content.(type) {
	case Media:
		return c.Ref
	case File:
		return c.Ref
	}
	return ""
}

// Body 返回消息主体文本。
func (m Message) Body() string {
	switch c := m.Content.(type) {
	case Text:
		return c.Body
	case Media:
		return c.Caption
	case File:
		return c.Name
	case Notice:
		return c.Text
	case Unknown:
		return c.Body
	}
	return ""
}
