package media

import (
	"path/filepath"
	"strings"

	"github.com/ByLCY/papyrus-chat/chat"
)

// Kind 媒体类别，决定缓存文件名前缀、默认扩展名与目录猜测。
type Kind string

const (
	KindImage  Kind = "image"
	KindVideo  Kind = "video"
	KindVoice  Kind = "voice"
	KindEmoji  Kind = "emoji"
	KindFile   Kind = "file"
	KindAvatar Kind = "avatar"
)

// KindOf 将消息类型映射为媒体类别，非媒体类型返回空串。
func KindOf(t chat.MessageType) Kind {
	switch t {
	case chat.TypeImage:
		return KindImage
	case chat.TypeVideo:
		return KindVideo
	case chat.TypeVoice:
		return KindVoice
	case chat.TypeAnimatedEmoji:
		return KindEmoji
	case chat.TypeFile:
		return KindFile
	}
	return ""
}

func (k Kind) defaultExt() string {
	switch k {
	case KindImage, KindAvatar:
		return ".jpg"
	case KindVideo:
		return ".mp4"
	case KindVoice:
		return ".wav"
	case KindEmoji:
		return ".gif"
	}
	return ""
}

// dirNames 导出工具按类别存放文件的目录名，按优先级排列。
func (k Kind) dirNames() []string {
	switch k {
	case KindImage:
		return []string{"img", "image"}
	case KindVoice:
		return []string{"audio", "voice"}
	case KindVideo:
		return []string{"video"}
	case KindEmoji:
		return []string{"emoji"}
	case KindFile:
		return []string{"file"}
	}
	return nil
}

// storageDirs FileStorage 下对应类别的子目录。
func (k Kind) storageDirs() []string {
	switch k {
	case KindImage:
		return []string{"MsgAttach", "Image"}
	case KindVideo:
		return []string{"MsgAttach", "Video"}
	case KindVoice:
		return []string{"MsgAttach", "Voice"}
	case KindFile:
		return []string{"MsgAttach", "File"}
	}
	return nil
}

// extFor 优先沿用引用本身的扩展名（语音常见 .amr/.silk），否则使用类别默认值。
func (k Kind) extFor(ref string) string {
	if i := strings.IndexAny(ref, "?#"); i >= 0 && isRemote(ref) {
		ref = ref[:i]
	}
	ext := strings.ToLower(filepath.Ext(strings.ReplaceAll(ref, `\`, "/")))
	if len(ext) > 1 && len(ext) <= 6 && ext != ".dat" && !strings.ContainsAny(ext, "/:") {
		return ext
	}
	return k.defaultExt()
}

func isRemote(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func isObject(ref string) bool {
	return strings.HasPrefix(strings.ToLower(ref), "s3://")
}
