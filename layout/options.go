package layout

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/media"
	"github.com/ByLCY/papyrus-chat/metrics"
	"github.com/ByLCY/papyrus-chat/speech"
)

// BuildOptions 配置布局阶段所需的依赖。除 Theme 与 Measurer 外均可为空，
// 对应能力缺失时消息退化为文字占位。
type BuildOptions struct {
	Theme    *Theme
	Measurer TextMeasurer

	Resolver MediaResolver
	Images   ImagePreparer
	Video    VideoTools
	Speech   speech.Transcriber

	// Avatars 为用户 id 到本地头像文件的映射，缺失时绘制色块头像。
	Avatars map[string]string

	Location   *time.Location
	Title      string // 封面标题，为空时使用主题 meta.title
	SourceName string // 封面副标题中的文件名

	Logger  *zap.Logger
	Metrics *metrics.Recorder
}

// TextMeasurer 返回文本宽度（mm），size 以 pt 为单位。*glyph.Measurer 实现了它。
type TextMeasurer interface {
	Width(text, font string, size float64) float64
}

// MediaResolver 把媒体引用解析为本地文件。*media.Resolver 实现了它。
type MediaResolver interface {
	Resolve(ctx context.Context, req media.Request) (string, error)
}

// ImagePreparer 压缩图片并返回像素尺寸。media.Compressor 实现了它。
type ImagePreparer interface {
	Prepare(path string) (media.Prepared, error)
}

// VideoTools 提供视频缩略图与音频时长。*media.FFmpeg 实现了它。
type VideoTools interface {
	Thumbnail(ctx context.Context, video string) (string, error)
	Duration(ctx context.Context, path string) (time.Duration, error)
}
