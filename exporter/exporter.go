// Package exporter 串联一次完整的导出：加载、预取、排版、渲染、附加书签与缓存清理。
package exporter

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/ByLCY/papyrus-chat/chat"
	"github.com/ByLCY/papyrus-chat/config"
	"github.com/ByLCY/papyrus-chat/fonts"
	"github.com/ByLCY/papyrus-chat/glyph"
	"github.com/ByLCY/papyrus-chat/layout"
	"github.com/ByLCY/papyrus-chat/media"
	"github.com/ByLCY/papyrus-chat/metrics"
	"github.com/ByLCY/papyrus-chat/outline"
	canvasrenderer "github.com/ByLCY/papyrus-chat/renderer/canvas"
	"github.com/ByLCY/papyrus-chat/speech"
)

// Summary 描述一次导出的结果。
type Summary struct {
	Output    string
	Messages  int
	Pages     int
	Bookmarks int
	Prefetch  media.PrefetchStats
	// OutlineKept 非空表示书签附加失败，值为保留下来的文件。
	OutlineKept string
	Swept       bool
}

// Run 执行导出。只有输入错误、配置错误与渲染失败会返回 error；
// 书签附加失败只记录日志，草稿仍然是有效输出。
func Run(ctx context.Context, cfg config.Config, log *zap.Logger) (Summary, error) {
	if log == nil {
		log = zap.NewNop()
	}
	rec := metrics.New()
	defer func() {
		if err := rec.WriteTextfile(cfg.MetricsFile); err != nil {
			log.Warn("写入指标失败", zap.Error(err))
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return Summary{}, err
	}
	msgs, dir, err := load(cfg, loc)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{Output: cfg.Output, Messages: len(msgs)}
	log.Info("聊天记录已加载", zap.String("path", cfg.Transcript), zap.Int("messages", len(msgs)), zap.Int("users", len(dir)))

	theme, err := loadTheme(cfg)
	if err != nil {
		return Summary{}, err
	}

	render := canvasrenderer.NewRenderer(canvasrenderer.Options{Logger: log, Fallback: theme.Fonts.Fallback})
	if err := registerFonts(render, theme, cfg.Fonts, log); err != nil {
		return Summary{}, err
	}
	measurer := glyph.NewMeasurer(render, glyph.Fonts{Emoji: theme.Fonts.Emoji, Default: theme.Fonts.Fallback})

	resolver, err := newResolver(cfg, log, rec)
	if err != nil {
		return Summary{}, err
	}
	ffmpeg := media.NewFFmpeg(cfg.Media.FFmpeg, cfg.Media.FFprobe, log)

	store, err := speech.OpenStore(cfg.Voice.CacheDir, log)
	if err != nil {
		return Summary{}, err
	}
	defer store.Close()

	var transcriber speech.Transcriber
	if cfg.Speech {
		transcriber = speech.NewCachedTranscriber(newTranscriber(ctx, cfg, ffmpeg, log), store, log, rec)
	}

	done := rec.Stage("prefetch")
	summary.Prefetch, err = media.NewPrefetcher(resolver, cfg.Media.Workers, log).Run(ctx, prefetchRequests(msgs, dir, cfg.Avatars))
	done()
	if err != nil {
		return summary, err
	}
	avatars := map[string]string{}
	if cfg.Avatars {
		avatars = resolveAvatars(ctx, resolver, dir)
	}

	composer, err := layout.NewComposer(layout.BuildOptions{
		Theme:    theme,
		Measurer: measurer,
		Resolver: resolver,
		Images: media.Compressor{
			Quality:      cfg.Quality,
			MaxDimension: cfg.Media.MaxDimension,
			OutDir:       compressedDir(cfg),
		},
		Video:      ffmpeg,
		Speech:     transcriber,
		Avatars:    avatars,
		Location:   loc,
		SourceName: filepath.Base(cfg.Transcript),
		Logger:     log,
		Metrics:    rec,
	})
	if err != nil {
		return summary, err
	}
	done = rec.Stage("layout")
	result, err := composer.Compose(ctx, msgs, dir)
	done()
	if err != nil {
		return summary, fmt.Errorf("排版失败: %w", err)
	}
	summary.Pages = len(result.Pages)
	summary.Bookmarks = len(result.Bookmarks)

	if err := layout.WriteDebugJSON(result, cfg.LayoutJSON); err != nil {
		log.Warn("写入排版调试文件失败", zap.String("path", cfg.LayoutJSON), zap.Error(err))
	}

	done = rec.Stage("render")
	draft, err := render.Render(ctx, result, cfg.Output)
	done()
	if err != nil {
		return summary, fmt.Errorf("渲染 PDF 失败: %w", err)
	}

	done = rec.Stage("outline")
	_, err = outline.New(log).Attach(ctx, draft, result.Bookmarks, cfg.Output)
	done()
	var attachErr *outline.AttachError
	if errors.As(err, &attachErr) {
		summary.OutlineKept = attachErr.Kept
		log.Warn("书签未能附加，保留无书签的 PDF", zap.String("stage", attachErr.Stage), zap.String("kept", attachErr.Kept), zap.Error(attachErr.Err))
	} else if err != nil {
		return summary, err
	}

	summary.Swept = sweepCaches(cfg, store, time.Now(), log)
	log.Info("导出完成",
		zap.String("output", cfg.Output),
		zap.Int("pages", summary.Pages),
		zap.Float64("media_cache_hits", rec.Value("papyrus_media_resolve_total", "cache")),
		zap.Float64("transcripts", rec.Value("papyrus_transcripts_total", "model")),
	)
	return summary, nil
}

func load(cfg config.Config, loc *time.Location) ([]chat.Message, chat.Directory, error) {
	if strings.TrimSpace(cfg.Transcript) == "" {
		return nil, nil, fmt.Errorf("未指定聊天记录文件: %w", chat.ErrEmptyTranscript)
	}
	msgs, err := chat.LoadTranscript(cfg.Transcript, loc)
	if err != nil {
		return nil, nil, err
	}
	var dir chat.Directory
	if cfg.UserFile != "" {
		if dir, err = chat.LoadDirectory(cfg.UserFile); err != nil {
			return nil, nil, err
		}
	}
	return msgs, dir, nil
}

func loadTheme(cfg config.Config) (*layout.Theme, error) {
	var (
		theme *layout.Theme
		err   error
	)
	if cfg.Theme != "" {
		theme, err = layout.LoadTheme(cfg.Theme)
	} else {
		theme, err = layout.DefaultTheme()
	}
	if err != nil {
		return nil, fmt.Errorf("加载主题失败: %w", err)
	}
	if cfg.Layout.PageNumbers {
		theme.PageNumbers = true
	}
	return theme, nil
}

// registerFonts 注册正文、表情与兜底字体。找不到中文字体时正文也使用内置的 Go 字体。
func registerFonts(render *canvasrenderer.Renderer, theme *layout.Theme, fc config.FontConfig, log *zap.Logger) error {
	if err := render.LoadFont(theme.Fonts.Fallback, goregular.TTF); err != nil {
		return err
	}
	primary, err := fonts.Locate(fc.Primary, fonts.SystemPrimary())
	if err == nil {
		err = render.LoadFontFile(theme.Fonts.Primary, primary)
	}
	if err != nil {
		log.Warn("未找到可用的中文字体，中文将无法正常显示，可通过 fonts.primary 指定", zap.Error(err))
		if err := render.LoadFont(theme.Fonts.Primary, goregular.TTF); err != nil {
			return err
		}
	} else {
		log.Info("正文字体", zap.String("path", primary))
	}

	// 表情字体与已注册的字体同名时沿用它
	if theme.Fonts.Emoji == "" || render.HasFont(theme.Fonts.Emoji) {
		return nil
	}
	emoji, err := fonts.Locate(fc.Emoji, fonts.SystemEmoji())
	if err == nil {
		err = render.LoadFontFile(theme.Fonts.Emoji, emoji)
	}
	if err != nil {
		log.Warn("表情字体不可用，表情按正文字体测量", zap.Error(err))
		return nil
	}
	log.Info("表情字体", zap.String("path", emoji))
	return nil
}

func newResolver(cfg config.Config, log *zap.Logger, rec *metrics.Recorder) (*media.Resolver, error) {
	opts := media.ResolverOptions{
		CacheDir: cfg.Media.CacheDir,
		HTTP: media.NewHTTPFetcher(media.HTTPOptions{
			Timeout:    cfg.Media.Timeout,
			UserAgent:  cfg.Media.UserAgent,
			RatePerSec: cfg.Media.RatePerSec,
		}),
		Locator: media.NewLocator(cfg.Media.Root, cfg.Media.MaxIndexed, log),
		Logger:  log,
		Metrics: rec,
	}
	objects, err := media.NewObjectFetcher(media.S3Options{
		Endpoint:  cfg.Media.S3.Endpoint,
		AccessKey: cfg.Media.S3.AccessKey,
		SecretKey: cfg.Media.S3.SecretKey,
		UseSSL:    cfg.Media.S3.UseSSL,
	})
	if err != nil {
		return nil, err
	}
	if objects != nil {
		opts.Objects = objects
	}
	return media.NewResolver(opts)
}

func newTranscriber(ctx context.Context, cfg config.Config, conv speech.Converter, log *zap.Logger) speech.Transcriber {
	if cfg.Voice.Provider != "gemini" {
		log.Warn("不支持的语音识别服务", zap.String("provider", cfg.Voice.Provider))
		return speech.Unavailable("不支持的识别服务 "+cfg.Voice.Provider, nil)
	}
	gem, err := speech.NewGeminiTranscriber(ctx, speech.GeminiOptions{
		APIKey:    cfg.Voice.APIKey,
		Model:     cfg.Voice.Model,
		Timeout:   cfg.Voice.Timeout,
		Converter: conv,
	})
	if err != nil {
		log.Warn("语音识别不可用，语音消息将显示失败原因", zap.Error(err))
		return speech.Unavailable("识别服务不可用", err)
	}
	return gem
}

func isRemote(ref string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}

// prefetchRequests 收集需要下载的远端引用：媒体消息，以及开启时的头像。
func prefetchRequests(msgs []chat.Message, dir chat.Directory, avatars bool) []media.Request {
	var reqs []media.Request
	if avatars {
		for id, u := range dir {
			if isRemote(u.AvatarURL) {
				reqs = append(reqs, media.Request{Ref: u.AvatarURL, Kind: media.KindAvatar, OwnerID: id})
			}
		}
	}
	for _, m := range msgs {
		kind := media.KindOf(m.Type)
		if kind == "" || kind == media.KindFile {
			continue
		}
		if ref := m.MediaRef(); isRemote(ref) {
			reqs = append(reqs, media.Request{Ref: ref, Kind: kind, OwnerID: m.SenderID, MessageID: m.ID})
		}
	}
	return reqs
}

// resolveAvatars 预取之后再次解析，命中缓存。
func resolveAvatars(ctx context.Context, resolver *media.Resolver, dir chat.Directory) map[string]string {
	out := map[string]string{}
	for id, u := range dir {
		if u.AvatarURL == "" {
			continue
		}
		if path, err := resolver.Resolve(ctx, media.Request{Ref: u.AvatarURL, Kind: media.KindAvatar, OwnerID: id}); err == nil {
			out[id] = path
		}
	}
	return out
}

func compressedDir(cfg config.Config) string {
	return filepath.Join(cfg.Media.CacheDir, "compressed")
}

// sweepCaches 按 cron 节奏清理媒体缓存与转写缓存，上次清理时间保存在转写库中。
func sweepCaches(cfg config.Config, store *speech.Store, now time.Time, log *zap.Logger) bool {
	last, err := store.LastSweep()
	if err != nil {
		log.Warn("读取上次清理时间失败", zap.Error(err))
	}
	due, err := media.SweepDue(cfg.Cache.SweepCron, last, now)
	if err != nil || !due {
		return false
	}
	maxBytes, _ := cfg.Cache.MaxSizeBytes()
	policy := media.SweepPolicy{Threshold: cfg.Cache.SweepThreshold, MaxAge: cfg.Cache.MaxAge, MaxBytes: maxBytes}
	for _, dir := range []string{cfg.Media.CacheDir, compressedDir(cfg)} {
		if _, err := media.SweepDir(dir, policy, now, log); err != nil {
			log.Warn("清理媒体缓存失败", zap.String("dir", dir), zap.Error(err))
		}
	}
	if n, err := store.Sweep(cfg.Cache.SweepThreshold, cfg.Cache.MaxAge, now); err != nil {
		log.Warn("清理转写缓存失败", zap.Error(err))
	} else if n > 0 {
		log.Info("清理转写缓存", zap.Int("removed", n))
	}
	if err := store.MarkSweep(now); err != nil {
		log.Warn("记录清理时间失败", zap.Error(err))
	}
	return true
}
