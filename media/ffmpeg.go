package media

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrToolMissing 表示 ffmpeg/ffprobe 不可用。
var ErrToolMissing = errors.New("ffmpeg 不可用")

const thumbnailTimeout = 15 * time.Second

// FFmpeg 调用外部 ffmpeg/ffprobe 提取视频缩略图与音频时长。
type FFmpeg struct {
	bin   string
	probe string
	log   *zap.Logger
}

// NewFFmpeg 在 PATH 中查找可执行文件，找不到时对应功能返回 ErrToolMissing。
func NewFFmpeg(bin, probe string, log *zap.Logger) *FFmpeg {
	if log == nil {
		log = zap.NewNop()
	}
	f := &FFmpeg{log: log}
	if p, err := exec.LookPath(nonBlank(bin, "ffmpeg")); err == nil {
		f.bin = p
	} else {
		log.Warn("未找到 FFmpeg，视频将显示为文字占位", zap.String("bin", bin))
	}
	if p, err := exec.LookPath(nonBlank(probe, "ffprobe")); err == nil {
		f.probe = p
	} else {
		log.Warn("未找到 ffprobe，语音时长将不显示", zap.String("bin", probe))
	}
	return f
}

// Thumbnail 截取视频首帧为 <video>_thumb.jpg，首帧失败时改取第 1 秒。
func (f *FFmpeg) Thumbnail(ctx context.Context, video string) (string, error) {
	if f == nil || f.bin == "" {
		return "", ErrToolMissing
	}
	out := video + "_thumb.jpg"
	if nonEmpty(out) {
		return out, nil
	}
	var lastErr error
	for _, seek := range []string{"00:00:00", "00:00:01"} {
		cctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
		cmd := exec.CommandContext(cctx, f.bin, "-y", "-i", video, "-ss", seek,
			"-vframes", "1", "-f", "image2", "-q:v", "2", out)
		output, err := cmd.CombinedOutput()
		cancel()
		if err == nil && nonEmpty(out) {
			return out, nil
		}
		if err == nil {
			err = errors.New("输出为空")
		}
		lastErr = fmt.Errorf("FFmpeg 截取 %s 失败: %w, output: %s", seek, err, tail(output, 200))
		f.log.Debug("提取视频缩略图失败", zap.String("video", video), zap.String("seek", seek), zap.Error(err))
	}
	return "", lastErr
}

// ToWAV 把 amr/silk 等语音转成 16kHz 单声道 wav，输出 <src>.wav，已存在时直接复用。
func (f *FFmpeg) ToWAV(ctx context.Context, src string) (string, error) {
	if f == nil || f.bin == "" {
		return "", ErrToolMissing
	}
	out := src + ".wav"
	if nonEmpty(out) {
		return out, nil
	}
	cctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()
	output, err := exec.CommandContext(cctx, f.bin, "-y", "-i", src, "-ar", "16000", "-ac", "1", out).CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("FFmpeg 转换 %s 失败: %w, output: %s", src, err, tail(output, 200))
	}
	if !nonEmpty(out) {
		return "", fmt.Errorf("FFmpeg 转换 %s 输出为空", src)
	}
	return out, nil
}

// Duration 返回音频时长。
func (f *FFmpeg) Duration(ctx context.Context, path string) (time.Duration, error) {
	if f == nil || f.probe == "" {
		return 0, ErrToolMissing
	}
	cctx, cancel := context.WithTimeout(ctx, thumbnailTimeout)
	defer cancel()
	out, err := exec.CommandContext(cctx, f.probe, "-v", "error", "-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1", path).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s 失败: %w", path, err)
	}
	return parseSeconds(string(out))
}

func parseSeconds(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || secs < 0 {
		return 0, fmt.Errorf("无法解析时长 %q", strings.TrimSpace(s))
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func nonBlank(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func tail(b []byte, n int) string {
	if len(b) > n {
		b = b[len(b)-n:]
	}
	return strings.TrimSpace(string(b))
}
