// Package speech 提供语音转文本：识别服务、按音频内容哈希缓存的转写结果，
// 以及语音气泡中的文本格式。
package speech

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrTranscription 所有转写失败都满足 errors.Is(err, ErrTranscription)。
var ErrTranscription = errors.New("语音转写失败")

// Transcriber 把音频文件转写为文本。
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (string, error)
}

// Error 携带可以直接展示给读者的失败原因。
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("语音未能识别: %s: %v", e.Reason, e.Err)
	}
	return "语音未能识别: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrTranscription }

func fail(reason string, err error) error {
	return &Error{Reason: reason, Err: err}
}

// FailureText 语音气泡中代替转写结果的文字。
func FailureText(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return "【语音未能识别：" + se.Reason + "】"
	}
	if err == nil {
		return "【语音未能识别】"
	}
	return "【语音未能识别：" + err.Error() + "】"
}

// DurationLabel 格式化为 m:ss；时长未知时为“语音”。
func DurationLabel(d time.Duration, known bool) string {
	if !known || d < 0 {
		return "语音"
	}
	secs := int(d / time.Second)
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

// BubbleText 语音气泡的完整文本，标题与正文之间换行。
func BubbleText(label, transcript string) string {
	return fmt.Sprintf("📢语音转文本 (%s):\n%s", label, transcript)
}

// Unavailable 返回总是失败的 Transcriber，识别服务无法初始化时使用，
// 语音气泡因此显示失败原因而不是静默退化。
func Unavailable(reason string, err error) Transcriber {
	return unavailable{reason: reason, err: err}
}

type unavailable struct {
	reason string
	err    error
}

func (u unavailable) Transcribe(context.Context, string) (string, error) {
	return "", fail(u.reason, u.err)
}
