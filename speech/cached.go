package speech

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/metrics"
)

// CachedTranscriber 以音频内容哈希缓存转写结果。成功结果写入 Store 跨运行复用，
// 失败只在本次运行内记住，避免对同一段音频反复请求。
type CachedTranscriber struct {
	inner Transcriber
	store *Store
	log   *zap.Logger
	rec   *metrics.Recorder
	now   func() time.Time

	mu     sync.Mutex
	memo   map[string]string
	failed map[string]error
}

// NewCachedTranscriber inner 为空时所有未命中缓存的请求都返回失败；store 为空时只用内存缓存。
func NewCachedTranscriber(inner Transcriber, store *Store, log *zap.Logger, rec *metrics.Recorder) *CachedTranscriber {
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedTranscriber{
		inner:  inner,
		store:  store,
		log:    log,
		rec:    rec,
		now:    time.Now,
		memo:   map[string]string{},
		failed: map[string]error{},
	}
}

func (c *CachedTranscriber) Transcribe(ctx context.Context, audioPath string) (string, error) {
	key, err := ContentKey(audioPath)
	if err != nil {
		return "", fail("文件不存在", err)
	}

	c.mu.Lock()
	if text, ok := c.memo[key]; ok {
		c.mu.Unlock()
		c.rec.Transcript("cache")
		return text, nil
	}
	if prev, ok := c.failed[key]; ok {
		c.mu.Unlock()
		return "", prev
	}
	c.mu.Unlock()

	if c.store != nil {
		text, ok, err := c.store.Get(key)
		if err != nil {
			c.log.Warn("读取转写缓存失败", zap.String("key", key), zap.Error(err))
		} else if ok {
			c.log.Info("从缓存读取转写结果", zap.String("path", audioPath))
			c.remember(key, text, nil)
			c.rec.Transcript("cache")
			return text, nil
		}
	}

	if c.inner == nil {
		err := fail("未启用语音识别", nil)
		c.remember(key, "", err)
		return "", err
	}
	c.log.Info("正在转写音频", zap.String("path", audioPath))
	text, err := c.inner.Transcribe(ctx, audioPath)
	if err == nil && text == "" {
		err = fail("结果为空", nil)
	}
	if err != nil {
		if ctx.Err() == nil {
			c.remember(key, "", err)
		}
		c.rec.Transcript("failed")
		c.log.Warn("语音转写失败", zap.String("path", audioPath), zap.Error(err))
		return "", err
	}

	c.remember(key, text, nil)
	c.rec.Transcript("model")
	if c.store != nil {
		if err := c.store.Put(key, text, c.now()); err != nil {
			c.log.Warn("写入转写缓存失败", zap.String("key", key), zap.Error(err))
		}
	}
	return text, nil
}

func (c *CachedTranscriber) remember(key, text string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.failed[key] = err
		return
	}
	c.memo[key] = text
}
