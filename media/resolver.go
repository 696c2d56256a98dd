package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/ByLCY/papyrus-chat/metrics"
)

// ErrNotFound 表示本地与远端都找不到该媒体，调用方应改用文字占位。
var ErrNotFound = errors.New("媒体文件未找到")

// Fetcher 将远端引用下载到 dst。
type Fetcher interface {
	Fetch(ctx context.Context, ref string, kind Kind, dst string) error
}

// Request 描述一次媒体解析。
type Request struct {
	Ref       string
	Kind      Kind
	OwnerID   string // 消息发送者，用于拼接按账号存放的目录
	MessageID string
}

// Resolver 把消息中的媒体引用解析为本地可渲染的缓存文件。
// 同一缓存目标的并发请求会被合并，远端失败在本次运行内只尝试一次。
type Resolver struct {
	cacheDir string
	http     Fetcher
	objects  Fetcher
	locator  *Locator
	log      *zap.Logger
	rec      *metrics.Recorder

	group  singleflight.Group
	mu     sync.Mutex
	failed map[string]error
}

// ResolverOptions 构造参数。HTTP/Objects/Locator 可为空，对应来源即不可用。
type ResolverOptions struct {
	CacheDir string
	HTTP     Fetcher
	Objects  Fetcher
	Locator  *Locator
	Logger   *zap.Logger
	Metrics  *metrics.Recorder
}

// NewResolver 创建解析器并确保缓存目录存在。
func NewResolver(opts ResolverOptions) (*Resolver, error) {
	if opts.CacheDir == "" {
		return nil, fmt.Errorf("媒体缓存目录不能为空")
	}
	if err := os.MkdirAll(opts.CacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建媒体缓存目录失败: %w", err)
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Resolver{
		cacheDir: opts.CacheDir,
		http:     opts.HTTP,
		objects:  opts.Objects,
		locator:  opts.Locator,
		log:      log,
		rec:      opts.Metrics,
		failed:   map[string]error{},
	}, nil
}

// CachePath 返回请求对应的确定性缓存路径：{kind}_{id}{ext}，
// id 为消息 id，缺失时为引用的 xxhash。
func (r *Resolver) CachePath(req Request) string {
	id := sanitizeID(req.MessageID)
	if id == "" {
		id = strconv.FormatUint(xxhash.Sum64String(req.Ref), 16)
	}
	return filepath.Join(r.cacheDir, fmt.Sprintf("%s_%s%s", req.Kind, id, req.Kind.extFor(req.Ref)))
}

// Resolve 返回本地路径；找不到时返回 ErrNotFound。
func (r *Resolver) Resolve(ctx context.Context, req Request) (string, error) {
	if strings.TrimSpace(req.Ref) == "" {
		return "", fmt.Errorf("%w: %s 引用为空", ErrNotFound, req.Kind)
	}
	dst := r.CachePath(req)
	if nonEmpty(dst) {
		r.rec.MediaResult("cache")
		if req.Kind == KindVoice {
			r.log.Info("使用缓存的语音文件", zap.String("path", dst))
		}
		return dst, nil
	}

	v, err, _ := r.group.Do(dst, func() (any, error) {
		r.mu.Lock()
		prev, seen := r.failed[dst]
		r.mu.Unlock()
		if seen {
			return "", prev
		}
		path, err := r.resolveUncached(ctx, req, dst)
		if err != nil {
			if ctx.Err() != nil {
				return "", err
			}
			r.mu.Lock()
			r.failed[dst] = err
			r.mu.Unlock()
			r.rec.MediaResult("missing")
			return "", err
		}
		return path, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (r *Resolver) resolveUncached(ctx context.Context, req Request, dst string) (string, error) {
	switch {
	case isRemote(req.Ref):
		if r.http == nil {
			return "", fmt.Errorf("%w: 未启用网络下载 %s", ErrNotFound, req.Ref)
		}
		if err := r.http.Fetch(ctx, req.Ref, req.Kind, dst); err != nil {
			r.log.Warn("下载媒体失败", zap.String("kind", string(req.Kind)), zap.String("url", req.Ref), zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		if !nonEmpty(dst) {
			return "", fmt.Errorf("%w: 下载结果为空 %s", ErrNotFound, req.Ref)
		}
		r.rec.MediaResult("fetched")
		return dst, nil
	case isObject(req.Ref):
		if r.objects == nil {
			return "", fmt.Errorf("%w: 未配置对象存储 %s", ErrNotFound, req.Ref)
		}
		if err := r.objects.Fetch(ctx, req.Ref, req.Kind, dst); err != nil {
			r.log.Warn("读取对象存储失败", zap.String("ref", req.Ref), zap.Error(err))
			return "", fmt.Errorf("%w: %v", ErrNotFound, err)
		}
		r.rec.MediaResult("fetched")
		return dst, nil
	}

	if r.locator == nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, req.Ref)
	}
	src, ok := r.locator.Locate(req.Ref, req.Kind, req.OwnerID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, req.Ref)
	}
	if err := copyFile(src, dst); err != nil {
		// 复制失败时直接使用原文件
		r.log.Warn("复制媒体到缓存失败，直接使用原文件", zap.String("src", src), zap.Error(err))
		r.rec.MediaResult("local")
		return src, nil
	}
	r.rec.MediaResult("local")
	return dst, nil
}

func nonEmpty(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular() && st.Size() > 0
}

func sanitizeID(id string) string {
	id = strings.TrimSpace(id)
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return -1
	}, id)
}

// copyFile 通过临时文件写入后重命名，避免留下半截缓存。
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
