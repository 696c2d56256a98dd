package media

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"
)

const maxRedirects = 5

// HTTPFetcher 使用 fasthttp 下载远端媒体，每次调用单独计时，可选限速。
type HTTPFetcher struct {
	client    *fasthttp.Client
	timeout   time.Duration
	userAgent string
	limiter   *rate.Limiter
}

// HTTPOptions 下载参数。RatePerSec <= 0 表示不限速。
type HTTPOptions struct {
	Timeout    time.Duration
	UserAgent  string
	RatePerSec float64
	MaxBody    int
}

// NewHTTPFetcher 创建下载器。
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxBody <= 0 {
		opts.MaxBody = 64 << 20
	}
	f := &HTTPFetcher{
		client: &fasthttp.Client{
			Name:                     "papyrus-chat",
			ReadTimeout:              opts.Timeout,
			WriteTimeout:             opts.Timeout,
			MaxResponseBodySize:      opts.MaxBody,
			NoDefaultUserAgentHeader: opts.UserAgent != "",
		},
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
	}
	if opts.RatePerSec > 0 {
		burst := int(opts.RatePerSec)
		if burst < 1 {
			burst = 1
		}
		f.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)
	}
	return f
}

// Fetch 下载 url 到 dst，跟随重定向并校验内容类型。
func (f *HTTPFetcher) Fetch(ctx context.Context, url string, kind Kind, dst string) error {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodGet)
	if f.userAgent != "" {
		req.Header.SetUserAgent(f.userAgent)
	}

	for hop := 0; ; hop++ {
		if err := f.client.DoTimeout(req, resp, f.timeout); err != nil {
			return fmt.Errorf("请求 %s 失败: %w", req.URI().String(), err)
		}
		status := resp.StatusCode()
		if !isRedirect(status) {
			break
		}
		location := resp.Header.Peek(fasthttp.HeaderLocation)
		if len(location) == 0 || hop >= maxRedirects {
			return fmt.Errorf("请求 %s 重定向异常（状态码 %d）", url, status)
		}
		req.URI().UpdateBytes(location)
		resp.Reset()
	}

	if status := resp.StatusCode(); status != fasthttp.StatusOK {
		return fmt.Errorf("请求 %s 返回状态码 %d", url, status)
	}
	body := resp.Body()
	if len(body) == 0 {
		return fmt.Errorf("请求 %s 返回空内容", url)
	}
	if err := checkContentType(kind, string(resp.Header.ContentType()), body); err != nil {
		return err
	}
	return writeAtomic(dst, body)
}

func isRedirect(status int) bool {
	switch status {
	case fasthttp.StatusMovedPermanently, fasthttp.StatusFound, fasthttp.StatusSeeOther,
		fasthttp.StatusTemporaryRedirect, fasthttp.StatusPermanentRedirect:
		return true
	}
	return false
}

// checkContentType 图片与视频要求对应的 MIME 大类；响应头缺失或为通用类型时按内容嗅探。
func checkContentType(kind Kind, header string, body []byte) error {
	var want string
	switch kind {
	case KindImage, KindEmoji, KindAvatar:
		want = "image/"
	case KindVideo:
		want = "video/"
	default:
		return nil
	}
	ct := strings.ToLower(strings.TrimSpace(header))
	if ct == "" || strings.HasPrefix(ct, "application/octet-stream") || strings.HasPrefix(ct, "binary/") {
		ct = http.DetectContentType(body)
		if strings.HasPrefix(ct, "application/octet-stream") {
			// 嗅探不出类型时放行，交给后续解码判断
			return nil
		}
	}
	if !strings.HasPrefix(ct, want) {
		return fmt.Errorf("内容类型 %q 与 %s 不符", ct, kind)
	}
	return nil
}

func writeAtomic(dst string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".fetch-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
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
