package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// objectStore 是 *minio.Client 中用到的部分。
type objectStore interface {
	FGetObject(ctx context.Context, bucket, object, filePath string, opts minio.GetObjectOptions) error
}

// ObjectFetcher 下载 s3://bucket/key 形式的媒体引用。
type ObjectFetcher struct {
	store objectStore
}

// S3Options 对象存储连接参数。
type S3Options struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewObjectFetcher 连接对象存储。Endpoint 为空时返回 nil，表示未启用。
func NewObjectFetcher(opts S3Options) (*ObjectFetcher, error) {
	if strings.TrimSpace(opts.Endpoint) == "" {
		return nil, nil
	}
	client, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化对象存储失败: %w", err)
	}
	return &ObjectFetcher{store: client}, nil
}

// Fetch 把对象下载到 dst。
func (f *ObjectFetcher) Fetch(ctx context.Context, ref string, _ Kind, dst string) error {
	bucket, key, err := parseObjectRef(ref)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp := dst + ".part"
	if err := f.store.FGetObject(ctx, bucket, key, tmp, minio.GetObjectOptions{}); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("下载对象 %s/%s 失败: %w", bucket, key, err)
	}
	if !nonEmpty(tmp) {
		os.Remove(tmp)
		return fmt.Errorf("对象 %s/%s 为空", bucket, key)
	}
	return os.Rename(tmp, dst)
}

func parseObjectRef(ref string) (bucket, key string, err error) {
	rest := ref
	if len(rest) >= 5 && strings.EqualFold(rest[:5], "s3://") {
		rest = rest[5:]
	}
	bucket, key, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || strings.Trim(key, "/") == "" {
		return "", "", fmt.Errorf("无效的对象引用 %q", ref)
	}
	return bucket, key, nil
}
