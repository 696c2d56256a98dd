// Package outline 为渲染好的 PDF 草稿附加扁平书签。
package outline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/layout"
	"github.com/ByLCY/papyrus-chat/renderer"
)

var (
	errNoDraft      = errors.New("缺少 PDF 草稿")
	errPageMismatch = errors.New("页数与草稿不一致")
)

// AttachError 描述附加书签失败的阶段以及仍然保留的文件。
type AttachError struct {
	Stage string
	Kept  string
	Err   error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("附加书签失败（%s），已保留 %s: %v", e.Stage, e.Kept, e.Err)
}

func (e *AttachError) Unwrap() error { return e.Err }

// Report 汇总一次附加的结果。
type Report struct {
	Path      string
	Pages     int
	Bookmarks int
	Dropped   int // 页号越界被丢弃的书签数
}

// Attacher 基于 pdfcpu 重写草稿并写入书签。
type Attacher struct {
	log  *zap.Logger
	conf *model.Configuration
}

// New 创建 Attacher，不读写 pdfcpu 的用户配置目录。
func New(log *zap.Logger) *Attacher {
	if log == nil {
		log = zap.NewNop()
	}
	api.DisableConfigDir()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Attacher{log: log, conf: conf}
}

// Attach 复制草稿、校验页数、写入书签，再替换 finalPath。
// draft.Path 可以与 finalPath 相同；任何阶段失败都不会删除草稿。
func (a *Attacher) Attach(ctx context.Context, draft *renderer.Draft, marks []layout.Bookmark, finalPath string) (Report, error) {
	if draft == nil || draft.Path == "" {
		return Report{}, &AttachError{Stage: "draft", Err: errNoDraft}
	}
	kept := draft.Path
	id := uuid.NewString()
	in := fmt.Sprintf("%s.%s.in.pdf", finalPath, id)
	out := fmt.Sprintf("%s.%s.out.pdf", finalPath, id)
	fail := func(stage string, err error, leftovers ...string) (Report, error) {
		for _, p := range leftovers {
			os.Remove(p)
		}
		return Report{}, &AttachError{Stage: stage, Kept: kept, Err: err}
	}

	if err := ctx.Err(); err != nil {
		return fail("draft", err)
	}
	if err := copyFile(draft.Path, in); err != nil {
		return fail("copy", err, in)
	}

	count, err := api.PageCountFile(in)
	if err != nil {
		return fail("pagecount", err, in)
	}
	if count != draft.Pages {
		return fail("pagecount", fmt.Errorf("%w: 草稿 %d 页，读取到 %d 页", errPageMismatch, draft.Pages, count), in)
	}

	bms := make([]pdfcpu.Bookmark, 0, len(marks))
	for _, m := range marks {
		if m.Page < 0 || m.Page >= count {
			a.log.Warn("书签页号越界，已忽略", zap.String("title", m.Title), zap.Int("page", m.Page), zap.Int("pages", count))
			continue
		}
		bms = append(bms, pdfcpu.Bookmark{Title: m.Title, PageFrom: m.Page + 1})
	}
	report := Report{Path: finalPath, Pages: count, Bookmarks: len(bms), Dropped: len(marks) - len(bms)}

	if err := ctx.Err(); err != nil {
		return fail("bookmarks", err, in)
	}
	if len(bms) == 0 {
		out = in
	} else if err := api.AddBookmarksFile(in, out, bms, true, a.conf); err != nil {
		return fail("bookmarks", err, in, out)
	}

	// 从这里开始 out 是唯一带书签的文件
	if err := os.Remove(finalPath); err != nil && !os.IsNotExist(err) {
		kept = out
		return fail("remove", err, in)
	}
	if err := os.Rename(out, finalPath); err != nil {
		kept = out
		if out == in {
			return fail("rename", err)
		}
		return fail("rename", err, in)
	}
	os.Remove(in)
	if draft.Path != finalPath {
		os.Remove(draft.Path)
	}
	a.log.Info("书签已写入", zap.String("path", finalPath), zap.Int("bookmarks", report.Bookmarks), zap.Int("pages", count))
	return report, nil
}

func copyFile(src, dst string) error {
	from, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("读取草稿失败: %w", err)
	}
	defer from.Close()
	to, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	if _, err := io.Copy(to, from); err != nil {
		to.Close()
		return fmt.Errorf("复制草稿失败: %w", err)
	}
	return to.Close()
}
