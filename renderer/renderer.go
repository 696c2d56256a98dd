package renderer

import (
	"context"

	"github.com/ByLCY/papyrus-chat/layout"
)

// Draft 是尚未附加书签的 PDF 文件。
type Draft struct {
	Path  string
	Pages int
}

// Renderer 将排版结果写成 PDF 文件。
type Renderer interface {
	Render(ctx context.Context, result *layout.Result, path string) (*Draft, error)
}
