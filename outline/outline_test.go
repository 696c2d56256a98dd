package outline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/papyrus-chat/layout"
	"github.com/ByLCY/papyrus-chat/renderer"
	canvasrenderer "github.com/ByLCY/papyrus-chat/renderer/canvas"
)

// renderDraft 生成 pages 页的空白草稿，不需要字体。
func renderDraft(t *testing.T, path string, pages int) *renderer.Draft {
	t.Helper()
	fill := layout.Color{R: 200, G: 200, B: 200}
	res := &layout.Result{}
	for i := 0; i < pages; i++ {
		res.Pages = append(res.Pages, layout.Page{
			Width: 210, Height: 297,
			Rects: []layout.Rect{{X: 20, Y: 20 + float64(i), Width: 50, Height: 10, FillColor: &fill, StrokeWidth: -1}},
		})
	}
	draft, err := canvasrenderer.NewRenderer(canvasrenderer.Options{}).Render(context.Background(), res, path)
	require.NoError(t, err)
	return draft
}

func readBookmarks(t *testing.T, path string) []int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	bms, err := api.Bookmarks(f, nil)
	require.NoError(t, err)
	pages := make([]int, 0, len(bms))
	for _, bm := range bms {
		assert.Empty(t, bm.Kids)
		pages = append(pages, bm.PageFrom-1)
	}
	return pages
}

func leftovers(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "*.in.pdf"))
	require.NoError(t, err)
	out, err := filepath.Glob(filepath.Join(dir, "*.out.pdf"))
	require.NoError(t, err)
	return append(matches, out...)
}

func TestAttachFlatOutline(t *testing.T) {
	dir := t.TempDir()
	draft := renderDraft(t, filepath.Join(dir, "draft.pdf"), 6)
	final := filepath.Join(dir, "chat.pdf")

	marks := []layout.Bookmark{
		{Title: "title", Page: 0},
		{Title: "2023-01-01 (3条)", Page: 0},
		{Title: "2023-01-02 (2条)", Page: 4},
	}
	report, err := New(nil).Attach(context.Background(), draft, marks, final)
	require.NoError(t, err)
	assert.Equal(t, Report{Path: final, Pages: 6, Bookmarks: 3}, report)

	assert.Equal(t, []int{0, 0, 4}, readBookmarks(t, final))
	n, err := api.PageCountFile(final)
	require.NoError(t, err)
	assert.Equal(t, 6, n)

	assert.Empty(t, leftovers(t, dir))
	_, err = os.Stat(draft.Path)
	assert.True(t, os.IsNotExist(err), "草稿应在成功后删除")
}

func TestAttachInPlace(t *testing.T) {
	dir := t.TempDir()
	final := filepath.Join(dir, "chat.pdf")
	draft := renderDraft(t, final, 2)

	report, err := New(nil).Attach(context.Background(), draft, []layout.Bookmark{{Title: "title", Page: 0}, {Title: "late", Page: 5}}, final)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Bookmarks)
	assert.Equal(t, 1, report.Dropped)
	assert.Equal(t, []int{0}, readBookmarks(t, final))
	assert.Empty(t, leftovers(t, dir))
}

func TestAttachPageMismatchKeepsDraft(t *testing.T) {
	dir := t.TempDir()
	draft := renderDraft(t, filepath.Join(dir, "draft.pdf"), 3)
	draft.Pages = 4

	_, err := New(nil).Attach(context.Background(), draft, []layout.Bookmark{{Title: "title"}}, filepath.Join(dir, "chat.pdf"))
	var attachErr *AttachError
	require.True(t, errors.As(err, &attachErr))
	assert.Equal(t, "pagecount", attachErr.Stage)
	assert.Equal(t, draft.Path, attachErr.Kept)
	assert.ErrorIs(t, err, errPageMismatch)

	_, statErr := os.Stat(draft.Path)
	assert.NoError(t, statErr)
	assert.Empty(t, leftovers(t, dir))
}

func TestAttachBlockedFinalKeepsBookmarkedCopy(t *testing.T) {
	dir := t.TempDir()
	draft := renderDraft(t, filepath.Join(dir, "draft.pdf"), 2)
	// 目标路径是非空目录，删除旧文件这一步必然失败
	final := filepath.Join(dir, "chat.pdf")
	require.NoError(t, os.MkdirAll(filepath.Join(final, "occupied"), 0o755))

	marks := []layout.Bookmark{{Title: "title", Page: 0}, {Title: "2023-01-02 (1条)", Page: 1}}
	_, err := New(nil).Attach(context.Background(), draft, marks, final)
	var attachErr *AttachError
	require.True(t, errors.As(err, &attachErr))
	assert.Equal(t, "remove", attachErr.Stage)
	assert.NotEqual(t, draft.Path, attachErr.Kept)
	assert.Equal(t, []int{0, 1}, readBookmarks(t, attachErr.Kept))

	_, statErr := os.Stat(draft.Path)
	assert.NoError(t, statErr, "失败时草稿应保留")
	in, globErr := filepath.Glob(filepath.Join(dir, "*.in.pdf"))
	require.NoError(t, globErr)
	assert.Empty(t, in)
}

func TestAttachMissingDraft(t *testing.T) {
	_, err := New(nil).Attach(context.Background(), nil, nil, "x.pdf")
	var attachErr *AttachError
	require.True(t, errors.As(err, &attachErr))
	assert.ErrorIs(t, err, errNoDraft)

	dir := t.TempDir()
	_, err = New(nil).Attach(context.Background(), &renderer.Draft{Path: filepath.Join(dir, "gone.pdf"), Pages: 1}, nil, filepath.Join(dir, "chat.pdf"))
	require.True(t, errors.As(err, &attachErr))
	assert.Equal(t, "copy", attachErr.Stage)
	assert.Empty(t, leftovers(t, dir))
}
