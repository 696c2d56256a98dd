package layout

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/binding"
	"github.com/ByLCY/papyrus-chat/chat"
)

const (
	defaultBookmarkTemplate = "${date} (${count}条)"
	defaultTitleTemplate    = "${title}"
	defaultFooterTemplate   = "第 ${page} / ${pages} 页"

	defaultRuleWidth = 0.2 // mm
)

// Composer 驱动整份文档的排版：分组、分页、记录书签。
type Composer struct {
	opts BuildOptions
	log  *zap.Logger
}

// NewComposer 校验必需的依赖。
func NewComposer(opts BuildOptions) (*Composer, error) {
	if opts.Theme == nil {
		return nil, fmt.Errorf("排版缺少主题")
	}
	if opts.Measurer == nil {
		return nil, fmt.Errorf("排版缺少文本测量器")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Composer{opts: opts, log: opts.Logger}, nil
}

// Compose 排版全部消息。dir 为空时从消息发送者构造用户表。
// 消息列表为空返回 chat.ErrEmptyTranscript。
func (c *Composer) Compose(ctx context.Context, msgs []chat.Message, dir chat.Directory) (*Result, error) {
	if len(msgs) == 0 {
		return nil, chat.ErrEmptyTranscript
	}
	if len(dir) == 0 {
		dir = chat.SynthesizeDirectory(msgs)
	}
	dir.MarkSelf(msgs)

	groups := chat.GroupByDate(chat.SortMessages(msgs))
	c.log.Info("消息分组完成", zap.Int("messages", len(msgs)), zap.Int("dates", len(groups)))

	theme := c.opts.Theme
	pages := newPageCollector(theme.PageWidth, theme.PageHeight, theme.Margin)
	if theme.PageNumbers {
		footer := theme.Style("footer")
		pages.footer.Height = footer.Bottom + footer.Size*PtToMm
	}
	tracker := &PageTracker{}
	pages.onPageBreak(tracker.Observe)
	engine := newBubbleEngine(c.opts, dir, pages)

	meta := theme.Meta
	if c.opts.Title != "" {
		meta.Title = c.opts.Title
	}
	vars := binding.Vars{"title": meta.Title, "file": c.opts.SourceName}
	bookmarks := []Bookmark{{
		Title: binding.Interpolate(theme.Template("title-bookmark", defaultTitleTemplate), vars),
		Page:  0,
	}}
	c.drawCover(engine, pages, vars)

	bookmarkTmpl := theme.Template("bookmark", defaultBookmarkTemplate)
	cur := Cursor{Page: 0, Y: pages.contentTop()}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bookmarks = append(bookmarks, Bookmark{
			Title: binding.Interpolate(bookmarkTmpl, binding.Vars{"date": g.Date, "count": len(g.Messages)}),
			Page:  tracker.Current(),
		})
		for _, m := range g.Messages {
			cur = engine.Place(ctx, m, cur)
			if cur.Y > pages.contentBottom() {
				pages.newPage()
				cur = Cursor{Page: pages.current, Y: pages.contentTop()}
			}
		}
	}

	result := &Result{Pages: pages.pages(), Bookmarks: bookmarks, Meta: meta}
	if theme.PageNumbers {
		c.drawFooters(engine, result)
	}
	c.opts.Metrics.Pages(len(result.Pages))
	c.log.Info("排版完成", zap.Int("pages", len(result.Pages)), zap.Int("breaks", tracker.Breaks()), zap.Int("bookmarks", len(bookmarks)))
	return result, nil
}

// drawCover 在第一页顶部边距内绘制标题与源文件名。
func (c *Composer) drawCover(engine *BubbleEngine, pages *pageCollector, vars binding.Vars) {
	theme := c.opts.Theme
	acc := pages.curr()
	title := theme.Style("cover-title")
	if text := binding.Interpolate(nonEmpty(title.Text, defaultTitleTemplate), vars); text != "" {
		lh := title.Size * PtToMm
		acc.appendText(engine.textBox([]string{text}, 0, title.Top-lh/2, theme.PageWidth, title.Size, lh, title.Color, "center"))
	}
	// 封面区与正文之间的分隔线，主题未定义 cover-rule 时不画
	if rule := theme.Style("cover-rule"); rule.Top > 0 {
		width := rule.Size * PtToMm
		if width <= 0 {
			width = defaultRuleWidth
		}
		acc.appendLine(Line{
			X1: theme.Margin.Left, Y1: rule.Top,
			X2: theme.PageWidth - theme.Margin.Right, Y2: rule.Top,
			Color: rule.Color, Width: width,
		})
	}
	if c.opts.SourceName == "" {
		return
	}
	sub := theme.Style("cover-subtitle")
	if text := binding.Interpolate(nonEmpty(sub.Text, "${file}"), vars); text != "" {
		lh := sub.Size * PtToMm
		acc.appendText(engine.textBox([]string{text}, 0, sub.Top-lh/2, theme.PageWidth, sub.Size, lh, sub.Color, "center"))
	}
}

func (c *Composer) drawFooters(engine *BubbleEngine, result *Result) {
	theme := c.opts.Theme
	style := theme.Style("footer")
	tmpl := nonEmpty(style.Text, defaultFooterTemplate)
	lh := style.Size * PtToMm
	total := strconv.Itoa(len(result.Pages))
	for i := range result.Pages {
		p := &result.Pages[i]
		text := binding.Interpolate(tmpl, binding.Vars{"page": strconv.Itoa(i + 1), "pages": total})
		p.Footer.Texts = []TextBox{
			engine.textBox([]string{text}, 0, p.Height-style.Bottom-lh, p.Width, style.Size, lh, style.Color, "center"),
		}
	}
}

func nonEmpty(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
