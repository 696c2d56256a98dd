package layout

// pageAccumulator 收集一页上的绘制元素；也用作单条消息的暂存区，消息完整排好后才提交到页面。
type pageAccumulator struct {
	texts   []TextBox
	images  []ImageBox
	lines   []Line
	rects   []Rect
	circles []Circle
}

func (p *pageAccumulator) appendText(tb TextBox) {
	p.texts = append(p.texts, tb)
}

func (p *pageAccumulator) appendLine(ln Line) {
	p.lines = append(p.lines, ln)
}

func (p *pageAccumulator) appendImage(img ImageBox) {
	p.images = append(p.images, img)
}

func (p *pageAccumulator) appendRect(r Rect) {
	p.rects = append(p.rects, r)
}

func (p *pageAccumulator) appendCircle(c Circle) {
	p.circles = append(p.circles, c)
}

// commitTo 把暂存的元素追加到目标页。
func (p *pageAccumulator) commitTo(dst *pageAccumulator) {
	dst.texts = append(dst.texts, p.texts...)
	dst.images = append(dst.images, p.images...)
	dst.lines = append(dst.lines, p.lines...)
	dst.rects = append(dst.rects, p.rects...)
	dst.circles = append(dst.circles, p.circles...)
}

type pageCollector struct {
	width   float64
	height  float64
	margin  Margin
	accs    []*pageAccumulator
	current int
	footer  HeaderFooter

	listeners []func(page int)
}

func newPageCollector(width, height float64, margin Margin) *pageCollector {
	pc := &pageCollector{
		width:  width,
		height: height,
		margin: margin,
	}
	pc.newPage()
	return pc
}

// onPageBreak 注册换页回调，参数为新页的下标。
func (pc *pageCollector) onPageBreak(fn func(page int)) {
	pc.listeners = append(pc.listeners, fn)
}

func (pc *pageCollector) newPage() *pageAccumulator {
	acc := &pageAccumulator{}
	pc.accs = append(pc.accs, acc)
	pc.current = len(pc.accs) - 1
	for _, fn := range pc.listeners {
		fn(pc.current)
	}
	return acc
}

func (pc *pageCollector) curr() *pageAccumulator {
	if len(pc.accs) == 0 {
		return pc.newPage()
	}
	return pc.accs[pc.current]
}

func (pc *pageCollector) contentTop() float64 {
	return pc.margin.Top
}

func (pc *pageCollector) contentBottom() float64 {
	// 内容区域底部 = 页面高度 - max(下边距, 页脚高度)
	b := pc.margin.Bottom
	if pc.footer.Height > b {
		b = pc.footer.Height
	}
	return pc.height - b
}

func (pc *pageCollector) pages() []Page {
	out := make([]Page, len(pc.accs))
	for i, acc := range pc.accs {
		out[i] = Page{
			Width:   pc.width,
			Height:  pc.height,
			Margin:  pc.margin,
			Texts:   acc.texts,
			Images:  acc.images,
			Lines:   acc.lines,
			Rects:   acc.rects,
			Circles: acc.circles,
			Footer:  pc.footer,
		}
	}
	return out
}

// PageTracker 通过换页回调记录当前页号，是书签页号的唯一来源。
type PageTracker struct {
	current int
	breaks  int
}

// Observe 处理一次换页事件。
func (t *PageTracker) Observe(page int) {
	t.current = page
	t.breaks++
}

// Current 返回当前页下标（从 0 开始）。
func (t *PageTracker) Current() int { return t.current }

// Breaks 返回换页次数。
func (t *PageTracker) Breaks() int { return t.breaks }
