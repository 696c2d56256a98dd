package canvasrenderer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode"

	"github.com/tdewolff/canvas"
	"github.com/tdewolff/canvas/renderers/pdf"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/ByLCY/papyrus-chat/layout"
	"github.com/ByLCY/papyrus-chat/renderer"
)

const defaultStrokeWidth = 0.2

var (
	errUnknownFont  = errors.New("字体未加载")
	errMissingGlyph = errors.New("字体缺少字形")
)

// Renderer 基于 github.com/tdewolff/canvas 绘制排版结果，同时充当文本测量的字体引擎。
type Renderer struct {
	log *zap.Logger

	fontMu   sync.Mutex
	families map[string]*canvas.FontFamily
	fallback string
}

var _ renderer.Renderer = (*Renderer)(nil)

// Options 配置 canvas 渲染器。
type Options struct {
	Logger *zap.Logger
	// Fallback 为找不到字体名时使用的字体族。
	Fallback string
}

// NewRenderer 创建渲染器，字体需通过 LoadFont/LoadFontFile 注册。
func NewRenderer(opts Options) *Renderer {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{
		log:      log,
		families: map[string]*canvas.FontFamily{},
		fallback: opts.Fallback,
	}
}

// LoadFont 以 name 注册字体数据，TTC 取第一个字体。
func (r *Renderer) LoadFont(name string, data []byte) error {
	if name == "" {
		return fmt.Errorf("字体名不能为空")
	}
	family := canvas.NewFontFamily(name)
	if err := family.LoadFont(data, 0, canvas.FontRegular); err != nil {
		return fmt.Errorf("加载字体 %s 失败: %w", name, err)
	}
	r.fontMu.Lock()
	r.families[name] = family
	r.fontMu.Unlock()
	return nil
}

// LoadFontFile 读取字体文件并以 name 注册。
func (r *Renderer) LoadFontFile(name, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取字体 %s 失败: %w", path, err)
	}
	return r.LoadFont(name, data)
}

// HasFont 报告 name 是否已注册。
func (r *Renderer) HasFont(name string) bool {
	r.fontMu.Lock()
	defer r.fontMu.Unlock()
	_, ok := r.families[name]
	return ok
}

// StringWidth 实现 glyph.FontEngine：size 为 pt，返回 mm。
// 字体未注册或缺少任一可见字符的字形时返回错误，由调用方切换到下一个字体。
func (r *Renderer) StringWidth(text, font string, size float64) (float64, error) {
	face, err := r.face(font, size, layout.Color{})
	if err != nil {
		return 0, err
	}
	for _, ch := range text {
		if unicode.IsSpace(ch) || unicode.In(ch, unicode.Mn, unicode.Cf) {
			continue
		}
		if face.Font.GlyphIndex(ch) == 0 {
			return 0, fmt.Errorf("%w: %s 缺少 %q", errMissingGlyph, font, ch)
		}
	}
	return face.TextWidth(text), nil
}

// Render 逐页绘制并写入 path。失败时删除不完整的文件。
func (r *Renderer) Render(ctx context.Context, result *layout.Result, path string) (*renderer.Draft, error) {
	if result == nil {
		return nil, fmt.Errorf("渲染结果为空")
	}
	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("缺少可渲染的页面")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建输出目录失败: %w", err)
	}
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("创建 PDF 文件失败: %w", err)
	}
	if err := r.write(ctx, file, result); err != nil {
		file.Close()
		os.Remove(path)
		return nil, err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("写入 PDF 失败: %w", err)
	}
	r.log.Info("PDF 草稿已生成", zap.String("path", path), zap.Int("pages", len(result.Pages)))
	return &renderer.Draft{Path: path, Pages: len(result.Pages)}, nil
}

func (r *Renderer) write(ctx context.Context, file *os.File, result *layout.Result) error {
	first := result.Pages[0]
	writer := pdf.New(file, first.Width, first.Height, nil)
	applyMeta(writer, result.Meta)
	for i, page := range result.Pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 {
			writer.NewPage(page.Width, page.Height)
		}
		c := canvas.New(page.Width, page.Height)
		cctx := canvas.NewContext(c)
		cctx.SetCoordSystem(canvas.CartesianIV) // 使坐标与布局保持左上角为原点
		if err := r.drawPage(cctx, page); err != nil {
			return fmt.Errorf("绘制第 %d 页失败: %w", i+1, err)
		}
		c.RenderTo(writer)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("写入 PDF 失败: %w", err)
	}
	return nil
}

func applyMeta(writer *pdf.PDF, meta layout.DocumentMeta) {
	keywords := strings.Join(meta.Keywords, ", ")
	writer.SetInfo(meta.Title, meta.Subject, keywords, meta.Author, meta.Creator)
}

func (r *Renderer) drawPage(ctx *canvas.Context, page layout.Page) error {
	// 形状作为背景先画，文字和图片在上层
	drawLines(ctx, page.Lines)
	drawRects(ctx, page.Rects)
	r.drawImages(ctx, page.Images)
	drawCircles(ctx, page.Circles)
	for _, tb := range page.Texts {
		if err := r.drawTextBox(ctx, tb); err != nil {
			return err
		}
	}
	for _, tb := range page.Footer.Texts {
		if err := r.drawTextBox(ctx, tb); err != nil {
			return err
		}
	}
	return nil
}

// drawTextBox 按行绘制，每行的各段使用各自的字体，首段起点由对齐方式与行宽决定。
func (r *Renderer) drawTextBox(ctx *canvas.Context, tb layout.TextBox) error {
	sizePt := toPt(tb.FontSize)
	base, err := r.face(tb.Font, sizePt, tb.Color)
	if err != nil {
		return err
	}
	metrics := base.Metrics()

	lines := tb.Lines
	if len(lines) == 0 {
		lines = []layout.TextLine{{Content: tb.Content, Width: base.TextWidth(tb.Content), Height: tb.LineHeight}}
	}

	cursorY := tb.Y
	for _, line := range lines {
		lineHeight := line.Height
		if lineHeight <= 0 {
			lineHeight = tb.LineHeight
		}
		// 文字在行高内垂直居中
		baseline := cursorY + (lineHeight-(metrics.Ascent+metrics.Descent))/2 + metrics.Ascent

		x := tb.X
		switch strings.ToLower(tb.Align) {
		case "center":
			x += (tb.Width - line.Width) / 2
		case "right", "end":
			x += tb.Width - line.Width
		}

		runs := line.Runs
		if len(runs) == 0 {
			runs = []layout.Run{{Text: line.Content, Font: tb.Font}}
		}
		for _, run := range runs {
			face := base
			if run.Font != "" && run.Font != tb.Font {
				if f, err := r.face(run.Font, sizePt, tb.Color); err == nil {
					face = f
				}
			}
			ctx.DrawText(x, baseline, canvas.NewTextLine(face, run.Text, canvas.Left))
			x += face.TextWidth(run.Text)
		}
		cursorY += lineHeight
	}
	return nil
}

// drawImages 绘制图片，读取或解码失败的图片只记录日志。
func (r *Renderer) drawImages(ctx *canvas.Context, images []layout.ImageBox) {
	for _, img := range images {
		if img.Path == "" || img.Width <= 0 {
			continue
		}
		data, err := decodeImage(img.Path)
		if err != nil {
			r.log.Warn("图片无法绘制", zap.String("path", img.Path), zap.Error(err))
			continue
		}
		dpmm := float64(data.Bounds().Dx()) / img.Width
		if dpmm <= 0 {
			dpmm = 1
		}
		ctx.DrawImage(img.X, img.Y, data, canvas.DPMM(dpmm))
	}
}

func decodeImage(path string) (image.Image, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	img, _, err := image.Decode(file)
	return img, err
}

func drawLines(ctx *canvas.Context, lines []layout.Line) {
	for _, ln := range lines {
		w := ln.Width
		if w <= 0 {
			w = defaultStrokeWidth
		}
		ctx.SetFillColor(canvas.Transparent)
		ctx.SetStrokeColor(colorFromLayout(ln.Color, 1))
		ctx.SetStrokeWidth(w)
		p := &canvas.Path{}
		p.MoveTo(0, 0)
		p.LineTo(ln.X2-ln.X1, ln.Y2-ln.Y1)
		ctx.DrawPath(ln.X1, ln.Y1, p)
	}
}

// drawRects 绘制（圆角）矩形，StrokeWidth 为负表示无边框。
func drawRects(ctx *canvas.Context, rects []layout.Rect) {
	for _, rc := range rects {
		fill := color.Color(canvas.Transparent)
		if rc.FillColor != nil {
			fill = colorFromLayout(*rc.FillColor, 1)
		}
		ctx.SetFillColor(fill)
		setStroke(ctx, rc.StrokeColor, rc.StrokeWidth, 1)
		var shape *canvas.Path
		if rc.Radius > 0 {
			shape = canvas.RoundedRectangle(rc.Width, rc.Height, rc.Radius)
		} else {
			shape = canvas.Rectangle(rc.Width, rc.Height)
		}
		ctx.DrawPath(rc.X, rc.Y, shape)
	}
}

func drawCircles(ctx *canvas.Context, circles []layout.Circle) {
	for _, c := range circles {
		alpha := c.Opacity
		if alpha <= 0 || alpha > 1 {
			alpha = 1
		}
		fill := color.Color(canvas.Transparent)
		if c.FillColor != nil {
			fill = colorFromLayout(*c.FillColor, alpha)
		}
		ctx.SetFillColor(fill)
		setStroke(ctx, c.StrokeColor, c.StrokeWidth, alpha)
		ctx.DrawPath(c.CX, c.CY, canvas.Circle(c.R))
	}
}

func setStroke(ctx *canvas.Context, col layout.Color, width, alpha float64) {
	if width < 0 {
		ctx.SetStrokeColor(canvas.Transparent)
		ctx.SetStrokeWidth(0)
		return
	}
	if width == 0 {
		width = defaultStrokeWidth
	}
	ctx.SetStrokeColor(colorFromLayout(col, alpha))
	ctx.SetStrokeWidth(width)
}

// face 返回 name 对应字体族的字面；未注册时使用兜底字体族。
func (r *Renderer) face(name string, sizePt float64, col layout.Color) (*canvas.FontFace, error) {
	r.fontMu.Lock()
	family, ok := r.families[name]
	if !ok && r.fallback != "" {
		family, ok = r.families[r.fallback]
	}
	r.fontMu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownFont, name)
	}
	return family.Face(sizePt, colorFromLayout(col, 1), canvas.FontRegular, canvas.FontNormal), nil
}

func colorFromLayout(c layout.Color, alpha float64) color.Color {
	return canvas.RGBA(float64(c.R)/255.0, float64(c.G)/255.0, float64(c.B)/255.0, alpha)
}

// toPt 将毫米(mm)转换为点(pt)。
func toPt(mm float64) float64 { return mm * layout.MmToPt }
