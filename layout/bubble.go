package layout

import (
	"context"
	"errors"
	"fmt"
	"image"
	"math"
	"os"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/ByLCY/papyrus-chat/chat"
	"github.com/ByLCY/papyrus-chat/glyph"
	"github.com/ByLCY/papyrus-chat/media"
	"github.com/ByLCY/papyrus-chat/metrics"
	"github.com/ByLCY/papyrus-chat/speech"
)

// 占位文本，与导出工具历史输出保持一致。
const (
	placeholderEmpty = "[空消息]"
	placeholderImage = "[图片]"
	placeholderVideo = "[视频消息]"
	placeholderEmoji = "[表情消息]"
	placeholderVoice = "📢[语音消息]"
	unknownFileName  = "未知文件"
	playGlyph        = "▶"
)

var errNoMedia = errors.New("媒体不可用")

// BubbleEngine 排版单条消息：计算气泡尺寸、必要时换页，并输出绘制元素。
type BubbleEngine struct {
	theme   *Theme
	opts    BuildOptions
	measure TextMeasurer
	wrapper *glyph.Wrapper
	dir     chat.Directory
	pages   *pageCollector
	loc     *time.Location
	log     *zap.Logger
	rec     *metrics.Recorder
	maxText float64
}

func newBubbleEngine(opts BuildOptions, dir chat.Directory, pages *pageCollector) *BubbleEngine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &BubbleEngine{
		theme:   opts.Theme,
		opts:    opts,
		measure: opts.Measurer,
		wrapper: glyph.NewWrapper(opts.Measurer),
		dir:     dir,
		pages:   pages,
		loc:     loc,
		log:     log,
		rec:     opts.Metrics,
		maxText: opts.Theme.MaxTextWidth(),
	}
}

// content 是一条消息在气泡内需要绘制的内容及气泡尺寸。
type content struct {
	lines  []string
	width  float64
	height float64
	style  Style

	image  *ImageBox // 相对气泡左上角
	video  bool
	notice bool
}

// Place 在 cur 处排版 msg，返回下一条消息的游标。
// 单条消息的任何错误或 panic 都不会向外传播：已暂存的元素被丢弃，游标前进一个很小的固定距离。
func (e *BubbleEngine) Place(ctx context.Context, msg chat.Message, cur Cursor) (next Cursor) {
	at := cur
	defer func() {
		if r := recover(); r != nil {
			e.log.Warn("排版消息时发生异常，已跳过",
				zap.String("id", msg.ID), zap.String("type", msg.Type.String()), zap.Any("panic", r))
			next = Cursor{Page: at.Page, Y: at.Y + e.theme.Bubble.ErrorAdvance}
		}
	}()

	next, err := e.place(ctx, msg, &at)
	if err != nil {
		e.log.Warn("排版消息失败，已跳过",
			zap.String("id", msg.ID), zap.String("type", msg.Type.String()), zap.Error(err))
		return Cursor{Page: at.Page, Y: at.Y + e.theme.Bubble.ErrorAdvance}
	}
	return next
}

func (e *BubbleEngine) place(ctx context.Context, msg chat.Message, at *Cursor) (Cursor, error) {
	e.rec.Message(msg.Type.String())
	if msg.Type == chat.TypeSystemNotice {
		return e.placeNotice(msg, at)
	}

	c, err := e.build(ctx, msg)
	if err != nil {
		return *at, err
	}
	b := e.theme.Bubble
	row := e.timestampRow()
	required := row + math.Max(c.height, b.Avatar)
	e.ensureSpace(at, required)

	stage := &pageAccumulator{}
	name := e.dir.Name(msg.SenderID)
	outgoing := msg.Outgoing
	avatarX := e.theme.Margin.Left
	bubbleX := e.theme.Margin.Left + b.Avatar + b.AvatarGap
	if outgoing {
		avatarX = e.theme.PageWidth - e.theme.Margin.Right - b.Avatar
		bubbleX = avatarX - b.AvatarGap - c.width
	}
	top := at.Y + row

	e.drawTimestamp(stage, msg, at.Y)
	e.drawName(stage, name, avatarX, at.Y, outgoing)
	e.drawAvatar(stage, msg.SenderID, name, avatarX, top)
	if err := e.drawBubble(stage, c, bubbleX, top); err != nil {
		return *at, err
	}

	stage.commitTo(e.pages.curr())
	return Cursor{Page: at.Page, Y: top + math.Max(c.height, b.Avatar) + b.Gap}, nil
}

// ensureSpace 放不下时先换页；游标已在页首时不再换页，超高内容允许溢出。
func (e *BubbleEngine) ensureSpace(at *Cursor, required float64) {
	if at.Y+required <= e.pages.contentBottom() {
		return
	}
	if at.Y <= e.pages.contentTop() {
		return
	}
	e.pages.newPage()
	at.Page = e.pages.current
	at.Y = e.pages.contentTop()
}

func (e *BubbleEngine) build(ctx context.Context, msg chat.Message) (content, error) {
	self := e.selfStyle(msg, "self", "other")
	switch c := msg.Content.(type) {
	case chat.Text:
		text := chat.ReplaceShortcodes(c.Body)
		if strings.TrimSpace(text) == "" {
			text = placeholderEmpty
		}
		return e.textContent(text, e.theme.Bubble.TextRatio, 0, self), nil
	case chat.Media:
		switch msg.Type {
		case chat.TypeVoice:
			return e.voiceContent(ctx, msg), nil
		case chat.TypeImage, chat.TypeVideo, chat.TypeAnimatedEmoji:
			mc, err := e.mediaContent(ctx, msg, self)
			if err == nil {
				return mc, nil
			}
			e.log.Info("媒体不可用，使用占位文本",
				zap.String("id", msg.ID), zap.String("type", msg.Type.String()),
				zap.String("ref", c.Ref), zap.Error(err))
			e.rec.Placeholder(msg.Type.String())
			return e.textContent(mediaPlaceholder(msg.Type), e.theme.Bubble.TextRatio, 0, self), nil
		}
	case chat.File:
		name := e.fileName(ctx, msg, c)
		return e.textContent("[文件] "+name, e.theme.Bubble.TextRatio, 0, self), nil
	case chat.Unknown:
		text := strings.TrimSpace(fmt.Sprintf("[%s] %s", c.TypeName, chat.ReplaceShortcodes(c.Body)))
		return e.textContent(text, e.theme.Bubble.TextRatio, 0, self), nil
	}
	return content{}, fmt.Errorf("消息类型 %s 与内容 %T 不匹配", msg.Type, msg.Content)
}

func mediaPlaceholder(t chat.MessageType) string {
	switch t {
	case chat.TypeVideo:
		return placeholderVideo
	case chat.TypeAnimatedEmoji:
		return placeholderEmoji
	default:
		return placeholderImage
	}
}

func (e *BubbleEngine) selfStyle(msg chat.Message, selfName, otherName string) Style {
	if msg.Outgoing {
		return e.theme.Style(selfName)
	}
	return e.theme.Style(otherName)
}

// textContent 按 wrapRatio 折行；capRatio > 0 时再限制气泡总宽。
func (e *BubbleEngine) textContent(text string, wrapRatio, capRatio float64, style Style) content {
	b := e.theme.Bubble
	limit := wrapRatio * e.maxText
	lines := e.wrapper.Wrap(text, e.theme.Fonts.Primary, b.FontSize, limit)
	if len(lines) == 0 {
		lines = []string{placeholderEmpty}
	}
	widest := e.wrapper.Widest(lines, e.theme.Fonts.Primary, b.FontSize)
	width := math.Min(limit, widest) + 2*b.Padding
	if capRatio > 0 {
		width = math.Min(width, capRatio*e.maxText)
	}
	return content{
		lines:  lines,
		width:  width,
		height: float64(len(lines))*b.LineHeight + 2*b.Padding,
		style:  style,
	}
}

func (e *BubbleEngine) mediaContent(ctx context.Context, msg chat.Message, style Style) (content, error) {
	path, err := e.resolve(ctx, msg)
	if err != nil {
		return content{}, err
	}
	video := msg.Type == chat.TypeVideo
	if video {
		if e.opts.Video == nil {
			return content{}, fmt.Errorf("%w: 无法提取视频缩略图", errNoMedia)
		}
		if path, err = e.opts.Video.Thumbnail(ctx, path); err != nil {
			return content{}, err
		}
	}

	prepared, err := e.prepare(path)
	if err != nil {
		return content{}, err
	}

	b := e.theme.Bubble
	boxW, boxH := b.ImageRatio*e.maxText, b.ImageHeight
	if msg.Type == chat.TypeAnimatedEmoji {
		boxW, boxH = b.EmojiSize, b.EmojiSize
	}
	w, h := fitBox(float64(prepared.Width)*PtToMm, float64(prepared.Height)*PtToMm, boxW, boxH)

	c := content{
		width:  w + 4*b.Padding,
		height: h + 4*b.Padding,
		style:  style,
		image:  &ImageBox{Path: prepared.Path, X: 2 * b.Padding, Y: 2 * b.Padding, Width: w, Height: h},
		video:  video,
	}
	if video {
		c.height += e.timestampRow()
	}
	return c, nil
}

func (e *BubbleEngine) prepare(path string) (media.Prepared, error) {
	if e.opts.Images != nil {
		return e.opts.Images.Prepare(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return media.Prepared{}, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return media.Prepared{}, fmt.Errorf("解码图片 %s 失败: %w", path, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return media.Prepared{}, fmt.Errorf("图片 %s 尺寸为 0", path)
	}
	return media.Prepared{Path: path, Width: cfg.Width, Height: cfg.Height}, nil
}

// fitBox 等比缩放到 boxW×boxH 以内，不放大。
func fitBox(w, h, boxW, boxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return boxW, boxH
	}
	scale := math.Min(1, math.Min(boxW/w, boxH/h))
	return w * scale, h * scale
}

func (e *BubbleEngine) voiceContent(ctx context.Context, msg chat.Message) content {
	style := e.selfStyle(msg, "voice-self", "voice-other")
	b := e.theme.Bubble
	placeholder := func() content {
		return e.textContent(placeholderVoice, b.VoiceWrap, b.VoiceWidth, style)
	}

	path, err := e.resolve(ctx, msg)
	if err != nil {
		e.log.Info("语音文件不可用，使用占位文本", zap.String("id", msg.ID), zap.String("ref", msg.MediaRef()), zap.Error(err))
		e.rec.Placeholder(msg.Type.String())
		return placeholder()
	}
	if e.opts.Speech == nil {
		return placeholder()
	}

	var (
		dur   time.Duration
		known bool
	)
	if e.opts.Video != nil {
		if d, err := e.opts.Video.Duration(ctx, path); err == nil && d > 0 {
			dur, known = d, true
		}
	}
	transcript, err := e.opts.Speech.Transcribe(ctx, path)
	if err != nil {
		transcript = speech.FailureText(err)
	}
	text := speech.BubbleText(speech.DurationLabel(dur, known), transcript)
	return e.textContent(text, b.VoiceWrap, b.VoiceWidth, style)
}

// fileName 依次取消息正文、引用的文件名、解析后路径的文件名。
func (e *BubbleEngine) fileName(ctx context.Context, msg chat.Message, f chat.File) string {
	if name := strings.TrimSpace(f.Name); name != "" {
		return name
	}
	if name := baseName(f.Ref); name != "" {
		return name
	}
	if f.Ref != "" {
		if path, err := e.resolve(ctx, msg); err == nil {
			if name := baseName(path); name != "" {
				return name
			}
		}
	}
	return unknownFileName
}

// baseName 同时识别 / 与 \ 分隔符，导出文件中的路径可能来自 Windows。
func baseName(p string) string {
	p = strings.TrimSpace(p)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	return p
}

func (e *BubbleEngine) resolve(ctx context.Context, msg chat.Message) (string, error) {
	if e.opts.Resolver == nil {
		return "", fmt.Errorf("%w: 未配置媒体解析", errNoMedia)
	}
	return e.opts.Resolver.Resolve(ctx, media.Request{
		Ref:       msg.MediaRef(),
		Kind:      media.KindOf(msg.Type),
		OwnerID:   msg.SenderID,
		MessageID: msg.ID,
	})
}

func (e *BubbleEngine) placeNotice(msg chat.Message, at *Cursor) (Cursor, error) {
	style := e.theme.Style("notice")
	b := e.theme.Bubble
	text := strings.TrimSpace(msg.Body())
	if text == "" {
		return *at, nil
	}
	lines := e.wrapper.Wrap(text, e.theme.Fonts.Primary, style.Size, e.maxText)
	advance := float64(len(lines))*b.LineHeight + e.timestampRow()
	e.ensureSpace(at, advance)

	left := e.theme.Margin.Left
	width := e.theme.PageWidth - e.theme.Margin.Left - e.theme.Margin.Right
	stage := &pageAccumulator{}
	stage.appendText(e.textBox(lines, left, at.Y, width, style.Size, b.LineHeight, style.Color, "center"))
	stage.commitTo(e.pages.curr())
	return Cursor{Page: at.Page, Y: at.Y + advance}, nil
}

func (e *BubbleEngine) timestampRow() float64 {
	if row := e.theme.Style("timestamp").Row; row > 0 {
		return row
	}
	return e.theme.Bubble.LineHeight
}

func (e *BubbleEngine) drawTimestamp(stage *pageAccumulator, msg chat.Message, y float64) {
	style := e.theme.Style("timestamp")
	text := msg.CreatedAt.In(e.loc).Format(chat.DisplayLayout)
	if !msg.TimeKnown && strings.TrimSpace(msg.RawTime) != "" {
		text = msg.RawTime
	}
	stage.appendText(e.textBox([]string{text}, 0, y, e.theme.PageWidth, style.Size, e.timestampRow(), style.Color, "center"))
}

func (e *BubbleEngine) drawName(stage *pageAccumulator, name string, avatarX, y float64, outgoing bool) {
	if name == "" {
		return
	}
	style := e.theme.Style("name")
	x, align := avatarX, "left"
	if outgoing {
		x, align = avatarX+e.theme.Bubble.Avatar-e.maxText, "right"
	}
	stage.appendText(e.textBox([]string{name}, x, y, e.maxText, style.Size, e.timestampRow(), style.Color, align))
}

func (e *BubbleEngine) drawAvatar(stage *pageAccumulator, senderID, name string, x, y float64) {
	size := e.theme.Bubble.Avatar
	if path := e.opts.Avatars[senderID]; path != "" {
		stage.appendImage(ImageBox{Path: path, X: x, Y: y, Width: size, Height: size})
		return
	}
	fill := avatarColor(name)
	stage.appendRect(Rect{X: x, Y: y, Width: size, Height: size, FillColor: &fill, StrokeWidth: -1})
	if units := glyph.Units(name); len(units) > 0 {
		fontSize := e.theme.Bubble.FontSize * 1.2
		lh := fontSize * PtToMm
		stage.appendText(e.textBox(units[:1], x, y+(size-lh)/2, size, fontSize, lh, Color{R: 255, G: 255, B: 255}, "center"))
	}
}

// avatarColor 由名字哈希得到稳定的中等亮度颜色。
func avatarColor(name string) Color {
	h := xxhash.Sum64String(name)
	return Color{
		R: 60 + int(h&0xff)%140,
		G: 60 + int((h>>8)&0xff)%140,
		B: 60 + int((h>>16)&0xff)%140,
	}
}

func (e *BubbleEngine) drawBubble(stage *pageAccumulator, c content, x, y float64) error {
	if c.width <= 0 || c.height <= 0 {
		return fmt.Errorf("气泡尺寸无效 %.1fx%.1f", c.width, c.height)
	}
	b := e.theme.Bubble
	rect := Rect{X: x, Y: y, Width: c.width, Height: c.height, Radius: b.Radius, StrokeWidth: b.Border, FillColor: c.style.Fill}
	if c.style.Border != nil {
		rect.StrokeColor = *c.style.Border
	} else {
		rect.StrokeWidth = -1
	}
	stage.appendRect(rect)

	if c.image == nil {
		stage.appendText(e.textBox(c.lines, x+b.Padding, y+b.Padding, c.width-2*b.Padding, b.FontSize, b.LineHeight, b.TextColor, "left"))
		return nil
	}

	img := *c.image
	img.X += x
	img.Y += y
	stage.appendImage(img)
	if c.video {
		e.drawVideoOverlay(stage, img, x, c.width)
	}
	return nil
}

func (e *BubbleEngine) drawVideoOverlay(stage *pageAccumulator, img ImageBox, bubbleX, bubbleW float64) {
	play := e.theme.Style("play")
	label := e.theme.Style("timestamp")
	row := e.timestampRow()
	stage.appendText(e.textBox([]string{placeholderVideo}, bubbleX, img.Y+img.Height+e.theme.Bubble.Padding, bubbleW, label.Size, row, label.Color, "center"))

	r := play.Radius
	if limit := math.Min(img.Width, img.Height) / 2; r <= 0 || r > limit {
		r = limit
	}
	cx, cy := img.X+img.Width/2, img.Y+img.Height/2
	fill := Color{R: 255, G: 255, B: 255}
	if play.Fill != nil {
		fill = *play.Fill
	}
	stage.appendCircle(Circle{CX: cx, CY: cy, R: r, FillColor: &fill, StrokeWidth: -1, Opacity: 0.7})
	lh := play.Size * PtToMm
	stage.appendText(e.textBox([]string{playGlyph}, cx-r, cy-lh/2, 2*r, play.Size, lh, play.Color, "center"))
}

// textBox 生成已折行的文本块，每行拆成普通字体与表情字体交替的片段。
func (e *BubbleEngine) textBox(lines []string, x, y, width, sizePt, lineHeight float64, col Color, align string) TextBox {
	fonts := e.theme.Fonts
	emojiFont := fonts.Emoji
	if emojiFont == "" {
		emojiFont = fonts.Primary
	}
	tb := TextBox{
		Content:    strings.Join(lines, "\n"),
		X:          x,
		Y:          y,
		Width:      width,
		LineHeight: lineHeight,
		Font:       fonts.Primary,
		FontSize:   sizePt * PtToMm,
		Color:      col,
		Height:     float64(len(lines)) * lineHeight,
		Align:      align,
	}
	for _, line := range lines {
		tl := TextLine{
			Content: line,
			Width:   e.measure.Width(line, fonts.Primary, sizePt),
			Height:  lineHeight,
		}
		for _, run := range glyph.Runs(line) {
			font := fonts.Primary
			if run.Emoji {
				font = emojiFont
			}
			tl.Runs = append(tl.Runs, Run{Text: run.Text, Font: font})
		}
		tb.Lines = append(tb.Lines, tl)
	}
	return tb
}
