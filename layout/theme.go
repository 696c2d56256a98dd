package layout

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ByLCY/papyrus-chat/dsl"
)

// Theme 是主题文件解析后的排版参数。长度单位 mm，字号单位 pt。
type Theme struct {
	Name        string
	PageWidth   float64
	PageHeight  float64
	Margin      Margin
	TextInset   float64 // 最大文本宽度 = 页宽 - TextInset
	PageNumbers bool
	Meta        DocumentMeta
	Fonts       FontNames
	Bubble      BubbleMetrics

	styles    map[string]Style
	templates map[string]string
}

// FontNames 渲染器中注册的字体族名。
type FontNames struct {
	Primary  string
	Emoji    string
	Fallback string
}

// BubbleMetrics 气泡几何参数。比例项相对于最大文本宽度。
type BubbleMetrics struct {
	Padding      float64
	LineHeight   float64
	Radius       float64
	Border       float64
	FontSize     float64
	TextColor    Color
	Gap          float64
	Avatar       float64
	AvatarGap    float64
	TextRatio    float64
	ImageRatio   float64
	ImageHeight  float64
	EmojiSize    float64
	VoiceWrap    float64
	VoiceWidth   float64
	ErrorAdvance float64
}

// Style 命名样式，未设置的颜色为 nil。
type Style struct {
	Name   string
	Fill   *Color
	Border *Color
	Color  Color
	Size   float64 // pt
	Row    float64
	Top    float64
	Bottom float64
	Radius float64
	Text   string
}

// DefaultTheme 返回内置主题。
func DefaultTheme() (*Theme, error) {
	return ResolveTheme(nil)
}

// LoadTheme 读取主题文件并叠加在内置主题之上；path 为空时返回内置主题。
func LoadTheme(path string) (*Theme, error) {
	if path == "" {
		return DefaultTheme()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("读取主题文件失败: %w", err)
	}
	defer f.Close()
	doc, err := dsl.Parse(f)
	if err != nil {
		return nil, fmt.Errorf("解析主题 %s 失败: %w", path, err)
	}
	return ResolveTheme(doc)
}

// ResolveTheme 先应用内置主题，再应用 doc 中出现的设置。
func ResolveTheme(doc *dsl.Document) (*Theme, error) {
	base, err := dsl.Default()
	if err != nil {
		return nil, err
	}
	t := &Theme{styles: map[string]Style{}, templates: map[string]string{}}
	if err := t.apply(base); err != nil {
		return nil, fmt.Errorf("内置主题: %w", err)
	}
	if doc != nil {
		if err := t.apply(doc); err != nil {
			return nil, fmt.Errorf("主题 %s: %w", doc.Name, err)
		}
	}
	if t.PageWidth-t.TextInset <= 0 {
		return nil, fmt.Errorf("text-inset %.1fmm 超过页宽 %.1fmm", t.TextInset, t.PageWidth)
	}
	return t, nil
}

// MaxTextWidth 返回气泡内容的最大宽度。
func (t *Theme) MaxTextWidth() float64 {
	return t.PageWidth - t.TextInset
}

// Style 返回命名样式，不存在时返回仅带名字的空样式。
func (t *Theme) Style(name string) Style {
	if s, ok := t.styles[name]; ok {
		return s
	}
	return Style{Name: name}
}

// Template 返回模板文本，不存在时返回 fallback。
func (t *Theme) Template(name, fallback string) string {
	if s, ok := t.templates[name]; ok && s != "" {
		return s
	}
	return fallback
}

func (t *Theme) apply(doc *dsl.Document) error {
	if doc.Name != "" {
		t.Name = doc.Name
	}
	for _, section := range doc.Sections {
		var err error
		switch {
		case section.Meta != nil:
			t.applyMeta(section.Meta.Block)
		case section.Page != nil:
			err = t.applyPage(section.Page)
		case section.Fonts != nil:
			t.applyFonts(section.Fonts.Block)
		case section.Bubble != nil:
			err = t.applyBubble(section.Bubble.Block)
		case section.Style != nil:
			err = t.applyStyle(section.Style)
		case section.Templates != nil:
			for _, e := range section.Templates.Block.Entries {
				t.templates[strings.ToLower(e.Key)] = e.Value.Text()
			}
		}
		if err != nil {
			return fmt.Errorf("%s 段: %w", section.Kind(), err)
		}
	}
	return nil
}

func (t *Theme) applyMeta(block *dsl.Block) {
	for _, e := range block.Entries {
		switch strings.ToLower(e.Key) {
		case "title":
			t.Meta.Title = e.Value.Text()
		case "author":
			t.Meta.Author = e.Value.Text()
		case "subject":
			t.Meta.Subject = e.Value.Text()
		case "creator":
			t.Meta.Creator = e.Value.Text()
		case "keywords":
			t.Meta.Keywords = e.Value.Strings()
		}
	}
}

func (t *Theme) applyPage(section *dsl.PageSection) error {
	w, h, err := resolvePageSize(section.Spec)
	if err != nil {
		return err
	}
	t.PageWidth, t.PageHeight = w, h
	if v, ok := section.Block.Get("page-numbers"); ok {
		b, err := v.Bool()
		if err != nil {
			return fmt.Errorf("page-numbers: %w", err)
		}
		t.PageNumbers = b
	}
	for _, e := range section.Block.Entries {
		key := strings.ToLower(e.Key)
		if key == "page-numbers" {
			continue
		}
		v, err := lengthMM(e.Value)
		if err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
		switch key {
		case "margin-top":
			t.Margin.Top = v
		case "margin-bottom":
			t.Margin.Bottom = v
		case "margin-left":
			t.Margin.Left = v
		case "margin-right":
			t.Margin.Right = v
		case "side":
			t.Margin.Left, t.Margin.Right = v, v
		case "text-inset":
			t.TextInset = v
		}
	}
	return nil
}

func (t *Theme) applyFonts(block *dsl.Block) {
	for _, e := range block.Entries {
		switch strings.ToLower(e.Key) {
		case "primary":
			t.Fonts.Primary = e.Value.Text()
		case "emoji":
			t.Fonts.Emoji = e.Value.Text()
		case "fallback", "default":
			t.Fonts.Fallback = e.Value.Text()
		}
	}
}

func (t *Theme) applyBubble(block *dsl.Block) error {
	b := &t.Bubble
	var lineHeight *LineHeightSpec
	for _, e := range block.Entries {
		key := strings.ToLower(e.Key)
		var err error
		switch key {
		case "padding":
			b.Padding, err = lengthMM(e.Value)
		case "line-height":
			var spec LineHeightSpec
			if spec, err = ParseLineHeight(e.Value.Text()); err == nil {
				lineHeight = &spec
			}
		case "radius":
			b.Radius, err = lengthMM(e.Value)
		case "border":
			b.Border, err = lengthMM(e.Value)
		case "font-size":
			b.FontSize, err = sizePT(e.Value)
		case "color":
			b.TextColor, err = parseColor(e.Value.Text())
		case "gap":
			b.Gap, err = lengthMM(e.Value)
		case "avatar":
			b.Avatar, err = lengthMM(e.Value)
		case "avatar-gap":
			b.AvatarGap, err = lengthMM(e.Value)
		case "image-height":
			b.ImageHeight, err = lengthMM(e.Value)
		case "emoji-size":
			b.EmojiSize, err = lengthMM(e.Value)
		case "error-advance":
			b.ErrorAdvance, err = lengthMM(e.Value)
		case "text-ratio":
			b.TextRatio, err = ratio(e.Value)
		case "image-ratio":
			b.ImageRatio, err = ratio(e.Value)
		case "voice-wrap":
			b.VoiceWrap, err = ratio(e.Value)
		case "voice-width":
			b.VoiceWidth, err = ratio(e.Value)
		}
		if err != nil {
			return fmt.Errorf("%s: %w", e.Key, err)
		}
	}
	// 倍数行高依赖字号，段内全部读完后再换算
	if lineHeight != nil {
		b.LineHeight = lineHeight.Resolve(Length{Value: b.FontSize, Unit: UnitPT}, UnitMM)
	}
	return nil
}

func (t *Theme) applyStyle(section *dsl.StyleSection) error {
	s := t.Style(section.Name)
	for _, e := range section.Block.Entries {
		var err error
		switch strings.ToLower(e.Key) {
		case "fill":
			var c Color
			if c, err = parseColor(e.Value.Text()); err == nil {
				s.Fill = &c
			}
		case "border":
			var c Color
			if c, err = parseColor(e.Value.Text()); err == nil {
				s.Border = &c
			}
		case "color":
			s.Color, err = parseColor(e.Value.Text())
		case "size":
			s.Size, err = sizePT(e.Value)
		case "row":
			s.Row, err = lengthMM(e.Value)
		case "top":
			s.Top, err = lengthMM(e.Value)
		case "bottom":
			s.Bottom, err = lengthMM(e.Value)
		case "radius":
			s.Radius, err = lengthMM(e.Value)
		case "text":
			s.Text = e.Value.Text()
		}
		if err != nil {
			return fmt.Errorf("style %s %s: %w", section.Name, e.Key, err)
		}
	}
	t.styles[section.Name] = s
	return nil
}

// lengthMM 无单位的长度按 mm 处理。
func lengthMM(v *dsl.Value) (float64, error) {
	l, err := ParseLength(v.Text())
	if err != nil {
		return 0, err
	}
	return l.ToMM(), nil
}

// sizePT 无单位的字号按 pt 处理。
func sizePT(v *dsl.Value) (float64, error) {
	l, err := ParseLength(v.Text())
	if err != nil {
		return 0, err
	}
	return l.ToPT(), nil
}

func ratio(v *dsl.Value) (float64, error) {
	text := v.Text()
	if strings.HasSuffix(text, "%") {
		f, err := strconv.ParseFloat(strings.TrimSuffix(text, "%"), 64)
		if err != nil {
			return 0, fmt.Errorf("比例 %q 无法解析", text)
		}
		return f / 100, nil
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return 0, fmt.Errorf("比例 %q 无法解析", text)
	}
	return f, nil
}

func resolvePageSize(spec dsl.PageSpec) (float64, float64, error) {
	base, ok := pagePresets[strings.ToUpper(spec.Size)]
	if !ok {
		return 0, 0, fmt.Errorf("暂不支持的纸张尺寸：%s", spec.Size)
	}

	width := base[0]
	height := base[1]
	for _, token := range spec.Params {
		switch token.Value {
		case "landscape":
			width, height = height, width
		}
	}
	return width, height, nil
}

var pagePresets = map[string][2]float64{
	"A3":     {297, 420},
	"A4":     {210, 297},
	"A5":     {148, 210},
	"B5":     {176, 250},
	"LETTER": {215.9, 279.4},
}

func parseColor(value string) (Color, error) {
	value = strings.TrimPrefix(strings.TrimSpace(value), "#")
	switch len(value) {
	case 3:
		r := strings.Repeat(string(value[0]), 2)
		g := strings.Repeat(string(value[1]), 2)
		b := strings.Repeat(string(value[2]), 2)
		return Color{
			R: mustHex(r),
			G: mustHex(g),
			B: mustHex(b),
		}, nil
	case 6, 8:
		return Color{
			R: mustHex(value[0:2]),
			G: mustHex(value[2:4]),
			B: mustHex(value[4:6]),
		}, nil
	default:
		return Color{}, fmt.Errorf("颜色值 %s 无法解析", value)
	}
}

func mustHex(s string) int {
	v, _ := strconv.ParseInt(s, 16, 64)
	return int(v)
}
