package glyph

import "strings"

// Widther 是折行所需的测量能力，*Measurer 实现了它。
type Widther interface {
	Width(text, font string, size float64) float64
}

// Wrapper 贪心折行，表情簇作为不可拆分的整体。
type Wrapper struct {
	measure Widther
}

// NewWrapper 基于给定测量器创建折行器。
func NewWrapper(m Widther) *Wrapper {
	return &Wrapper{measure: m}
}

// Wrap 将 text 切分为宽度不超过 maxWidth 的行。
// 单个单位本身超宽时独占一行，不再尝试缩小；显式换行符强制断行并保留空行。
// 空文本返回空切片，由调用方决定占位内容。
func (w *Wrapper) Wrap(text, font string, size, maxWidth float64) []string {
	if text == "" {
		return nil
	}
	var (
		lines   []string
		current strings.Builder
	)
	for _, unit := range Units(text) {
		if unit == "\n" {
			lines = append(lines, current.String())
			current.Reset()
			continue
		}
		candidate := current.String() + unit
		if w.measure.Width(candidate, font, size) <= maxWidth {
			current.WriteString(unit)
			continue
		}
		if current.Len() > 0 {
			lines = append(lines, current.String())
			current.Reset()
		}
		if w.measure.Width(unit, font, size) > maxWidth {
			lines = append(lines, unit)
			continue
		}
		current.WriteString(unit)
	}
	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// Widest 返回各行中的最大宽度。
func (w *Wrapper) Widest(lines []string, font string, size float64) float64 {
	widest := 0.0
	for _, ln := range lines {
		if v := w.measure.Width(ln, font, size); v > widest {
			widest = v
		}
	}
	return widest
}
