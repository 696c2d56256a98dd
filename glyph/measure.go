package glyph

import (
	"sync"
	"unicode/utf8"
)

// pointMM 每 pt 对应的毫米数，与 layout.PtToMm 一致。
const pointMM = 0.352777

// estimateFactor 字体全部不可用时，每个字符按字号的 0.6 倍估算宽度。
const estimateFactor = 0.6

// FontEngine 提供底层字体的字符串宽度（mm），size 以 pt 为单位。
type FontEngine interface {
	StringWidth(text, font string, size float64) (float64, error)
}

// Fonts 指定测量链中使用的字体名。
type Fonts struct {
	Emoji   string // 表情字体，为空表示没有专用表情字体
	Default string // 兜底字体
}

type cacheKey struct {
	text string
	font string
	size float64
}

// Measurer 测量混排文本宽度并按 (text, font, size) 缓存结果。
// 缓存在一次导出内有效且不设上限：消息正文短且数量有限。
type Measurer struct {
	engine FontEngine
	fonts  Fonts

	mu    sync.Mutex
	cache map[cacheKey]float64
}

// NewMeasurer 创建测量器，engine 为 nil 时所有测量都退回估算值。
func NewMeasurer(engine FontEngine, fonts Fonts) *Measurer {
	return &Measurer{
		engine: engine,
		fonts:  fonts,
		cache:  map[cacheKey]float64{},
	}
}

// Width 返回 text 以 font/size 绘制时的宽度（mm），从不返回错误。
func (m *Measurer) Width(text, font string, size float64) float64 {
	key := cacheKey{text: text, font: font, size: size}
	m.mu.Lock()
	if w, ok := m.cache[key]; ok {
		m.mu.Unlock()
		return w
	}
	m.mu.Unlock()

	var w float64
	if !HasEmoji(text) {
		w = m.measureChain(text, size, font, m.fonts.Default)
	} else {
		for _, run := range Runs(text) {
			if run.Emoji {
				w += m.measureChain(baseGlyphs(run.Text), size, m.fonts.Emoji, font, m.fonts.Default)
				continue
			}
			w += m.measureChain(run.Text, size, font, m.fonts.Default)
		}
	}

	m.mu.Lock()
	m.cache[key] = w
	m.mu.Unlock()
	return w
}

// measureChain 依次尝试各字体，全部失败时返回估算值。
func (m *Measurer) measureChain(text string, size float64, fonts ...string) float64 {
	if text == "" {
		return 0
	}
	if m.engine != nil {
		tried := map[string]bool{}
		for _, f := range fonts {
			if f == "" || tried[f] {
				continue
			}
			tried[f] = true
			if w, err := m.engine.StringWidth(text, f, size); err == nil {
				return w
			}
		}
	}
	return Estimate(text, size)
}

// Estimate 字符数 × 字号 × 0.6，换算为 mm。
func Estimate(text string, size float64) float64 {
	return float64(utf8.RuneCountInString(text)) * size * estimateFactor * pointMM
}
