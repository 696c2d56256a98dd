package glyph

import "strings"

// Class 码点分类，用于区分需要表情字体的字符。
type Class int

const (
	Plain Class = iota
	EmojiStart
	Modifier // 变体选择符与肤色修饰符
	Joiner   // U+200D
)

const zwj = '\u200d'

// Classify 按 Unicode 区间分类；修饰符区间落在 U+1F300–1F5FF 内，需先于表情判断。
func Classify(r rune) Class {
	switch {
	case r == zwj:
		return Joiner
	case r >= 0xFE00 && r <= 0xFE0F, r >= 0x1F3FB && r <= 0x1F3FF:
		return Modifier
	case r >= 0x1F300 && r <= 0x1F5FF,
		r >= 0x1F600 && r <= 0x1F64F,
		r >= 0x1F680 && r <= 0x1F6FF,
		r >= 0x1F900 && r <= 0x1F9FF,
		r >= 0x2600 && r <= 0x26FF,
		r >= 0x2700 && r <= 0x27BF:
		return EmojiStart
	}
	return Plain
}

// HasEmoji 判断文本中是否包含表情区间的字符（含修饰符）。
func HasEmoji(s string) bool {
	for _, r := range s {
		if Classify(r) != Plain {
			return true
		}
	}
	return false
}

// Units 将文本切分为折行的最小单位：表情簇整体为一个单位，其余每个字符一个单位。
// 换行符单独成为一个单位，回车符被丢弃。
func Units(s string) []string {
	rs := []rune(s)
	out := make([]string, 0, len(rs))
	for i := 0; i < len(rs); {
		r := rs[i]
		if r == '\r' {
			i++
			continue
		}
		if Classify(r) == EmojiStart {
			end := clusterEnd(rs, i)
			out = append(out, string(rs[i:end]))
			i = end
			continue
		}
		out = append(out, string(r))
		i++
	}
	return out
}

// clusterEnd 返回从 start（表情起始字符）开始的表情簇的结束下标（不含）。
func clusterEnd(rs []rune, start int) int {
	i := start + 1
	for i < len(rs) {
		switch Classify(rs[i]) {
		case Modifier:
			i++
		case Joiner:
			if i+1 < len(rs) && Classify(rs[i+1]) == EmojiStart {
				i += 2
				continue
			}
			// 悬空的连接符并入当前簇
			return i + 1
		default:
			return i
		}
	}
	return i
}

// Run 是一段连续使用同一字体绘制的文本。
type Run struct {
	Text  string
	Emoji bool
}

// Runs 把一行文本拆成普通文本段与表情簇段，相邻的表情簇各自成段。
func Runs(line string) []Run {
	var runs []Run
	var plain strings.Builder
	flush := func() {
		if plain.Len() == 0 {
			return
		}
		runs = append(runs, Run{Text: plain.String()})
		plain.Reset()
	}
	rs := []rune(line)
	for i := 0; i < len(rs); {
		if Classify(rs[i]) == EmojiStart {
			flush()
			end := clusterEnd(rs, i)
			runs = append(runs, Run{Text: string(rs[i:end]), Emoji: true})
			i = end
			continue
		}
		plain.WriteRune(rs[i])
		i++
	}
	flush()
	return runs
}

// baseGlyphs 去掉簇中的修饰符与连接符，只保留需要计宽的表情字符。
func baseGlyphs(cluster string) string {
	var b strings.Builder
	for _, r := range cluster {
		if Classify(r) == EmojiStart {
			b.WriteRune(r)
		}
	}
	return b.String()
}
