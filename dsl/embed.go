package dsl

import (
	_ "embed"
	"fmt"
)

//go:embed default.theme
var defaultTheme string

// DefaultSource 返回内置主题的源文本。
func DefaultSource() string { return defaultTheme }

// Default 解析内置主题。
func Default() (*Document, error) {
	doc, err := ParseString(defaultTheme)
	if err != nil {
		return nil, fmt.Errorf("解析内置主题失败: %w", err)
	}
	return doc, nil
}
