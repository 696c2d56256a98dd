package chat

import (
	"strconv"
	"strings"
	"time"
)

// DateLayout 日期分组键的格式。
const DateLayout = "2006-01-02"

// DisplayLayout 气泡上方时间戳的格式。
const DisplayLayout = "2006-01-02 15:04:05"

var timeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006/01/02 15:04:05",
	"2006-01-02",
	"2006/01/02",
}

// ParseTimestamp 先按 Unix 秒解析，失败后依次尝试几种日期格式。
// 无法解析时返回 Unix 0 与 false；排序、分组与展示都使用这一个函数。
func ParseTimestamp(raw string, loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.Local
	}
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Unix(0, 0).In(loc), false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(n, 0).In(loc), true
	}
	// 部分导出工具会写成 1700000000.0
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Unix(int64(f), 0).In(loc), true
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Unix(0, 0).In(loc), false
}
