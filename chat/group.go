package chat

import "sort"

// DateGroup 同一自然日的消息。
type DateGroup struct {
	Date     string
	Messages []Message
}

// SortMessages 按解析后的时间升序稳定排序，无法解析的时间按 Unix 0 处理。
// 返回新切片，入参保持不变。
func SortMessages(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	copy(out, msgs)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// GroupByDate 单次遍历已排序的消息，按日期分桶；分组顺序即排序后的日期顺序。
func GroupByDate(sorted []Message) []DateGroup {
	var groups []DateGroup
	index := map[string]int{}
	for _, m := range sorted {
		date := m.CreatedAt.Format(DateLayout)
		i, ok := index[date]
		if !ok {
			groups = append(groups, DateGroup{Date: date})
			i = len(groups) - 1
			index[date] = i
		}
		groups[i].Messages = append(groups[i].Messages, m)
	}
	return groups
}
