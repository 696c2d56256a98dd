package glyph

// CacheLen 返回缓存条目数。
func (m *Measurer) CacheLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache)
}
