package chat

// Shortcode 查询单个短码。
func Shortcode(code string) (string, bool) {
	for i := 0; i+1 < len(shortcodePairs); i += 2 {
		if shortcodePairs[i] == code {
			return shortcodePairs[i+1], true
		}
	}
	return "", false
}
