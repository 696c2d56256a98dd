package fonts

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ErrNotFound 表示候选列表中没有可读的字体文件。
var ErrNotFound = errors.New("未找到可用字体")

// 常见系统的中文字体位置。
var systemPrimary = map[string][]string{
	"linux": {
		"/usr/share/fonts/opentype/noto/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/noto-cjk/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/google-noto-cjk/NotoSansCJK-Regular.ttc",
		"/usr/share/fonts/truetype/wqy/wqy-microhei.ttc",
		"/usr/share/fonts/wenquanyi/wqy-microhei/wqy-microhei.ttc",
	},
	"darwin": {
		"/System/Library/Fonts/PingFang.ttc",
		"/System/Library/Fonts/STHeiti Medium.ttc",
		"/Library/Fonts/Arial Unicode.ttf",
	},
	"windows": {
		`C:\Windows\Fonts\msyh.ttc`,
		`C:\Windows\Fonts\simhei.ttf`,
		`C:\Windows\Fonts\simsun.ttc`,
	},
}

var systemEmoji = map[string][]string{
	"linux": {
		"/usr/share/fonts/truetype/noto/NotoColorEmoji.ttf",
		"/usr/share/fonts/noto/NotoColorEmoji.ttf",
		"/usr/share/fonts/google-noto-emoji/NotoColorEmoji.ttf",
	},
	"darwin": {
		"/System/Library/Fonts/Apple Color Emoji.ttc",
	},
	"windows": {
		`C:\Windows\Fonts\seguiemj.ttf`,
	},
}

// SystemPrimary 返回当前系统的默认正文字体候选。
func SystemPrimary() []string { return systemPrimary[runtime.GOOS] }

// SystemEmoji 返回当前系统的默认表情字体候选。
func SystemEmoji() []string { return systemEmoji[runtime.GOOS] }

// Locate 返回第一个存在且为普通文件的候选路径，支持 ~ 开头的路径。
func Locate(candidates ...[]string) (string, error) {
	for _, group := range candidates {
		for _, c := range group {
			path := expandHome(strings.TrimSpace(c))
			if path == "" {
				continue
			}
			info, err := os.Stat(path)
			if err != nil || !info.Mode().IsRegular() {
				continue
			}
			return path, nil
		}
	}
	return "", ErrNotFound
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
