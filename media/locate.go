package media

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

var datePattern = regexp.MustCompile(`\d{4}-\d{2}(-\d{2})?`)

var errIndexFull = errors.New("index full")

// Locator 在导出目录中查找本地媒体文件：先按几种已知存储布局拼路径，
// 最后退回到按文件名在整个目录树中搜索。
type Locator struct {
	root       string
	maxIndexed int
	log        *zap.Logger

	once  sync.Once
	index map[string][]string // 小写文件名 → 路径
	names []string            // 已排序的小写文件名，用于模式匹配
}

// NewLocator 以 root 为搜索根目录。maxIndexed 限制递归搜索时索引的文件数。
func NewLocator(root string, maxIndexed int, log *zap.Logger) *Locator {
	if root == "" {
		root = "."
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Locator{root: root, maxIndexed: maxIndexed, log: log}
}

// Locate 返回第一个存在的候选路径。
func (l *Locator) Locate(ref string, kind Kind, owner string) (string, bool) {
	for _, candidate := range l.candidates(ref, kind, owner) {
		found := isFile(candidate)
		l.observe(kind, candidate, found)
		if found {
			return candidate, true
		}
	}
	if p, ok := l.search(ref, kind); ok {
		l.observe(kind, p, true)
		return p, true
	}
	l.observe(kind, "**/"+baseName(ref), false)
	return "", false
}

// observe 语音文件的布局变化最多，每次尝试都以 info 级别记录。
func (l *Locator) observe(kind Kind, path string, found bool) {
	if kind == KindVoice {
		l.log.Info("查找语音文件", zap.String("candidate", path), zap.Bool("found", found))
		return
	}
	l.log.Debug("查找媒体文件", zap.String("kind", string(kind)), zap.String("candidate", path), zap.Bool("found", found))
}

// candidates 按优先级生成候选路径并去重。
func (l *Locator) candidates(ref string, kind Kind, owner string) []string {
	var out []string
	seen := map[string]bool{}
	add := func(parts ...string) {
		p := filepath.Join(parts...)
		if p == "" || p == "." || seen[p] {
			return
		}
		seen[p] = true
		out = append(out, p)
	}
	rooted := func(parts ...string) {
		if len(parts) > 0 && filepath.IsAbs(parts[0]) {
			add(parts...)
			return
		}
		add(append([]string{l.root}, parts...)...)
	}

	normalized := filepath.FromSlash(strings.ReplaceAll(ref, `\`, "/"))
	name := baseName(ref)

	// 字面路径
	add(ref)
	rooted(normalized)

	// 群聊引用形如 12345@chatroom\xxx.jpg
	if strings.Contains(ref, `\`) && strings.Contains(ref, "@chatroom") {
		if parts := strings.Split(ref, `\`); len(parts) == 2 {
			room, file := parts[0], parts[1]
			for _, dir := range kind.dirNames() {
				rooted(owner, dir, room, file)
			}
			rooted(room, file)
			rooted(owner, room, file)
		}
	}

	// 语音文件常按月份分目录
	if kind == KindVoice && datePattern.MatchString(normalized) {
		chatID := strings.SplitN(filepath.ToSlash(normalized), "/", 2)[0]
		for _, dir := range kind.dirNames() {
			rooted(owner, dir, normalized)
			rooted(owner, dir, name)
			if chatID != "" && chatID != name {
				rooted(owner, dir, chatID, name)
			}
		}
	}

	// FileStorage 约定
	for _, dir := range kind.dirNames() {
		for _, sub := range kind.storageDirs() {
			rooted(owner, dir, "FileStorage", sub, name)
		}
	}
	for _, dir := range kind.dirNames() {
		for _, sub := range kind.storageDirs() {
			rooted(dir, "FileStorage", sub, name)
		}
	}

	// 按类别目录
	for _, dir := range kind.dirNames() {
		rooted(owner, dir, normalized)
		rooted(owner, dir, name)
		rooted(dir, normalized)
		rooted(dir, name)
	}
	return out
}

// search 在目录树中按文件名模式搜索，模式按优先级排列。
func (l *Locator) search(ref string, kind Kind) (string, bool) {
	name := strings.ToLower(baseName(ref))
	if name == "" {
		return "", false
	}
	l.once.Do(l.buildIndex)

	stem := strings.TrimSuffix(name, ".dat")
	var patterns []func(string) bool
	exact := func(n string) bool { return n == name }
	switch kind {
	case KindImage, KindEmoji, KindAvatar:
		patterns = []func(string) bool{
			exact,
			func(n string) bool {
				return n == name+".jpg" || n == name+".png" || n == stem+".jpg" || n == stem+".png"
			},
			func(n string) bool {
				return strings.HasPrefix(n, name+"_") && strings.HasSuffix(n, ".jpg")
			},
			func(n string) bool {
				return stem != "" && strings.Contains(n, stem) && strings.HasSuffix(n, ".jpg")
			},
		}
	case KindVideo, KindVoice:
		patterns = []func(string) bool{
			exact,
			func(n string) bool { return strings.HasPrefix(n, name+".") },
			func(n string) bool { return strings.Contains(n, name) },
		}
	default:
		patterns = []func(string) bool{exact}
	}

	for _, match := range patterns {
		for _, n := range l.names {
			if !match(n) {
				continue
			}
			for _, p := range l.index[n] {
				if isFile(p) {
					return p, true
				}
			}
		}
	}
	return "", false
}

// buildIndex 遍历一次搜索根目录，建立文件名索引。
func (l *Locator) buildIndex() {
	l.index = map[string][]string{}
	count := 0
	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// 无权限等错误跳过该目录
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != l.root && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		key := strings.ToLower(d.Name())
		l.index[key] = append(l.index[key], path)
		count++
		if l.maxIndexed > 0 && count >= l.maxIndexed {
			return errIndexFull
		}
		return nil
	})
	if errors.Is(err, errIndexFull) {
		l.log.Warn("媒体目录文件过多，递归搜索只覆盖部分文件", zap.Int("indexed", count))
	} else if err != nil {
		l.log.Warn("遍历媒体目录失败", zap.String("root", l.root), zap.Error(err))
	}
	l.names = make([]string, 0, len(l.index))
	for n, paths := range l.index {
		sort.Strings(paths)
		l.names = append(l.names, n)
	}
	sort.Strings(l.names)
	l.log.Debug("媒体目录索引完成", zap.Int("files", count))
}

func baseName(ref string) string {
	n := filepath.Base(filepath.FromSlash(strings.ReplaceAll(ref, `\`, "/")))
	if n == "." || n == string(filepath.Separator) {
		return ""
	}
	return n
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular()
}
