package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/adhocore/gronx"
	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// SweepPolicy 缓存清理策略。
// 文件数超过 Threshold 时删除早于 MaxAge 的文件；MaxBytes > 0 时再按修改时间
// 从旧到新删除，直到总大小不超过上限。
type SweepPolicy struct {
	Threshold int
	MaxAge    time.Duration
	MaxBytes  uint64
}

// SweepStats 一次清理的结果。
type SweepStats struct {
	Files   int
	Removed int
	Freed   uint64
}

type cacheEntry struct {
	path string
	size uint64
	mod  time.Time
}

// SweepDir 清理 dir 下的普通文件（不递归）。目录不存在视为空。
func SweepDir(dir string, policy SweepPolicy, now time.Time, log *zap.Logger) (SweepStats, error) {
	if log == nil {
		log = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return SweepStats{}, nil
	}
	if err != nil {
		return SweepStats{}, fmt.Errorf("读取缓存目录 %s 失败: %w", dir, err)
	}

	var files []cacheEntry
	var total uint64
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, cacheEntry{
			path: filepath.Join(dir, e.Name()),
			size: uint64(info.Size()),
			mod:  info.ModTime(),
		})
		total += uint64(info.Size())
	}
	stats := SweepStats{Files: len(files)}

	sort.Slice(files, func(i, j int) bool { return files[i].mod.Before(files[j].mod) })
	removed := make([]bool, len(files))
	remove := func(i int) {
		if err := os.Remove(files[i].path); err != nil {
			log.Debug("删除缓存文件失败", zap.String("path", files[i].path), zap.Error(err))
			return
		}
		removed[i] = true
		stats.Removed++
		stats.Freed += files[i].size
		total -= files[i].size
	}

	if policy.Threshold >= 0 && len(files) > policy.Threshold && policy.MaxAge > 0 {
		for i, f := range files {
			if now.Sub(f.mod) > policy.MaxAge {
				remove(i)
			}
		}
	}
	if policy.MaxBytes > 0 {
		for i := range files {
			if total <= policy.MaxBytes {
				break
			}
			if !removed[i] {
				remove(i)
			}
		}
	}

	if stats.Removed > 0 {
		log.Info("清理缓存",
			zap.String("dir", dir),
			zap.Int("removed", stats.Removed),
			zap.String("freed", humanize.Bytes(stats.Freed)),
			zap.String("remaining", humanize.Bytes(total)))
	}
	return stats, nil
}

// SweepDue 判断自 last 之后 cron 表达式是否已到期。last 为零值或表达式为空时总是到期。
func SweepDue(expr string, last, now time.Time) (bool, error) {
	if expr == "" || last.IsZero() {
		return true, nil
	}
	next, err := gronx.NextTickAfter(expr, last, false)
	if err != nil {
		return false, fmt.Errorf("计算清理时间失败: %w", err)
	}
	return !next.After(now), nil
}
