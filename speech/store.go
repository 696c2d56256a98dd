package speech

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"
)

var (
	transcriptPrefix = []byte("tx/")
	sweepKey         = []byte("meta/last_sweep")
)

// Store 把转写结果持久化在 pebble 中，键为音频内容的哈希。
// 值的前 8 字节为写入时间（unix 秒，大端），其后为文本。
type Store struct {
	db *pebble.DB
}

// OpenStore 打开或创建 dir 下的数据库。
func OpenStore(dir string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建转写缓存目录失败: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{Logger: log.Named("pebble").Sugar()})
	if err != nil {
		return nil, fmt.Errorf("打开转写缓存 %s 失败: %w", dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// ContentKey 计算音频文件内容的哈希。
func ContentKey(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return strconv.FormatUint(h.Sum64(), 16), nil
}

func transcriptKey(key string) []byte {
	return append(append([]byte{}, transcriptPrefix...), key...)
}

// Get 返回缓存的转写文本。
func (s *Store) Get(key string) (string, bool, error) {
	val, closer, err := s.db.Get(transcriptKey(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	defer closer.Close()
	if len(val) < 8 {
		return "", false, nil
	}
	return string(val[8:]), true, nil
}

// Put 写入转写文本。
func (s *Store) Put(key, text string, at time.Time) error {
	val := make([]byte, 8+len(text))
	binary.BigEndian.PutUint64(val, uint64(at.Unix()))
	copy(val[8:], text)
	return s.db.Set(transcriptKey(key), val, pebble.Sync)
}

// Len 返回缓存条目数。
func (s *Store) Len() (int, error) {
	n := 0
	err := s.scan(func(_ []byte, _ time.Time) { n++ })
	return n, err
}

// Sweep 条目数超过 threshold 时删除早于 now-maxAge 的转写。
func (s *Store) Sweep(threshold int, maxAge time.Duration, now time.Time) (int, error) {
	var all, stale [][]byte
	err := s.scan(func(k []byte, at time.Time) {
		all = append(all, k)
		if maxAge > 0 && now.Sub(at) > maxAge {
			stale = append(stale, k)
		}
	})
	if err != nil {
		return 0, err
	}
	if len(all) <= threshold || len(stale) == 0 {
		return 0, nil
	}
	b := s.db.NewBatch()
	defer b.Close()
	for _, k := range stale {
		if err := b.Delete(k, nil); err != nil {
			return 0, err
		}
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return 0, err
	}
	return len(stale), nil
}

func (s *Store) scan(fn func(key []byte, at time.Time)) error {
	upper := append(append([]byte{}, transcriptPrefix[:len(transcriptPrefix)-1]...), transcriptPrefix[len(transcriptPrefix)-1]+1)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: transcriptPrefix, UpperBound: upper})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), transcriptPrefix) {
			continue
		}
		var at time.Time
		if v := iter.Value(); len(v) >= 8 {
			at = time.Unix(int64(binary.BigEndian.Uint64(v)), 0)
		}
		fn(append([]byte{}, iter.Key()...), at)
	}
	return iter.Error()
}

// LastSweep 返回上次清理缓存的时间，从未清理时为零值。
func (s *Store) LastSweep() (time.Time, error) {
	val, closer, err := s.db.Get(sweepKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	defer closer.Close()
	t, err := time.Parse(time.RFC3339Nano, string(val))
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// MarkSweep 记录本次清理时间。
func (s *Store) MarkSweep(at time.Time) error {
	return s.db.Set(sweepKey, []byte(at.UTC().Format(time.RFC3339Nano)), pebble.Sync)
}
