package media

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Prefetcher 在排版前并发解析远端媒体与头像，结果落在缓存目录中，
// 排版阶段再次解析时直接命中缓存。
type Prefetcher struct {
	resolver *Resolver
	workers  int
	log      *zap.Logger
}

// NewPrefetcher workers 为并发上限，<=0 时为 1。
func NewPrefetcher(resolver *Resolver, workers int, log *zap.Logger) *Prefetcher {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Prefetcher{resolver: resolver, workers: workers, log: log}
}

// PrefetchStats 一次预取的统计。
type PrefetchStats struct {
	Requested int
	Resolved  int
	Failed    int
}

// Run 解析全部请求；单个失败只记日志，返回的错误只可能来自 ctx 取消。
func (p *Prefetcher) Run(ctx context.Context, reqs []Request) (PrefetchStats, error) {
	unique := make([]Request, 0, len(reqs))
	seen := map[string]bool{}
	for _, req := range reqs {
		if req.Ref == "" {
			continue
		}
		key := p.resolver.CachePath(req)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, req)
	}

	results := make([]bool, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for i, req := range unique {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if _, err := p.resolver.Resolve(gctx, req); err != nil {
				p.log.Debug("预取媒体失败", zap.String("kind", string(req.Kind)), zap.String("ref", req.Ref), zap.Error(err))
				return nil
			}
			results[i] = true
			return nil
		})
	}
	err := g.Wait()

	stats := PrefetchStats{Requested: len(unique)}
	for _, ok := range results {
		if ok {
			stats.Resolved++
		} else {
			stats.Failed++
		}
	}
	p.log.Info("媒体预取完成",
		zap.Int("requested", stats.Requested),
		zap.Int("resolved", stats.Resolved),
		zap.Int("failed", stats.Failed))
	return stats, err
}
