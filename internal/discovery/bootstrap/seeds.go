package bootstrap

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

// DialSeeds 并发拨号所有种子
//
// 每次拨号都记录一条连接交互（更新可靠性）。返回可达种子的描述，
// 按拨号后的可靠性降序排列。没有种子时返回 ErrNoBootstrapPeers，
// 全部失败时返回 ErrAllConnectionsFailed。
func (e *Engine) DialSeeds(ctx context.Context) ([]types.PeerDescriptor, error) {
	if e.isClosed() {
		return nil, ErrAlreadyClosed
	}
	seeds := e.Seeds()
	if len(seeds) == 0 {
		return nil, ErrNoBootstrapPeers
	}

	logger.Debug("开始拨号种子节点", "count", len(seeds), "concurrency", e.cfg.MaxConcurrentDials)

	var (
		mu        sync.Mutex
		reachable = make(map[types.PeerID]struct{}, len(seeds))
	)
	g := new(errgroup.Group)
	g.SetLimit(e.cfg.MaxConcurrentDials)
	for _, rec := range seeds {
		rec := rec
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if e.dialSeed(ctx, rec) {
				mu.Lock()
				reachable[rec.ID] = struct{}{}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(reachable) == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Warn("所有种子节点拨号失败", "count", len(seeds))
		return nil, ErrAllConnectionsFailed
	}

	// 可靠性在拨号后已更新，重新排序
	ordered := e.Seeds()
	out := make([]types.PeerDescriptor, 0, len(reachable))
	for _, rec := range ordered {
		if _, ok := reachable[rec.ID]; ok {
			out = append(out, rec.Descriptor())
		}
	}
	logger.Info("种子节点拨号完成", "reachable", len(out), "total", len(seeds))
	return out, nil
}

// dialSeed 拨号单个种子并记录结果
func (e *Engine) dialSeed(ctx context.Context, rec types.BootstrapNodeRecord) bool {
	dctx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()

	start := e.clk.Now()
	_, err := e.transport.Dial(dctx, rec.Descriptor())
	latency := e.clk.Since(start)

	meta := types.InteractionMeta{LatencyMs: float64(latency.Microseconds()) / 1000}
	if err != nil {
		meta.LatencyMs = 0
		meta.ErrorReason = err.Error()
		logger.Debug("种子节点拨号失败", "peer", log.TruncateID(string(rec.ID), 8), "error", err)
	}
	e.RecordInteraction(rec.ID, types.InteractionConnection, err == nil, meta)
	return err == nil
}

// ConnectSeeds 拨号种子并返回成功数
func (e *Engine) ConnectSeeds(ctx context.Context) (int, error) {
	peers, err := e.DialSeeds(ctx)
	return len(peers), err
}
