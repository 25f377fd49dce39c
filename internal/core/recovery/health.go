package recovery

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// probeResult 单个节点的探测结果
type probeResult struct {
	id      types.PeerID
	latency time.Duration
	err     error
}

// ============================================================================
//                              健康检查
// ============================================================================

// RunHealthCheckCycle 执行一次健康检查周期
//
// 并发探测所有 Connected/Unhealthy 节点，更新连续失败次数，
// 然后检查不健康节点上限、评估分区并补足健康节点；
// 分区期间改为按退避重试分区恢复。
// 周期内的 panic 被记录后吞掉，下一周期照常执行。
func (m *Manager) RunHealthCheckCycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("健康检查周期 panic", "panic", r)
		}
	}()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	var targets []types.PeerID
	m.table.each(func(rec *types.PeerHealthRecord) {
		if rec.State == types.PeerStateConnected || rec.State == types.PeerStateUnhealthy {
			targets = append(targets, rec.PeerID)
		}
	})
	m.mu.Unlock()
	m.cycles.Add(1)

	results := m.probeAll(ctx, targets)
	if ctx.Err() != nil {
		return
	}
	m.applyResults(results)
	m.dropExcessUnhealthy()
	m.evaluatePartition()

	if m.Partition() == nil {
		m.ensureMinHealthy(ctx)
		return
	}
	m.retryPartitionRecovery()
}

// probeAll 受并发上限约束地探测一组节点
func (m *Manager) probeAll(ctx context.Context, ids []types.PeerID) []probeResult {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		out = make([]probeResult, 0, len(ids))
	)
	for _, id := range ids {
		if err := m.sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(id types.PeerID) {
			defer wg.Done()
			defer m.sem.Release(1)
			lat, err := m.probe(ctx, id)
			mu.Lock()
			out = append(out, probeResult{id: id, latency: lat, err: err})
			mu.Unlock()
		}(id)
	}
	wg.Wait()
	return out
}

// probe 在 HealthCheckTimeout 内探测节点
//
// 传输实现 Pinger 时使用 ping，否则打开并关闭一个健康探测流。
func (m *Manager) probe(ctx context.Context, id types.PeerID) (time.Duration, error) {
	pctx, cancel := context.WithTimeout(ctx, m.cfg.HealthCheckTimeout)
	defer cancel()

	if p, ok := m.transport.(interfaces.Pinger); ok {
		return p.Ping(pctx, id)
	}

	var conn interfaces.Connection
	for _, c := range m.transport.Connections() {
		if c.RemotePeer() == id {
			conn = c
			break
		}
	}
	if conn == nil {
		return 0, ErrNotConnected
	}
	start := m.clk.Now()
	s, err := m.transport.OpenStream(pctx, conn, m.cfg.HealthProtocol)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", m.cfg.HealthProtocol, err)
	}
	_ = s.Close()
	return m.clk.Since(start), nil
}

// applyResults 根据探测结果更新记录
func (m *Manager) applyResults(results []probeResult) {
	var (
		down []types.PeerUnhealthyEvent
		up   []types.PeerRecoveredEvent
	)

	m.mu.Lock()
	now := m.clk.Now()
	for _, r := range results {
		rec := m.table.get(r.id)
		if rec == nil {
			continue
		}
		rec.LastHealthCheck = now

		if r.err == nil {
			rec.LastLatency = r.latency
			rec.ConsecutiveFailures = 0
			if rec.State == types.PeerStateUnhealthy {
				if ev := m.markHealthyLocked(rec); ev != nil {
					up = append(up, *ev)
				}
			}
			continue
		}

		rec.ConsecutiveFailures++
		logger.Debug("健康探测失败", "peer", r.id.ShortString(), "failures", rec.ConsecutiveFailures, "error", r.err)
		switch rec.State {
		case types.PeerStateConnected:
			if rec.ConsecutiveFailures >= m.cfg.MaxConsecutiveFailures {
				if ev := m.markUnhealthyLocked(rec); ev != nil {
					down = append(down, *ev)
				}
			}
		case types.PeerStateUnhealthy:
			m.scheduleReconnectLocked(rec)
		}
	}
	m.mu.Unlock()

	for _, ev := range down {
		logger.Info("节点不健康", "peer", ev.PeerID.ShortString(), "failures", ev.ConsecutiveFailures)
		m.unhealthy.Emit(ev)
	}
	for _, ev := range up {
		m.recovered.Emit(ev)
	}
}

// dropExcessUnhealthy 不健康节点超过上限时删除失败次数最多的节点
func (m *Manager) dropExcessUnhealthy() {
	m.mu.Lock()
	var down []*types.PeerHealthRecord
	m.table.each(func(rec *types.PeerHealthRecord) {
		if !rec.IsHealthy {
			down = append(down, rec)
		}
	})
	excess := len(down) - m.cfg.MaxUnhealthyPeers
	if excess <= 0 {
		m.mu.Unlock()
		return
	}
	sortWorstFirst(down)
	dropped := make([]types.PeerID, 0, excess)
	for _, rec := range down[:excess] {
		dropped = append(dropped, rec.PeerID)
	}
	for _, id := range dropped {
		m.table.remove(id)
		if tok, ok := m.pending[id]; ok {
			tok.Cancel()
			delete(m.pending, id)
		}
	}
	m.mu.Unlock()

	for _, id := range dropped {
		m.replacePeer(id, "unhealthy_overflow")
	}
}

// sortWorstFirst 按连续失败次数降序、重连次数降序、ID 升序排列
func sortWorstFirst(recs []*types.PeerHealthRecord) {
	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if a.ConsecutiveFailures != b.ConsecutiveFailures {
			return a.ConsecutiveFailures > b.ConsecutiveFailures
		}
		if a.ReconnectAttempts != b.ReconnectAttempts {
			return a.ReconnectAttempts > b.ReconnectAttempts
		}
		return a.PeerID < b.PeerID
	})
}
