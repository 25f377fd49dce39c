package recovery

import (
	"context"

	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              节点替换
// ============================================================================

// ensureMinHealthy 健康节点低于下限时从候选来源补充
//
// 依次询问各来源（discovery、bootstrap、其他），跳过已跟踪节点与本节点，
// 补充数量不超过跟踪上限。并发调用合并为一次。
func (m *Manager) ensureMinHealthy(ctx context.Context) {
	m.Replenish(ctx)
}

func (m *Manager) fillHealthy(ctx context.Context) int {
	total := 0
	for _, src := range m.sources {
		want := m.replacementWant()
		if want <= 0 || ctx.Err() != nil {
			break
		}
		cands, err := src.FindCandidates(ctx, want, m.excluded)
		if err != nil {
			logger.Debug("候选来源没有结果", "source", src.Name(), "error", err)
			continue
		}
		total += m.connectCandidates(ctx, cands, want, src.Name())
	}
	if total > 0 {
		logger.Info("已补充健康节点", "added", total)
	}
	return total
}

// replacementWant 需要补充的节点数
func (m *Manager) replacementWant() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0
	}
	healthy, unhealthy := m.table.counts()
	want := m.cfg.MinHealthyPeers - healthy
	if room := m.cfg.MaxPeers - (healthy + unhealthy); room < want {
		want = room
	}
	return want
}

// excluded 候选过滤：本节点与已跟踪节点
func (m *Manager) excluded(id types.PeerID) bool {
	if id == m.self {
		return true
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.get(id) != nil
}

// connectCandidates 依次拨号候选直到成功 want 个，返回成功数
func (m *Manager) connectCandidates(ctx context.Context, cands []types.PeerDescriptor, want int, source string) int {
	n := 0
	for _, c := range cands {
		if n >= want || ctx.Err() != nil {
			break
		}
		if c.ID.IsEmpty() || m.excluded(c.ID) {
			continue
		}
		if err := m.sem.Acquire(ctx, 1); err != nil {
			break
		}
		err := m.dial(ctx, c)
		m.sem.Release(1)
		if err != nil {
			logger.Debug("候选拨号失败", "peer", c.ID.ShortString(), "source", source, "error", err)
			continue
		}
		if err := m.TrackPeer(c); err != nil {
			logger.Debug("无法跟踪候选", "peer", c.ID.ShortString(), "error", err)
			break
		}
		n++
	}
	return n
}

// Replenish 立即补充健康节点，返回新连接数
func (m *Manager) Replenish(ctx context.Context) int {
	v, _, _ := m.flight.Do("replace", func() (interface{}, error) {
		return m.fillHealthy(ctx), nil
	})
	n, _ := v.(int)
	return n
}

// ConnectPeers 拨号并跟踪一组外部给出的节点，受跟踪上限约束，返回成功数
func (m *Manager) ConnectPeers(ctx context.Context, peers []types.PeerDescriptor) int {
	return m.connectCandidates(ctx, peers, len(peers), "external")
}
