package recovery

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              重连
// ============================================================================

// scheduleReconnectLocked 按退避安排一次重连
//
// 分区期间、未运行或已有待执行重连时跳过。调用方持有 m.mu。
func (m *Manager) scheduleReconnectLocked(rec *types.PeerHealthRecord) {
	if !m.running || m.closed || m.partition != nil {
		return
	}
	if _, ok := m.pending[rec.PeerID]; ok {
		return
	}

	delay := m.cfg.backoff(rec.ReconnectAttempts)
	rec.State = types.PeerStateReconnecting
	rec.NextReconnectDelay = delay

	id := rec.PeerID
	tok, err := m.sched.After("recovery-reconnect", delay, func(ctx context.Context) {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		m.recoverPeer(ctx, id)
	}, scheduler.WithTimeout(m.cfg.DialTimeout+m.cfg.HealthCheckTimeout))
	if err != nil {
		logger.Warn("安排重连失败", "peer", id.ShortString(), "error", err)
		rec.State = types.PeerStateUnhealthy
		return
	}
	m.pending[id] = tok
	logger.Debug("已安排重连", "peer", id.ShortString(), "attempt", rec.ReconnectAttempts+1, "delay", delay)
}

// recoverPeer 对同一节点的并发恢复请求合并为一次
func (m *Manager) recoverPeer(ctx context.Context, id types.PeerID) bool {
	v, _, _ := m.flight.Do("peer/"+string(id), func() (interface{}, error) {
		return m.reconnectOnce(ctx, id), nil
	})
	ok, _ := v.(bool)
	return ok
}

// reconnectOnce 执行一次重连
//
// 成功时节点恢复健康；失败时增加重连次数，达到上限后删除记录、
// 关闭连接并发出替换事件，否则继续按退避安排下一次。
func (m *Manager) reconnectOnce(ctx context.Context, id types.PeerID) bool {
	m.mu.Lock()
	rec := m.table.get(id)
	if rec == nil || m.closed {
		m.mu.Unlock()
		return false
	}
	desc := types.PeerDescriptor{ID: id, Addrs: append([]types.Address(nil), rec.Addrs...)}
	m.mu.Unlock()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return false
	}
	err := m.dial(ctx, desc)
	m.sem.Release(1)
	m.reconnects.Add(1)

	m.mu.Lock()
	rec = m.table.get(id)
	if rec == nil {
		m.mu.Unlock()
		return err == nil
	}

	if err == nil {
		ev := m.markHealthyLocked(rec)
		m.mu.Unlock()
		if ev != nil {
			logger.Info("节点重连成功", "peer", id.ShortString(), "attempts", ev.Attempts)
			m.recovered.Emit(*ev)
		}
		return true
	}

	// 取消导致的失败不计入重连次数
	if ctx.Err() != nil {
		rec.State = types.PeerStateUnhealthy
		m.mu.Unlock()
		return false
	}

	rec.ReconnectAttempts++
	logger.Debug("节点重连失败", "peer", id.ShortString(), "attempt", rec.ReconnectAttempts, "error", err)
	if rec.ReconnectAttempts >= m.cfg.MaxReconnectAttempts {
		m.table.remove(id)
		m.mu.Unlock()

		m.replacePeer(id, "reconnect_exhausted")
		return false
	}
	rec.State = types.PeerStateUnhealthy
	m.scheduleReconnectLocked(rec)
	m.mu.Unlock()
	return false
}

// replacePeer 关闭已删除节点的连接，发出替换事件并补充健康节点
func (m *Manager) replacePeer(id types.PeerID, reason string) {
	if err := m.transport.ClosePeer(id); err != nil {
		logger.Debug("关闭连接失败", "peer", id.ShortString(), "error", err)
	}
	m.replaces.Add(1)
	logger.Info("节点已替换", "peer", id.ShortString(), "reason", reason)
	m.replaced.Emit(types.PeerReplacedEvent{PeerID: id, Reason: reason, Time: m.clk.Now()})
	m.spawn("replace", m.ensureMinHealthy)
}

// dial 在 DialTimeout 内拨号并记录交互
func (m *Manager) dial(ctx context.Context, desc types.PeerDescriptor) error {
	dctx, cancel := context.WithTimeout(ctx, m.cfg.DialTimeout)
	defer cancel()

	start := m.clk.Now()
	_, err := m.transport.Dial(dctx, desc)
	m.record(desc.ID, err, m.clk.Since(start))
	if err != nil {
		return &RecoveryError{Op: "dial", PeerID: string(desc.ID), Err: fmt.Errorf("%w: %v", ErrDialFailed, err)}
	}
	return nil
}

// ============================================================================
//                              手动恢复
// ============================================================================

// ForcePeerRecovery 立即重连一个跟踪的节点，返回是否成功
//
// 已健康且连接存在的节点直接返回 true；未跟踪的节点返回 false。
func (m *Manager) ForcePeerRecovery(ctx context.Context, id types.PeerID) bool {
	m.mu.Lock()
	rec := m.table.get(id)
	if rec == nil || m.closed {
		m.mu.Unlock()
		return false
	}
	healthy := rec.IsHealthy && rec.State == types.PeerStateConnected
	if tok, ok := m.pending[id]; ok {
		tok.Cancel()
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if healthy && m.hasConnection(id) {
		return true
	}
	return m.recoverPeer(ctx, id)
}

// ForceNetworkRecovery 网络级恢复
//
// 重连所有不健康节点，执行引导回退链并连接其结果，最后补足健康节点。
func (m *Manager) ForceNetworkRecovery(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var down []types.PeerID
	m.table.each(func(rec *types.PeerHealthRecord) {
		if !rec.IsHealthy {
			down = append(down, rec.PeerID)
		}
	})
	m.mu.Unlock()

	logger.Info("强制网络恢复", "unhealthy", len(down))
	for _, id := range down {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.ForcePeerRecovery(ctx, id)
	}

	if m.trigger != nil {
		peers := m.trigger.HandleDiscoveryFailure(ctx, ErrPartitionDetected)
		m.connectCandidates(ctx, peers, len(peers), "fallback")
	}
	m.ensureMinHealthy(ctx)
	return ctx.Err()
}

// ResetPeerConnections 关闭并重建不健康节点的连接，健康节点不受影响
//
// 重建失败的节点保持不健康并进入重连，返回的错误合并了每个失败节点。
func (m *Manager) ResetPeerConnections(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	var descs []types.PeerDescriptor
	for _, rec := range m.table.snapshot() {
		if !rec.IsHealthy {
			descs = append(descs, types.PeerDescriptor{ID: rec.PeerID, Addrs: rec.Addrs})
		}
	}
	m.mu.Unlock()

	logger.Info("重置节点连接", "count", len(descs))
	var errs error
	for _, d := range descs {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		_ = m.transport.ClosePeer(d.ID)
		err := m.dial(ctx, d)

		m.mu.Lock()
		rec := m.table.get(d.ID)
		if rec == nil {
			m.mu.Unlock()
			continue
		}
		if err == nil {
			ev := m.markHealthyLocked(rec)
			m.mu.Unlock()
			if ev != nil {
				m.recovered.Emit(*ev)
			}
			continue
		}
		errs = multierr.Append(errs, err)
		if rec.State != types.PeerStateReconnecting {
			rec.State = types.PeerStateUnhealthy
			m.scheduleReconnectLocked(rec)
		}
		m.mu.Unlock()
	}
	return errs
}
