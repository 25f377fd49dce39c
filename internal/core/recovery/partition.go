package recovery

import (
	"context"
	"time"

	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              分区检测
// ============================================================================

// evaluatePartition 根据健康比例维护分区状态
//
// 比例连续 PartitionConfirmCycles 个周期低于阈值时判定分区，
// 同一分区只报告一次；比例回到阈值以上时解除并进入冷却期，
// 冷却期内不会再次判定。没有跟踪节点时不评估。
func (m *Manager) evaluatePartition() {
	var (
		detected  *types.PartitionDetectedEvent
		recovered *types.PartitionRecoveredEvent
	)

	m.mu.Lock()
	healthy, unhealthy := m.table.counts()
	total := healthy + unhealthy
	if total == 0 || m.closed {
		m.mu.Unlock()
		return
	}
	ratio := float64(healthy) / float64(total)
	now := m.clk.Now()

	if ratio < m.cfg.PartitionDetectionThreshold {
		switch {
		case m.partition != nil:
			m.partition.HealthyRatio = ratio
		case now.Before(m.cooldownUntil):
			logger.Debug("分区冷却期内，跳过判定", "ratio", ratio, "until", m.cooldownUntil)
		default:
			m.lowCycles++
			if m.lowCycles >= m.cfg.PartitionConfirmCycles {
				detected = m.declarePartitionLocked(ratio, now)
			}
		}
	} else {
		m.lowCycles = 0
		if m.partition != nil {
			recovered = &types.PartitionRecoveredEvent{
				HealthyRatio: ratio,
				Duration:     now.Sub(m.partition.DetectedAt),
				Time:         now,
			}
			m.partition = nil
			if m.partitionCancel != nil {
				m.partitionCancel()
				m.partitionCancel = nil
			}
			m.cooldownUntil = now.Add(m.cfg.PartitionRecoveryTimeout)
			m.table.each(func(rec *types.PeerHealthRecord) {
				if !rec.IsHealthy {
					m.scheduleReconnectLocked(rec)
				}
			})
		}
	}
	m.mu.Unlock()

	if detected != nil {
		logger.Warn("检测到网络分区", "ratio", ratio, "healthy", healthy, "total", total)
		m.partitioned.Emit(*detected)
		m.spawnPartitionRecovery()
	}
	if recovered != nil {
		logger.Info("网络分区已恢复", "ratio", ratio, "duration", recovered.Duration)
		m.healed.Emit(*recovered)
	}
}

// declarePartitionLocked 进入分区状态并取消所有待执行的单节点重连
func (m *Manager) declarePartitionLocked(ratio float64, now time.Time) *types.PartitionDetectedEvent {
	m.lowCycles = 0
	m.partitionRetry = 0
	m.partitionNext = time.Time{}
	m.partition = &types.NetworkPartitionState{
		DetectedAt:         now,
		HealthyRatio:       ratio,
		RecoveryInProgress: m.running,
	}
	m.cancelPendingLocked()
	m.table.each(func(rec *types.PeerHealthRecord) {
		if rec.State == types.PeerStateReconnecting {
			rec.State = types.PeerStateUnhealthy
		}
	})
	return &types.PartitionDetectedEvent{State: *m.partition, Cause: ErrPartitionDetected}
}

// retryPartitionRecovery 分区持续时按退避再执行一轮恢复
//
// 分区期间不安排单节点重连，断开的节点只能由恢复轮次重新拨号，
// 因此每个健康检查周期都检查是否到了下一轮的时间。
func (m *Manager) retryPartitionRecovery() {
	m.mu.Lock()
	due := m.partition != nil && m.partitionCancel == nil && !m.clk.Now().Before(m.partitionNext)
	m.mu.Unlock()
	if due {
		m.spawnPartitionRecovery()
	}
}

// spawnPartitionRecovery 异步执行一轮分区恢复，已有一轮在执行时跳过
func (m *Manager) spawnPartitionRecovery() {
	m.mu.Lock()
	if !m.running || m.partition == nil || m.partitionCancel != nil {
		m.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(m.runCtx)
	m.partitionCancel = cancel
	m.partitionRound++
	round := m.partitionRound
	m.partition.RecoveryInProgress = true
	m.mu.Unlock()

	m.spawn("partition-recovery", func(_ context.Context) {
		defer cancel()
		m.recoverFromPartition(ctx, round)
	})
}

// recoverFromPartition 一轮分区恢复：重拨不健康节点，然后执行回退链并连接其结果
//
// 重拨计入节点的重连次数，耗尽的节点被替换。本轮结束后按退避安排下一轮。
func (m *Manager) recoverFromPartition(ctx context.Context, round int) {
	restored := 0
	for _, id := range m.unhealthyPeers() {
		if ctx.Err() != nil {
			break
		}
		if m.recoverPeer(ctx, id) {
			restored++
		}
	}

	connected := 0
	if m.trigger != nil && ctx.Err() == nil {
		peers := m.trigger.HandleDiscoveryFailure(ctx, ErrPartitionDetected)
		connected = m.connectCandidates(ctx, peers, len(peers), "fallback")
	}

	m.mu.Lock()
	if m.partitionRound == round {
		m.partitionCancel = nil
		if m.partition != nil {
			m.partition.RecoveryInProgress = false
			m.partitionNext = m.clk.Now().Add(m.cfg.backoff(m.partitionRetry))
			m.partitionRetry++
		}
	}
	next := m.partitionNext
	m.mu.Unlock()
	logger.Info("分区恢复轮次结束", "round", round, "restored", restored, "connected", connected, "next", next)
}

// unhealthyPeers 当前不健康节点的 ID
func (m *Manager) unhealthyPeers() []types.PeerID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []types.PeerID
	m.table.each(func(rec *types.PeerHealthRecord) {
		if !rec.IsHealthy {
			ids = append(ids, rec.PeerID)
		}
	})
	return ids
}
