package recovery

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("core/recovery")

// sourceOrder 候选来源的询问顺序，未列出的来源排在最后
var sourceOrder = map[string]int{"discovery": 0, "bootstrap": 1}

// ============================================================================
//                              Manager
// ============================================================================

// Manager 连接恢复管理器
type Manager struct {
	cfg       Config
	transport interfaces.Transport
	self      types.PeerID
	sched     *scheduler.Scheduler
	clk       clock.Clock

	sources  []interfaces.CandidateSource
	trigger  interfaces.FallbackTrigger
	recorder interfaces.InteractionRecorder

	mu              sync.Mutex
	table           *peerTable
	pending         map[types.PeerID]*scheduler.Token
	partition       *types.NetworkPartitionState
	lowCycles       int
	cooldownUntil   time.Time
	partitionCancel context.CancelFunc
	partitionRound  int
	partitionRetry  int
	partitionNext   time.Time
	healthTok       *scheduler.Token
	runCtx          context.Context
	runCancel       context.CancelFunc
	running         bool
	closed          bool

	sem    *semaphore.Weighted
	flight singleflight.Group
	wg     sync.WaitGroup

	cycles     atomic.Int64
	reconnects atomic.Int64
	replaces   atomic.Int64

	unhealthy   *eventbus.Topic[types.PeerUnhealthyEvent]
	recovered   *eventbus.Topic[types.PeerRecoveredEvent]
	replaced    *eventbus.Topic[types.PeerReplacedEvent]
	partitioned *eventbus.Topic[types.PartitionDetectedEvent]
	healed      *eventbus.Topic[types.PartitionRecoveredEvent]
}

// Option 管理器选项
type Option func(*Manager)

// WithCandidateSources 设置替换候选来源（按名称排序：discovery、bootstrap、其他）
func WithCandidateSources(sources ...interfaces.CandidateSource) Option {
	return func(m *Manager) {
		for _, s := range sources {
			if s != nil {
				m.sources = append(m.sources, s)
			}
		}
	}
}

// WithFallbackTrigger 设置分区时使用的回退链
func WithFallbackTrigger(t interfaces.FallbackTrigger) Option {
	return func(m *Manager) { m.trigger = t }
}

// WithInteractionRecorder 设置拨号结果的接收者
func WithInteractionRecorder(r interfaces.InteractionRecorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// NewManager 创建恢复管理器
func NewManager(cfg Config, tr interfaces.Transport, sched *scheduler.Scheduler, opts ...Option) (*Manager, error) {
	if tr == nil {
		return nil, errors.New("recovery: transport cannot be nil")
	}
	if sched == nil {
		return nil, errors.New("recovery: scheduler cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:         cfg,
		transport:   tr,
		self:        tr.LocalPeer(),
		sched:       sched,
		clk:         sched.Clock(),
		table:       newPeerTable(),
		pending:     make(map[types.PeerID]*scheduler.Token),
		runCtx:      ctx,
		runCancel:   cancel,
		sem:         semaphore.NewWeighted(int64(cfg.MaxConcurrentOps)),
		unhealthy:   eventbus.NewTopic[types.PeerUnhealthyEvent]("recovery.peer_unhealthy"),
		recovered:   eventbus.NewTopic[types.PeerRecoveredEvent]("recovery.peer_recovered"),
		replaced:    eventbus.NewTopic[types.PeerReplacedEvent]("recovery.peer_replaced"),
		partitioned: eventbus.NewTopic[types.PartitionDetectedEvent]("recovery.partition_detected"),
		healed:      eventbus.NewTopic[types.PartitionRecoveredEvent]("recovery.partition_recovered"),
	}
	for _, opt := range opts {
		opt(m)
	}
	sort.SliceStable(m.sources, func(i, j int) bool {
		return rank(m.sources[i]) < rank(m.sources[j])
	})
	return m, nil
}

func rank(s interfaces.CandidateSource) int {
	if r, ok := sourceOrder[s.Name()]; ok {
		return r
	}
	return len(sourceOrder)
}

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动健康检查循环，已启动时直接返回
//
// 之前停止时处于不健康状态的节点会重新进入重连。
func (m *Manager) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.running {
		return nil
	}
	if m.runCtx.Err() != nil {
		m.runCtx, m.runCancel = context.WithCancel(context.Background())
	}

	tok, err := m.sched.Every("recovery-health-check", m.cfg.HealthCheckInterval,
		m.RunHealthCheckCycle, scheduler.WithTimeout(m.cfg.HealthCheckInterval))
	if err != nil {
		return fmt.Errorf("recovery: schedule health check: %w", err)
	}
	m.healthTok = tok
	m.running = true
	if m.partition != nil {
		m.partition.RecoveryInProgress = false
	}

	m.table.each(func(rec *types.PeerHealthRecord) {
		if !rec.IsHealthy {
			rec.State = types.PeerStateUnhealthy
			m.scheduleReconnectLocked(rec)
		}
	})
	logger.Info("恢复管理器已启动", "interval", m.cfg.HealthCheckInterval, "tracked", m.table.len())
	return nil
}

// Stop 停止循环并取消所有进行中的重连与分区恢复，记录保留
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	healthTok := m.healthTok
	if healthTok != nil {
		healthTok.Cancel()
		m.healthTok = nil
	}
	m.cancelPendingLocked()
	if m.partitionCancel != nil {
		m.partitionCancel()
		m.partitionCancel = nil
	}
	m.runCancel()
	m.mu.Unlock()

	// 等待正在执行的健康检查周期返回，之后再清理记录
	if healthTok != nil {
		<-healthTok.Done()
	}
	m.wg.Wait()
	logger.Info("恢复管理器已停止")
}

// CloseConnections 关闭所有跟踪的连接并清空记录
func (m *Manager) CloseConnections() error {
	m.mu.Lock()
	ids := m.table.ids()
	m.cancelPendingLocked()
	m.table.clear()
	m.partition = nil
	m.lowCycles = 0
	m.mu.Unlock()

	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, m.transport.ClosePeer(id))
	}
	if len(ids) > 0 {
		logger.Info("已关闭所有跟踪连接", "count", len(ids))
	}
	return errs
}

// Close 停止并清空状态，关闭事件主题；多次调用安全
func (m *Manager) Close() error {
	m.Stop()

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.cancelPendingLocked()
	m.table.clear()
	m.partition = nil
	m.mu.Unlock()

	m.unhealthy.Close()
	m.recovered.Close()
	m.replaced.Close()
	m.partitioned.Close()
	m.healed.Close()
	return nil
}

// Running 健康检查循环是否在运行
func (m *Manager) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Manager) cancelPendingLocked() {
	for id, tok := range m.pending {
		tok.Cancel()
		delete(m.pending, id)
	}
}

// spawn 在管理器生命周期内异步执行 fn，未运行时不执行
func (m *Manager) spawn(name string, fn func(ctx context.Context)) {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	ctx := m.runCtx
	m.wg.Add(1)
	m.mu.Unlock()

	go func() {
		defer m.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error("恢复任务 panic", "task", name, "panic", r)
			}
		}()
		fn(ctx)
	}()
}

// ============================================================================
//                              节点跟踪
// ============================================================================

// TrackPeer 开始跟踪一个已连接的节点，已跟踪时只更新地址
func (m *Manager) TrackPeer(desc types.PeerDescriptor) error {
	if desc.ID.IsEmpty() || desc.ID == m.self {
		return fmt.Errorf("recovery: cannot track %q", desc.ID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if rec := m.table.get(desc.ID); rec != nil {
		if len(desc.Addrs) > 0 {
			rec.Addrs = append([]types.Address(nil), desc.Addrs...)
		}
		return nil
	}
	if m.table.len() >= m.cfg.MaxPeers {
		return ErrMaxPeers
	}
	m.table.put(types.PeerHealthRecord{
		PeerID:      desc.ID,
		Addrs:       append([]types.Address(nil), desc.Addrs...),
		State:       types.PeerStateConnected,
		IsHealthy:   true,
		ConnectedAt: m.clk.Now(),
	})
	return nil
}

// IsTracked 节点是否被跟踪
func (m *Manager) IsTracked(id types.PeerID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.get(id) != nil
}

// TrackedPeers 跟踪的节点数
func (m *Manager) TrackedPeers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.table.len()
}

// OnPeerConnected 处理 peer:connect
//
// 新节点在容量允许时开始跟踪；不健康的节点恢复为 Connected。
func (m *Manager) OnPeerConnected(ev types.ConnEvent) {
	if ev.PeerID.IsEmpty() || ev.PeerID == m.self {
		return
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	rec := m.table.get(ev.PeerID)
	if rec == nil {
		if m.table.len() >= m.cfg.MaxPeers {
			m.mu.Unlock()
			logger.Debug("已达到跟踪上限，不跟踪新连接", "peer", ev.PeerID.ShortString(), "max", m.cfg.MaxPeers)
			return
		}
		m.table.put(types.PeerHealthRecord{
			PeerID:      ev.PeerID,
			Addrs:       append([]types.Address(nil), ev.Addrs...),
			State:       types.PeerStateConnected,
			IsHealthy:   true,
			ConnectedAt: m.clk.Now(),
		})
		m.mu.Unlock()
		logger.Debug("开始跟踪节点", "peer", ev.PeerID.ShortString(), "direction", ev.Direction.String())
		return
	}
	if len(ev.Addrs) > 0 {
		rec.Addrs = append([]types.Address(nil), ev.Addrs...)
	}
	recoveredEv := m.markHealthyLocked(rec)
	m.mu.Unlock()

	if recoveredEv != nil {
		m.recovered.Emit(*recoveredEv)
	}
}

// OnPeerDisconnected 处理 peer:disconnect
//
// 传输层仍有连接时视为过期事件忽略；否则节点变为不健康并按退避重连。
func (m *Manager) OnPeerDisconnected(id types.PeerID) {
	if m.hasConnection(id) {
		return
	}
	m.mu.Lock()
	rec := m.table.get(id)
	if m.closed || rec == nil {
		m.mu.Unlock()
		return
	}
	unhealthyEv := m.markUnhealthyLocked(rec)
	m.mu.Unlock()

	if unhealthyEv != nil {
		logger.Info("节点断开", "peer", id.ShortString())
		m.unhealthy.Emit(*unhealthyEv)
	}
}

// RemovePeer 停止跟踪并关闭连接，返回节点是否被跟踪
func (m *Manager) RemovePeer(id types.PeerID) bool {
	m.mu.Lock()
	_, ok := m.table.remove(id)
	if tok, pending := m.pending[id]; pending {
		tok.Cancel()
		delete(m.pending, id)
	}
	m.mu.Unlock()

	if ok {
		if err := m.transport.ClosePeer(id); err != nil {
			logger.Debug("关闭连接失败", "peer", id.ShortString(), "error", err)
		}
	}
	return ok
}

// markHealthyLocked 标记健康，原本不健康时返回恢复事件
func (m *Manager) markHealthyLocked(rec *types.PeerHealthRecord) *types.PeerRecoveredEvent {
	wasDown := !rec.IsHealthy || rec.State != types.PeerStateConnected
	attempts := rec.ReconnectAttempts
	if rec.State == types.PeerStateReconnecting {
		attempts++
	}

	now := m.clk.Now()
	rec.State = types.PeerStateConnected
	rec.IsHealthy = true
	rec.ConsecutiveFailures = 0
	rec.ReconnectAttempts = 0
	rec.NextReconnectDelay = 0
	if tok, ok := m.pending[rec.PeerID]; ok {
		tok.Cancel()
		delete(m.pending, rec.PeerID)
	}
	if !wasDown {
		return nil
	}
	rec.ConnectedAt = now
	return &types.PeerRecoveredEvent{PeerID: rec.PeerID, Attempts: attempts, Time: now}
}

// markUnhealthyLocked 标记不健康并安排重连，原本健康时返回事件
func (m *Manager) markUnhealthyLocked(rec *types.PeerHealthRecord) *types.PeerUnhealthyEvent {
	if !rec.IsHealthy || rec.State != types.PeerStateConnected {
		return nil
	}
	rec.IsHealthy = false
	rec.State = types.PeerStateUnhealthy
	if rec.ConsecutiveFailures < m.cfg.MaxConsecutiveFailures {
		rec.ConsecutiveFailures = m.cfg.MaxConsecutiveFailures
	}
	m.scheduleReconnectLocked(rec)
	return &types.PeerUnhealthyEvent{PeerID: rec.PeerID, ConsecutiveFailures: rec.ConsecutiveFailures, Time: m.clk.Now()}
}

func (m *Manager) hasConnection(id types.PeerID) bool {
	for _, c := range m.transport.Connections() {
		if c.RemotePeer() == id {
			return true
		}
	}
	return false
}

// ============================================================================
//                              查询
// ============================================================================

// Health 网络健康概览
func (m *Manager) Health() types.NetworkHealth {
	m.mu.Lock()
	defer m.mu.Unlock()
	healthy, unhealthy := m.table.counts()
	h := types.NetworkHealth{
		TotalPeers:     healthy + unhealthy,
		HealthyPeers:   healthy,
		UnhealthyPeers: unhealthy,
		PeerHealth:     m.table.snapshot(),
	}
	if h.TotalPeers > 0 {
		h.HealthyRatio = float64(healthy) / float64(h.TotalPeers)
	}
	if m.partition != nil {
		p := *m.partition
		h.Partition = &p
	}
	return h
}

// PeerHealth 单个节点的健康记录
func (m *Manager) PeerHealth(id types.PeerID) (types.PeerHealthRecord, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.table.get(id)
	if rec == nil {
		return types.PeerHealthRecord{}, false
	}
	out := *rec
	out.Addrs = append([]types.Address(nil), rec.Addrs...)
	return out, true
}

// Partition 当前分区状态，未分区时返回 nil
func (m *Manager) Partition() *types.NetworkPartitionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.partition == nil {
		return nil
	}
	p := *m.partition
	return &p
}

// Stats 管理器统计
type Stats struct {
	Cycles     int64
	Reconnects int64
	Replaced   int64
	Pending    int
}

// Stats 返回统计
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	pending := len(m.pending)
	m.mu.Unlock()
	return Stats{
		Cycles:     m.cycles.Load(),
		Reconnects: m.reconnects.Load(),
		Replaced:   m.replaces.Load(),
		Pending:    pending,
	}
}

// ============================================================================
//                              事件
// ============================================================================

// UnhealthyEvents 节点不健康事件
func (m *Manager) UnhealthyEvents() *eventbus.Topic[types.PeerUnhealthyEvent] { return m.unhealthy }

// RecoveredEvents 节点恢复事件
func (m *Manager) RecoveredEvents() *eventbus.Topic[types.PeerRecoveredEvent] { return m.recovered }

// ReplacedEvents 节点替换事件
func (m *Manager) ReplacedEvents() *eventbus.Topic[types.PeerReplacedEvent] { return m.replaced }

// PartitionEvents 分区检测事件
func (m *Manager) PartitionEvents() *eventbus.Topic[types.PartitionDetectedEvent] {
	return m.partitioned
}

// PartitionRecoveredEvents 分区恢复事件
func (m *Manager) PartitionRecoveredEvents() *eventbus.Topic[types.PartitionRecoveredEvent] {
	return m.healed
}

// record 把拨号结果交给交互记录接收者
func (m *Manager) record(id types.PeerID, err error, latency time.Duration) {
	if m.recorder == nil {
		return
	}
	meta := types.InteractionMeta{}
	if err != nil {
		meta.ErrorReason = err.Error()
	} else {
		meta.LatencyMs = float64(latency.Microseconds()) / 1000
	}
	m.recorder.RecordInteraction(id, types.InteractionConnection, err == nil, meta)
}
