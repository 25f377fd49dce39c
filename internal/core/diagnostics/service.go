package diagnostics

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("core/diagnostics")

// HealthSource 节点健康来源（恢复管理器）
type HealthSource interface {
	Health() types.NetworkHealth
}

// DiscoveryStatus 发现基座状态来源（发现服务）
type DiscoveryStatus interface {
	Status() types.DHTStatus
}

// ============================================================================
//                              Service
// ============================================================================

// Service 网络诊断服务
type Service struct {
	cfg       Config
	transport interfaces.Transport
	sched     *scheduler.Scheduler
	clk       clock.Clock

	health   HealthSource
	dht      DiscoveryStatus
	remedies interfaces.Remedies
	metrics  *metrics

	sent      atomic.Uint64
	received  atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
	bytesIn   atomic.Uint64
	bytesOut  atomic.Uint64
	inRate    *rateMeter
	outRate   *rateMeter

	mu        sync.Mutex
	samples   map[types.PeerID]*peerSamples
	open      map[string]types.Issue
	lastCodes string
	exhausted string
	last      *types.DiagnosticsSnapshot
	tok       *scheduler.Token
	running   bool
	closed    bool

	limiter   *rate.Limiter
	inflight  map[types.AutoFixAction]struct{}
	fixCtx    context.Context
	fixCancel context.CancelFunc
	wg        sync.WaitGroup

	updated *eventbus.Topic[types.DiagnosticsUpdatedEvent]
	issues  *eventbus.Topic[types.IssuesDetectedEvent]
}

// Option 服务选项
type Option func(*Service)

// WithHealthSource 设置健康来源
func WithHealthSource(h HealthSource) Option {
	return func(s *Service) { s.health = h }
}

// WithDiscoveryStatus 设置发现基座状态来源
func WithDiscoveryStatus(d DiscoveryStatus) Option {
	return func(s *Service) { s.dht = d }
}

// WithRemedies 设置修复动作执行者
func WithRemedies(r interfaces.Remedies) Option {
	return func(s *Service) { s.remedies = r }
}

// NewService 创建诊断服务
func NewService(cfg Config, tr interfaces.Transport, sched *scheduler.Scheduler, opts ...Option) (*Service, error) {
	if tr == nil {
		return nil, errors.New("diagnostics: transport cannot be nil")
	}
	if sched == nil {
		return nil, errors.New("diagnostics: scheduler cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	clk := sched.Clock()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		cfg:       cfg,
		transport: tr,
		sched:     sched,
		clk:       clk,
		metrics:   newMetrics(),
		inRate:    newRateMeter(clk),
		outRate:   newRateMeter(clk),
		samples:   make(map[types.PeerID]*peerSamples),
		open:      make(map[string]types.Issue),
		limiter:   rate.NewLimiter(rate.Limit(cfg.AutoFixRate), cfg.AutoFixBurst),
		inflight:  make(map[types.AutoFixAction]struct{}),
		fixCtx:    ctx,
		fixCancel: cancel,
		updated:   eventbus.NewTopic[types.DiagnosticsUpdatedEvent]("diagnostics.updated", eventbus.Stateful()),
		issues:    eventbus.NewTopic[types.IssuesDetectedEvent]("diagnostics.issues"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Registry 返回服务的 Prometheus 注册表
func (s *Service) Registry() *prometheus.Registry { return s.metrics.reg }

// UpdatedEvents 快照刷新事件
func (s *Service) UpdatedEvents() *eventbus.Topic[types.DiagnosticsUpdatedEvent] { return s.updated }

// IssuesEvents 问题集合变化事件
func (s *Service) IssuesEvents() *eventbus.Topic[types.IssuesDetectedEvent] { return s.issues }

// ============================================================================
//                              生命周期
// ============================================================================

// Start 启动快照刷新循环
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.running {
		return nil
	}
	tok, err := s.sched.Every("diagnostics-refresh", s.cfg.Interval, s.Refresh,
		scheduler.WithTimeout(s.cfg.Interval))
	if err != nil {
		return err
	}
	s.tok = tok
	s.running = true
	logger.Debug("诊断服务已启动", "interval", s.cfg.Interval)
	return nil
}

// Stop 停止刷新循环，正在执行的修复不受影响
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.tok.Cancel()
	s.tok = nil
}

// Close 停止循环，取消并等待正在执行的修复，关闭事件主题
func (s *Service) Close() error {
	s.Stop()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.fixCancel()
	s.mu.Unlock()

	s.wg.Wait()
	s.updated.Close()
	s.issues.Close()
	return nil
}

// ============================================================================
//                              消息计数
// ============================================================================

// RecordMessageSent 记录发送的消息
func (s *Service) RecordMessageSent(size int) {
	s.sent.Add(1)
	s.metrics.messages.WithLabelValues("sent").Inc()
	s.addBytes(&s.bytesOut, s.outRate, "out", size)
}

// RecordMessageReceived 记录收到的消息
func (s *Service) RecordMessageReceived(size int) {
	s.received.Add(1)
	s.metrics.messages.WithLabelValues("received").Inc()
	s.addBytes(&s.bytesIn, s.inRate, "in", size)
}

// RecordMessageDelivered 记录投递成功的消息
func (s *Service) RecordMessageDelivered() {
	s.delivered.Add(1)
	s.metrics.messages.WithLabelValues("delivered").Inc()
}

// RecordMessageFailed 记录投递失败的消息
func (s *Service) RecordMessageFailed() {
	s.failed.Add(1)
	s.metrics.messages.WithLabelValues("failed").Inc()
}

func (s *Service) addBytes(total *atomic.Uint64, meter *rateMeter, dir string, size int) {
	if size <= 0 {
		return
	}
	total.Add(uint64(size))
	meter.add(uint64(size))
	s.metrics.bytes.WithLabelValues(dir).Add(float64(size))
}

// Performance 消息计数，投递率 = delivered/sent·100，sent 为 0 时为 0
func (s *Service) Performance() types.Performance {
	p := types.Performance{
		MessagesSent:      s.sent.Load(),
		MessagesReceived:  s.received.Load(),
		MessagesDelivered: s.delivered.Load(),
		MessagesFailed:    s.failed.Load(),
		BytesIn:           s.bytesIn.Load(),
		BytesOut:          s.bytesOut.Load(),
	}
	if p.MessagesSent > 0 {
		p.DeliveryRate = float64(p.MessagesDelivered) / float64(p.MessagesSent) * 100
	}
	return p
}

// ============================================================================
//                              外部信号
// ============================================================================

// MarkBootstrapExhausted 记录回退链耗尽，直到 ClearBootstrapExhausted 前都作为严重问题报告
func (s *Service) MarkBootstrapExhausted(cause string) {
	if cause == "" {
		cause = "unknown"
	}
	s.mu.Lock()
	s.exhausted = cause
	s.mu.Unlock()
}

// ClearBootstrapExhausted 回退链重新产出节点后清除
func (s *Service) ClearBootstrapExhausted() {
	s.mu.Lock()
	s.exhausted = ""
	s.mu.Unlock()
}

// ============================================================================
//                              状态与快照
// ============================================================================

// NetworkStatus 网络状态
func (s *Service) NetworkStatus() types.NetworkStatus {
	s.mu.Lock()
	latency, _ := s.averagesLocked()
	s.mu.Unlock()
	return s.networkStatus(latency)
}

func (s *Service) networkStatus(latencyMs float64) types.NetworkStatus {
	conns := s.transport.Connections()
	st := types.NetworkStatus{
		Connected:    len(conns) > 0,
		PeerCount:    len(conns),
		DHTConnected: s.dhtConnected(),
		LatencyMs:    latencyMs,
	}
	if br, ok := s.transport.(interfaces.BandwidthReporter); ok {
		st.Bandwidth = br.Bandwidth()
	} else {
		st.Bandwidth = types.Bandwidth{InBytesPerSec: s.inRate.rate(), OutBytesPerSec: s.outRate.rate()}
	}
	return st
}

func (s *Service) dhtConnected() bool {
	if s.dht != nil {
		return s.dht.Status().Connected
	}
	if dp, ok := s.transport.(interfaces.DHTProvider); ok && dp.DHT() != nil {
		return dp.DHT().Connected()
	}
	return false
}

// Snapshot 计算一份新的诊断快照，不发出事件
func (s *Service) Snapshot() types.DiagnosticsSnapshot {
	return s.compute()
}

// LastSnapshot 最近一次刷新的快照
func (s *Service) LastSnapshot() (types.DiagnosticsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return types.DiagnosticsSnapshot{}, false
	}
	return *s.last, true
}

// RunTroubleshooting 执行一次排障
func (s *Service) RunTroubleshooting() types.TroubleshootingReport {
	return s.compute().Troubleshooting
}

// Refresh 刷新快照，更新指标并发出事件
//
// 问题集合出现或变化时发出 IssuesDetectedEvent；开启 AutoApply 时
// 依次提交报告中的修复动作。
func (s *Service) Refresh(_ context.Context) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("刷新诊断快照 panic", "panic", r)
		}
	}()

	snap := s.compute()
	codes := issueCodes(snap.Troubleshooting.Issues)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	changed := codes != s.lastCodes
	s.lastCodes = codes
	s.last = &snap
	s.mu.Unlock()

	s.metrics.refreshTotal.Inc()
	s.metrics.healthScore.Set(float64(snap.Troubleshooting.HealthScore))
	s.metrics.peers.WithLabelValues("healthy").Set(float64(snap.PeerMetrics.HealthyPeers))
	s.metrics.peers.WithLabelValues("unhealthy").Set(float64(snap.PeerMetrics.TotalPeers - snap.PeerMetrics.HealthyPeers))
	s.metrics.issues.Set(float64(len(snap.Troubleshooting.Issues)))

	s.updated.Emit(types.DiagnosticsUpdatedEvent{Snapshot: snap})
	if changed && len(snap.Troubleshooting.Issues) > 0 {
		logger.Info("检测到网络问题", "issues", codes, "score", snap.Troubleshooting.HealthScore)
		s.issues.Emit(types.IssuesDetectedEvent{Issues: snap.Troubleshooting.Issues, Time: snap.GeneratedAt})
	}

	if s.cfg.AutoApply && s.remedies != nil {
		for _, a := range snap.Troubleshooting.AutoFixActions {
			if err := s.ApplyAutoFix(a); err != nil {
				logger.Debug("自动修复未提交", "action", string(a), "error", err)
			}
		}
	}
}

func (s *Service) compute() types.DiagnosticsSnapshot {
	now := s.clk.Now()
	v := view{perf: s.Performance()}
	if s.health != nil {
		v.health = s.health.Health()
		v.hasHealth = true
	}
	if s.dht != nil {
		v.dht = s.dht.Status()
		v.hasDHT = true
	}

	s.mu.Lock()
	peers := s.observeLocked(v)
	v.exhausted = s.exhausted
	s.mu.Unlock()

	v.status = s.networkStatus(peers.AverageLatencyMs)
	v.loss = peers.PacketLoss
	if !v.hasDHT {
		v.dht = types.DHTStatus{Connected: v.status.DHTConnected}
		if dp, ok := s.transport.(interfaces.DHTProvider); ok && dp.DHT() != nil {
			v.hasDHT = true
		}
	}
	if !v.hasHealth {
		peers.TotalPeers = v.status.PeerCount
		peers.HealthyPeers = v.status.PeerCount
	}

	hits := detect(v, s.cfg)
	s.mu.Lock()
	issues := s.reconcileLocked(hits, now)
	s.mu.Unlock()

	score := HealthScore(ScoreInput{
		Connected:    v.status.Connected,
		PeerCount:    v.status.PeerCount,
		TargetPeers:  s.cfg.TargetPeers,
		DHTConnected: v.status.DHTConnected,
		Issues:       issues,
	})
	return types.DiagnosticsSnapshot{
		NetworkStatus:   v.status,
		PeerMetrics:     peers,
		DHTStatus:       v.dht,
		Performance:     v.perf,
		Troubleshooting: buildReport(issues, score),
		GeneratedAt:     now,
	}
}

// observeLocked 用健康记录更新样本窗口并生成节点度量
func (s *Service) observeLocked(v view) types.PeerMetrics {
	out := types.PeerMetrics{
		TotalPeers:   v.health.TotalPeers,
		HealthyPeers: v.health.HealthyPeers,
	}
	seen := make(map[types.PeerID]struct{}, len(v.health.PeerHealth))
	for _, rec := range v.health.PeerHealth {
		seen[rec.PeerID] = struct{}{}
		ps, ok := s.samples[rec.PeerID]
		if !ok {
			ps = newPeerSamples(s.cfg.SampleWindow)
			s.samples[rec.PeerID] = ps
		}
		ps.observe(rec)
		lat, loss := ps.stats()
		out.Peers = append(out.Peers, types.PeerMetric{
			PeerID:     rec.PeerID,
			State:      rec.State,
			IsHealthy:  rec.IsHealthy,
			LatencyMs:  lat,
			PacketLoss: loss,
			Samples:    ps.len(),
			LastSample: ps.lastCheck,
		})
	}
	if v.hasHealth {
		for id := range s.samples {
			if _, ok := seen[id]; !ok {
				delete(s.samples, id)
			}
		}
	}
	out.AverageLatencyMs, out.PacketLoss = s.averagesLocked()
	return out
}

// averagesLocked 所有有样本节点的平均延迟与平均丢包率
func (s *Service) averagesLocked() (latencyMs, loss float64) {
	var (
		latSum, lossSum float64
		latN, lossN     int
	)
	for _, ps := range s.samples {
		if ps.len() == 0 {
			continue
		}
		lat, l := ps.stats()
		lossSum += l
		lossN++
		if lat > 0 {
			latSum += lat
			latN++
		}
	}
	if latN > 0 {
		latencyMs = latSum / float64(latN)
	}
	if lossN > 0 {
		loss = lossSum / float64(lossN)
	}
	return latencyMs, loss
}

// reconcileLocked 合并本次命中的规则与已打开的问题
//
// 持续存在的问题保留 ID 与首次检测时间；不再命中的问题关闭。
func (s *Service) reconcileLocked(hits []detected, now time.Time) []types.Issue {
	out := make([]types.Issue, 0, len(hits))
	current := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		current[h.rule.code] = struct{}{}
		is, ok := s.open[h.rule.code]
		if !ok {
			is = types.Issue{
				ID:         uuid.NewString(),
				Code:       h.rule.code,
				Severity:   h.rule.severity,
				DetectedAt: now,
				AutoFix:    h.rule.fix,
			}
		}
		is.Message = h.message
		s.open[h.rule.code] = is
		out = append(out, is)
	}
	for code := range s.open {
		if _, ok := current[code]; !ok {
			delete(s.open, code)
		}
	}
	return out
}

func issueCodes(issues []types.Issue) string {
	codes := make([]string, 0, len(issues))
	for _, is := range issues {
		codes = append(codes, is.Code)
	}
	sort.Strings(codes)
	return strings.Join(codes, ",")
}
