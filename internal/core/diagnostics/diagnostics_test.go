package diagnostics

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/internal/transport/memory"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type stubHealth struct {
	mu sync.Mutex
	h  types.NetworkHealth
}

func (s *stubHealth) Health() types.NetworkHealth {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h
}

func (s *stubHealth) set(h types.NetworkHealth) {
	s.mu.Lock()
	s.h = h
	s.mu.Unlock()
}

type stubRemedies struct {
	block    chan struct{}
	retry    atomic.Int32
	reset    atomic.Int32
	recovery atomic.Int32
	request  atomic.Int32
}

func (r *stubRemedies) wait(ctx context.Context) {
	if r.block == nil {
		return
	}
	select {
	case <-r.block:
	case <-ctx.Done():
	}
}

func (r *stubRemedies) RetryBootstrap(ctx context.Context) (int, error) {
	r.retry.Add(1)
	r.wait(ctx)
	return 1, nil
}

func (r *stubRemedies) ResetPeerConnections(ctx context.Context) error {
	r.reset.Add(1)
	r.wait(ctx)
	return nil
}

func (r *stubRemedies) ForceNetworkRecovery(ctx context.Context) error {
	r.recovery.Add(1)
	r.wait(ctx)
	return nil
}

func (r *stubRemedies) RequestPeers(ctx context.Context) (int, error) {
	r.request.Add(1)
	r.wait(ctx)
	return 0, nil
}

type harness struct {
	net  *memory.Network
	self *memory.Transport
	clk  *clock.Mock
	svc  *Service
}

func newHarness(t *testing.T, cfg Config, opts ...Option) *harness {
	t.Helper()
	h := &harness{net: memory.NewNetwork(), clk: clock.NewMock()}
	h.clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	h.self = h.net.AddPeer("self", nil)
	sched := scheduler.New(h.clk)

	svc, err := NewService(cfg, h.self, sched, opts...)
	require.NoError(t, err)
	h.svc = svc
	t.Cleanup(func() {
		_ = svc.Close()
		sched.Stop()
	})
	return h
}

func (h *harness) connect(t *testing.T, ids ...types.PeerID) {
	t.Helper()
	for _, id := range ids {
		h.net.AddPeer(id, nil)
		_, err := h.self.Dial(context.Background(), h.net.Descriptor(id))
		require.NoError(t, err)
	}
}

func codes(issues []types.Issue) []string {
	out := make([]string, 0, len(issues))
	for _, is := range issues {
		out = append(out, is.Code)
	}
	return out
}

// ============================================================================
//                              健康评分
// ============================================================================

func TestHealthScore(t *testing.T) {
	full := ScoreInput{Connected: true, PeerCount: 8, TargetPeers: 8, DHTConnected: true}
	assert.Equal(t, 100, HealthScore(full))
	assert.Equal(t, IssueBudget, HealthScore(ScoreInput{TargetPeers: 8}))

	half := full
	half.PeerCount = 4
	assert.Equal(t, 85, HealthScore(half))

	crit := full
	crit.Issues = []types.Issue{{Severity: types.SeverityCritical}, {Severity: types.SeverityCritical}}
	assert.Equal(t, 80, HealthScore(crit))
}

func TestHealthScore_Monotonic(t *testing.T) {
	prev := -1
	for n := 0; n <= 12; n++ {
		s := HealthScore(ScoreInput{Connected: n > 0, PeerCount: n, TargetPeers: 8})
		assert.GreaterOrEqual(t, s, prev, "more peers never lowers the score")
		prev = s
	}

	base := ScoreInput{Connected: true, PeerCount: 3, TargetPeers: 8, DHTConnected: true}
	prev = HealthScore(base)
	for _, sev := range []types.Severity{types.SeverityInfo, types.SeverityWarning, types.SeverityError, types.SeverityCritical} {
		base.Issues = append(base.Issues, types.Issue{Severity: sev})
		s := HealthScore(base)
		assert.LessOrEqual(t, s, prev, "more issues never raise the score")
		prev = s
	}
}

// ============================================================================
//                              计数
// ============================================================================

func TestPerformance_DeliveryRate(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.Zero(t, h.svc.Performance().DeliveryRate)

	for i := 0; i < 4; i++ {
		h.svc.RecordMessageSent(100)
	}
	for i := 0; i < 3; i++ {
		h.svc.RecordMessageDelivered()
	}
	h.svc.RecordMessageFailed()
	h.svc.RecordMessageReceived(50)

	p := h.svc.Performance()
	assert.EqualValues(t, 4, p.MessagesSent)
	assert.EqualValues(t, 3, p.MessagesDelivered)
	assert.EqualValues(t, 1, p.MessagesFailed)
	assert.EqualValues(t, 1, p.MessagesReceived)
	assert.EqualValues(t, 400, p.BytesOut)
	assert.EqualValues(t, 50, p.BytesIn)
	assert.InDelta(t, 75.0, p.DeliveryRate, 1e-9)
}

func TestRateMeter(t *testing.T) {
	clk := clock.NewMock()
	r := newRateMeter(clk)
	r.add(600)
	assert.InDelta(t, 10.0, r.rate(), 1e-9)

	clk.Add(30 * time.Second)
	r.add(600)
	assert.InDelta(t, 20.0, r.rate(), 1e-9)

	clk.Add(45 * time.Second)
	assert.InDelta(t, 10.0, r.rate(), 1e-9, "first bucket expired")

	clk.Add(2 * time.Minute)
	assert.Zero(t, r.rate())
}

func TestRegistry_ExposesCounters(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	h.svc.RecordMessageSent(10)
	h.svc.Refresh(context.Background())

	families, err := h.svc.Registry().Gather()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, n := range []string{"meshcore_messages_total", "meshcore_message_bytes_total", "meshcore_health_score", "meshcore_diagnostics_refresh_total"} {
		assert.True(t, names[n], "metric %s missing", n)
	}
}

// ============================================================================
//                              排障
// ============================================================================

func TestRunTroubleshooting_NoConnections(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	rep := h.svc.RunTroubleshooting()
	require.NotEmpty(t, rep.Issues)
	assert.Equal(t, CodeNoConnections, rep.Issues[0].Code)
	assert.Equal(t, types.SeverityCritical, rep.Issues[0].Severity)
	assert.True(t, rep.CanAutoFix)
	assert.Contains(t, rep.AutoFixActions, types.AutoFixRetryBootstrap)
	assert.NotEmpty(t, rep.Recommendations)
	assert.Equal(t, DiscoveryWeight, rep.HealthScore)
}

func TestRunTroubleshooting_Healthy(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetPeers = 2
	h := newHarness(t, cfg)
	h.connect(t, "p1", "p2")

	rep := h.svc.RunTroubleshooting()
	assert.Empty(t, rep.Issues)
	assert.False(t, rep.CanAutoFix)
	assert.Empty(t, rep.AutoFixActions)
	assert.Equal(t, 100, rep.HealthScore)
}

func TestRunTroubleshooting_HealthIssues(t *testing.T) {
	health := &stubHealth{}
	h := newHarness(t, DefaultConfig(), WithHealthSource(health))
	h.connect(t, "p1")
	h.net.SetDHTAvailable(false)

	health.set(types.NetworkHealth{
		TotalPeers:     4,
		HealthyPeers:   1,
		UnhealthyPeers: 3,
		HealthyRatio:   0.25,
		Partition:      &types.NetworkPartitionState{HealthyRatio: 0.25},
	})
	h.svc.MarkBootstrapExhausted("seeds: all connections failed")

	rep := h.svc.RunTroubleshooting()
	got := codes(rep.Issues)
	assert.Contains(t, got, CodePartition)
	assert.Contains(t, got, CodeBootstrapExhausted)
	assert.Contains(t, got, CodeUnhealthyPeers)
	assert.Contains(t, got, CodeDHTUnavailable)
	assert.Contains(t, got, CodeLowPeerCount)
	assert.NotContains(t, got, CodeNoConnections)

	// 严重程度降序
	for i := 1; i < len(rep.Issues); i++ {
		assert.GreaterOrEqual(t, rep.Issues[i-1].Severity, rep.Issues[i].Severity)
	}
	assert.ElementsMatch(t, []types.AutoFixAction{
		types.AutoFixRetryBootstrap,
		types.AutoFixForceNetworkRecovery,
		types.AutoFixResetPeerConnections,
		types.AutoFixRequestPeers,
	}, rep.AutoFixActions)

	h.svc.ClearBootstrapExhausted()
	assert.NotContains(t, codes(h.svc.RunTroubleshooting().Issues), CodeBootstrapExhausted)
}

func TestIssues_StableIDsWhileOpen(t *testing.T) {
	h := newHarness(t, DefaultConfig())

	first := h.svc.RunTroubleshooting().Issues
	require.Len(t, first, 1)
	h.clk.Add(time.Minute)
	second := h.svc.RunTroubleshooting().Issues
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, first[0].DetectedAt, second[0].DetectedAt)

	h.connect(t, "p1")
	h.svc.RunTroubleshooting()
	h.net.Crash("p1")
	third := h.svc.RunTroubleshooting().Issues
	require.Len(t, third, 1)
	assert.NotEqual(t, first[0].ID, third[0].ID, "reopened issue gets a new id")
}

func TestLowDeliveryRate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetPeers = 1
	h := newHarness(t, cfg)
	h.connect(t, "p1")

	for i := 0; i < minDeliverySamples; i++ {
		h.svc.RecordMessageSent(1)
	}
	for i := 0; i < 5; i++ {
		h.svc.RecordMessageDelivered()
	}
	rep := h.svc.RunTroubleshooting()
	assert.Equal(t, []string{CodeLowDeliveryRate}, codes(rep.Issues))
	assert.False(t, rep.CanAutoFix)
}

func TestPeerMetrics_SamplesFromHealthChecks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SampleWindow = 4
	health := &stubHealth{}
	h := newHarness(t, cfg, WithHealthSource(health))
	h.connect(t, "p1")

	base := h.clk.Now()
	steps := []types.PeerHealthRecord{
		{PeerID: "p1", IsHealthy: true, LastHealthCheck: base.Add(1 * time.Second), LastLatency: 100 * time.Millisecond},
		{PeerID: "p1", IsHealthy: true, LastHealthCheck: base.Add(2 * time.Second), LastLatency: 300 * time.Millisecond},
		{PeerID: "p1", IsHealthy: true, LastHealthCheck: base.Add(3 * time.Second), ConsecutiveFailures: 1},
	}
	for _, rec := range steps {
		health.set(types.NetworkHealth{TotalPeers: 1, HealthyPeers: 1, PeerHealth: []types.PeerHealthRecord{rec}})
		h.svc.Snapshot()
		h.svc.Snapshot()
	}

	snap := h.svc.Snapshot()
	require.Len(t, snap.PeerMetrics.Peers, 1)
	pm := snap.PeerMetrics.Peers[0]
	assert.Equal(t, 3, pm.Samples, "each check time is sampled once")
	assert.InDelta(t, 200.0, pm.LatencyMs, 1e-9)
	assert.InDelta(t, 1.0/3.0, pm.PacketLoss, 1e-9)
	assert.InDelta(t, 200.0, snap.NetworkStatus.LatencyMs, 1e-9)
	assert.Contains(t, codes(snap.Troubleshooting.Issues), CodePacketLoss)

	health.set(types.NetworkHealth{})
	h.svc.Snapshot()
	assert.Empty(t, h.svc.samples, "samples for untracked peers are pruned")
}

// ============================================================================
//                              刷新与事件
// ============================================================================

func TestRefresh_EmitsEvents(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TargetPeers = 1
	h := newHarness(t, cfg)

	updates, err := h.svc.UpdatedEvents().Subscribe()
	require.NoError(t, err)
	defer updates.Close()
	issues, err := h.svc.IssuesEvents().Subscribe()
	require.NoError(t, err)
	defer issues.Close()

	ctx := context.Background()
	h.svc.Refresh(ctx)
	h.svc.Refresh(ctx)

	assert.Len(t, updates.Out(), 2)
	require.Len(t, issues.Out(), 1, "unchanged issue set is reported once")
	ev := <-issues.Out()
	assert.Equal(t, []string{CodeNoConnections}, codes(ev.Issues))

	h.connect(t, "p1")
	h.svc.Refresh(ctx)
	assert.Empty(t, issues.Out(), "empty issue set is not reported")

	last, ok := h.svc.LastSnapshot()
	require.True(t, ok)
	assert.True(t, last.NetworkStatus.Connected)
	assert.Equal(t, 100, last.Troubleshooting.HealthScore)
}

func TestStart_ScheduledRefresh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Interval = time.Second
	h := newHarness(t, cfg)
	require.NoError(t, h.svc.Start(context.Background()))
	require.NoError(t, h.svc.Start(context.Background()))

	h.clk.Add(time.Second)
	require.Eventually(t, func() bool {
		_, ok := h.svc.LastSnapshot()
		return ok
	}, time.Second, 5*time.Millisecond)

	h.svc.Stop()
	require.NoError(t, h.svc.Close())
	assert.ErrorIs(t, h.svc.Start(context.Background()), ErrClosed)
}

// ============================================================================
//                              自动修复
// ============================================================================

func TestApplyAutoFix_Validation(t *testing.T) {
	h := newHarness(t, DefaultConfig())
	assert.ErrorIs(t, h.svc.ApplyAutoFix("reboot"), ErrUnknownAction)
	assert.ErrorIs(t, h.svc.ApplyAutoFix(types.AutoFixRetryBootstrap), ErrNoRemedies)
}

func TestApplyAutoFix_DedupesInFlight(t *testing.T) {
	rem := &stubRemedies{block: make(chan struct{})}
	h := newHarness(t, DefaultConfig(), WithRemedies(rem))

	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixResetPeerConnections))
	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixResetPeerConnections))
	require.Eventually(t, func() bool { return rem.reset.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, h.svc.InFlight())

	close(rem.block)
	require.Eventually(t, func() bool { return h.svc.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, rem.reset.Load())
}

func TestApplyAutoFix_RateLimited(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoFixRate = 0.1
	cfg.AutoFixBurst = 2
	rem := &stubRemedies{}
	h := newHarness(t, cfg, WithRemedies(rem))

	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixRetryBootstrap))
	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixRequestPeers))
	require.Eventually(t, func() bool { return h.svc.InFlight() == 0 }, time.Second, 5*time.Millisecond)
	assert.ErrorIs(t, h.svc.ApplyAutoFix(types.AutoFixForceNetworkRecovery), ErrRateLimited)

	h.clk.Add(10 * time.Second)
	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixForceNetworkRecovery))
	require.Eventually(t, func() bool { return rem.recovery.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 1, rem.retry.Load())
	assert.EqualValues(t, 1, rem.request.Load())
}

func TestAutoApply_OnRefresh(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AutoApply = true
	rem := &stubRemedies{}
	h := newHarness(t, cfg, WithRemedies(rem))

	h.svc.Refresh(context.Background())
	require.Eventually(t, func() bool { return rem.retry.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestClose_CancelsInFlightFixes(t *testing.T) {
	rem := &stubRemedies{block: make(chan struct{})}
	h := newHarness(t, DefaultConfig(), WithRemedies(rem))

	require.NoError(t, h.svc.ApplyAutoFix(types.AutoFixForceNetworkRecovery))
	require.Eventually(t, func() bool { return rem.recovery.Load() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, h.svc.Close())
	assert.Zero(t, h.svc.InFlight())
	assert.ErrorIs(t, h.svc.ApplyAutoFix(types.AutoFixForceNetworkRecovery), ErrClosed)
	require.NoError(t, h.svc.Close())
}

func TestModule(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	health := &stubHealth{}

	var svc *Service
	app := fxtest.New(t,
		fx.Provide(func() interfaces.Transport { return self }),
		fx.Provide(func() *scheduler.Scheduler { return scheduler.New(clock.NewMock()) }),
		fx.Provide(func() HealthSource { return health }),
		Module(),
		fx.Populate(&svc),
	)
	app.RequireStart()
	require.NotNil(t, svc)
	assert.Same(t, health, svc.health)
	app.RequireStop()
	assert.ErrorIs(t, svc.ApplyAutoFix(types.AutoFixRequestPeers), ErrNoRemedies)
}
