package bootstrap

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/internal/core/storage"
	"github.com/dep2p/meshcore/internal/transport/memory"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              测试辅助
// ============================================================================

type stubMethod struct {
	name   string
	prio   int
	peers  []types.PeerDescriptor
	err    error
	panics bool
	calls  atomic.Int32
}

func (m *stubMethod) Name() string  { return m.name }
func (m *stubMethod) Priority() int { return m.prio }

func (m *stubMethod) Discover(context.Context) ([]types.PeerDescriptor, error) {
	m.calls.Add(1)
	if m.panics {
		panic("boom")
	}
	return m.peers, m.err
}

func testConfig(seeds ...string) Config {
	cfg := DefaultConfig()
	cfg.Seeds = seeds
	cfg.DialTimeout = time.Second
	cfg.MethodTimeout = time.Second
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, tr interfaces.Transport, opts ...Option) (*Engine, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	clk.Set(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	eng, err := NewEngine(cfg, tr, append([]Option{WithClock(clk)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = eng.Close() })
	return eng, clk
}

func desc(id string, meta map[string]string) types.PeerDescriptor {
	return types.NewPeerDescriptor(types.PeerID(id), []types.Address{types.Address("/memory/" + id)}, meta)
}

// ============================================================================
//                              打分公式
// ============================================================================

func TestSuccessRate(t *testing.T) {
	hist := []types.PeerInteractionRecord{{Success: true}, {Success: true}, {Success: false}, {Success: true}, {Success: false}}
	assert.InDelta(t, 0.6, HistorySuccessRate(hist), 1e-9)
	assert.Equal(t, 0.0, HistorySuccessRate(nil))
	assert.Equal(t, 0.0, SuccessRate(0, 0))
	assert.Equal(t, 1.0, SuccessRate(3, 3))
}

func TestBaseScoreAndDecay(t *testing.T) {
	assert.InDelta(t, 0.86, BaseScore(0.9, 0.8), 1e-9)

	decay := TimeDecay(5)
	assert.InDelta(t, 0.7738, decay, 1e-4)
	assert.InDelta(t, 0.619, 0.8*decay, 1e-3)
	assert.Equal(t, 1.0, TimeDecay(0))
	assert.Equal(t, 1.0, TimeDecay(-3))

	now := time.Date(2024, 1, 6, 0, 0, 0, 0, time.UTC)
	assert.InDelta(t, 5.0, DaysSince(now, now.Add(-5*24*time.Hour)), 1e-9)
	assert.Equal(t, 0.0, DaysSince(now, time.Time{}))
}

func TestBonuses(t *testing.T) {
	assert.InDelta(t, 0.225, GeographicBonus(100, 25), 1e-9)
	assert.Equal(t, 0.0, GeographicBonus(100, 250))
	assert.Equal(t, 0.0, GeographicBonus(100, -1))

	assert.InDelta(t, 0.2, InterestBonus(2, 4), 1e-9)
	assert.Equal(t, 0.0, InterestBonus(0, 4))
	assert.Equal(t, 0.0, InterestBonus(1, 0))

	shared, union := SharedInterests([]string{"Chess", "go", "hiking"}, []string{"go", "chess", "music"})
	assert.Equal(t, []string{"chess", "go"}, shared)
	assert.Equal(t, 4, union)
}

func TestEMAUpdates(t *testing.T) {
	assert.InDelta(t, 0.82, UpdateReliability(0.8, true), 1e-9)
	assert.InDelta(t, 0.72, UpdateReliability(0.8, false), 1e-9)

	assert.InDelta(t, 120.0, UpdateResponseTime(100, 200), 1e-9)
	assert.Equal(t, 150.0, UpdateResponseTime(0, 150))
	assert.Equal(t, 100.0, UpdateResponseTime(100, 0))
}

// ============================================================================
//                              种子表
// ============================================================================

func TestNewEngine_ParsesSeeds(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)

	eng, _ := newTestEngine(t, testConfig(
		"seed-a@/memory/seed-a",
		"/ip4/1.2.3.4/tcp/4001/p2p/QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN",
		"self@/memory/self",
		"seed-a@/memory/other",
	), self)

	seeds := eng.Seeds()
	require.Len(t, seeds, 2)
	assert.Equal(t, types.PeerID("seed-a"), seeds[0].ID)
	assert.Equal(t, types.Address("/memory/seed-a"), seeds[0].Address)
	assert.Equal(t, types.Address("/ip4/1.2.3.4/tcp/4001"), seeds[1].Address)
	for _, s := range seeds {
		assert.Equal(t, InitialReliability, s.Reliability)
	}
	assert.False(t, eng.IsSeed("self"))
}

func TestNewEngine_InvalidSeed(t *testing.T) {
	net := memory.NewNetwork()
	_, err := NewEngine(testConfig("/ip4/1.2.3.4/tcp/4001"), net.AddPeer("self", nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidSeed))

	var be *BootstrapError
	assert.True(t, errors.As(err, &be))
}

func TestRecordInteraction_UpdatesSeed(t *testing.T) {
	net := memory.NewNetwork()
	eng, clk := newTestEngine(t, testConfig("seed-a@/memory/seed-a"), net.AddPeer("self", nil))

	eng.RecordInteraction("seed-a", types.InteractionConnection, true, types.InteractionMeta{LatencyMs: 100})
	rec, ok := eng.Seed("seed-a")
	require.True(t, ok)
	assert.InDelta(t, 0.55, rec.Reliability, 1e-9)
	assert.Equal(t, 100.0, rec.AvgResponseTimeMs)
	assert.Equal(t, clk.Now(), rec.LastSeen)

	eng.RecordInteraction("seed-a", types.InteractionConnection, false, types.InteractionMeta{LatencyMs: 200})
	rec, _ = eng.Seed("seed-a")
	assert.InDelta(t, 0.495, rec.Reliability, 1e-9)
	assert.InDelta(t, 120.0, rec.AvgResponseTimeMs, 1e-9)
	assert.Equal(t, 2, rec.Attempts)

	// 非种子只记历史
	eng.RecordInteraction("peer-x", types.InteractionMessage, true, types.InteractionMeta{DataSize: 10})
	_, ok = eng.Seed("peer-x")
	assert.False(t, ok)
	assert.Len(t, eng.History("peer-x"), 1)
}

func TestHistory_RingAndLRU(t *testing.T) {
	net := memory.NewNetwork()
	cfg := testConfig()
	cfg.HistorySize = 3
	cfg.MaxTrackedPeers = 2
	eng, clk := newTestEngine(t, cfg, net.AddPeer("self", nil))

	for i := 0; i < 5; i++ {
		eng.RecordInteraction("p1", types.InteractionConnection, i%2 == 0, types.InteractionMeta{})
		clk.Add(time.Second)
	}
	hist := eng.History("p1")
	require.Len(t, hist, 3)
	assert.True(t, hist[0].Timestamp.Before(hist[2].Timestamp))
	assert.True(t, hist[2].Success)

	eng.RecordInteraction("p2", types.InteractionConnection, true, types.InteractionMeta{})
	eng.RecordInteraction("p3", types.InteractionConnection, true, types.InteractionMeta{})
	assert.Equal(t, 2, eng.TrackedPeers())
	assert.Nil(t, eng.History("p1"))
}

func TestSeeds_PersistAndRestore(t *testing.T) {
	db, err := storage.Open(storage.InMemoryConfig())
	require.NoError(t, err)
	defer db.Close()

	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	cfg := testConfig("seed-a@/memory/seed-a", "seed-b@/memory/seed-b")

	first, err := NewEngine(cfg, self, WithStorage(db))
	require.NoError(t, err)
	first.RecordInteraction("seed-b", types.InteractionConnection, true, types.InteractionMeta{LatencyMs: 42})
	require.NoError(t, first.Close())

	second, err := NewEngine(cfg, self, WithStorage(db))
	require.NoError(t, err)
	defer second.Close()
	require.NoError(t, second.Restore())

	rec, ok := second.Seed("seed-b")
	require.True(t, ok)
	assert.InDelta(t, 0.55, rec.Reliability, 1e-9)
	assert.Equal(t, 42.0, rec.AvgResponseTimeMs)

	// 可靠性更高的种子排在前面
	assert.Equal(t, types.PeerID("seed-b"), second.Seeds()[0].ID)
}

// ============================================================================
//                              推荐
// ============================================================================

func TestRecommend_OrderAndReasons(t *testing.T) {
	net := memory.NewNetwork()
	cfg := testConfig()
	cfg.MaxDistanceKm = 1000
	cfg.Profile = types.LocalProfile{
		Location:  &types.GeoPoint{Lat: 52.52, Lon: 13.40},
		Interests: []string{"chess", "go"},
	}
	eng, clk := newTestEngine(t, cfg, net.AddPeer("self", nil))

	eng.Observe(desc("near", map[string]string{"lat": "52.50", "lon": "13.40", "interests": "chess,go"}))
	eng.Observe(desc("far", map[string]string{"lat": "-33.86", "lon": "151.20"}))
	eng.Observe(desc("stale", nil))

	for i := 0; i < 4; i++ {
		eng.RecordInteraction("near", types.InteractionConnection, true, types.InteractionMeta{LatencyMs: 20})
		eng.RecordInteraction("far", types.InteractionConnection, i == 0, types.InteractionMeta{})
	}
	eng.RecordInteraction("stale", types.InteractionConnection, true, types.InteractionMeta{})
	clk.Add(10 * 24 * time.Hour)
	eng.RecordInteraction("near", types.InteractionMessage, true, types.InteractionMeta{})
	eng.RecordInteraction("far", types.InteractionMessage, true, types.InteractionMeta{})

	recs := eng.Recommendations()
	require.Len(t, recs, 3)
	assert.Equal(t, types.PeerID("near"), recs[0].PeerID)
	assert.Equal(t, 1.0, recs[0].Score)
	assert.Contains(t, recs[0].Reasons, ReasonNearby)
	assert.Contains(t, recs[0].Reasons, ReasonSharedInterests)
	assert.Contains(t, recs[0].Reasons, ReasonReliable)
	assert.Equal(t, []string{"chess", "go"}, recs[0].SharedInterests)
	assert.InDelta(t, 2.2, recs[0].GeographicDistanceKm, 0.5)
	assert.Equal(t, 4, recs[0].SuccessfulConnections)
	assert.Equal(t, 20.0, recs[0].AverageLatencyMs)

	// stale: 成功率 1，但 10 天未见
	stale := recs[1]
	assert.Equal(t, types.PeerID("stale"), stale.PeerID)
	assert.InDelta(t, BaseScore(1, DefaultReputation)*TimeDecay(10), stale.Score, 1e-9)
	assert.Equal(t, -1.0, stale.GeographicDistanceKm)

	far := recs[2]
	assert.InDelta(t, BaseScore(0.25, DefaultReputation), far.Score, 1e-9)
	assert.NotContains(t, far.Reasons, ReasonNearby)

	for i := 1; i < len(recs); i++ {
		assert.GreaterOrEqual(t, recs[i-1].Score, recs[i].Score)
	}
}

func TestRecommend_LimitExcludeReputation(t *testing.T) {
	net := memory.NewNetwork()
	cfg := testConfig()
	cfg.MaxRecommendations = 2
	eng, _ := newTestEngine(t, cfg, net.AddPeer("self", nil),
		WithReputation(func(id types.PeerID) float64 {
			if id == "trusted" {
				return 1
			}
			return 0
		}))

	for _, id := range []string{"a", "b", "trusted"} {
		eng.RecordInteraction(types.PeerID(id), types.InteractionConnection, true, types.InteractionMeta{})
	}

	recs := eng.Recommend(RecommendOptions{Limit: 10})
	require.Len(t, recs, 2)
	assert.Equal(t, types.PeerID("trusted"), recs[0].PeerID)
	assert.InDelta(t, 1.0, recs[0].Score, 1e-9)
	assert.InDelta(t, 0.6, recs[1].Score, 1e-9)

	recs = eng.Recommend(RecommendOptions{Exclude: func(id types.PeerID) bool { return id == "trusted" }})
	for _, r := range recs {
		assert.NotEqual(t, types.PeerID("trusted"), r.PeerID)
	}

	recs = eng.Recommend(RecommendOptions{RequireAddrs: true})
	assert.Empty(t, recs)
}

// ============================================================================
//                              回退链
// ============================================================================

func TestFallback_SeedsFirst(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	net.AddPeer("seed-a", nil)
	net.AddPeer("seed-b", nil)
	net.SetReachable("seed-b", false)

	dnsM := &stubMethod{name: "dns", prio: 10, peers: []types.PeerDescriptor{desc("dns-1", nil)}}
	eng, _ := newTestEngine(t, testConfig("seed-a@/memory/seed-a", "seed-b@/memory/seed-b"), self,
		WithFallbackMethods(dnsM))

	completed := make(chan types.FallbackCompletedEvent, 1)
	cancel := eng.FallbackEvents().Handle(func(ev types.FallbackCompletedEvent) { completed <- ev })
	defer cancel()

	peers, method, err := eng.RunFallback(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SeedMethodName, method)
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerID("seed-a"), peers[0].ID)
	assert.Equal(t, "bootstrap", peers[0].Meta(types.MetaSource))
	assert.Equal(t, int32(0), dnsM.calls.Load())
	assert.True(t, self.IsConnected("seed-a"))

	a, _ := eng.Seed("seed-a")
	b, _ := eng.Seed("seed-b")
	assert.Greater(t, a.Reliability, b.Reliability)

	select {
	case ev := <-completed:
		assert.Equal(t, SeedMethodName, ev.Method)
		assert.Equal(t, 1, ev.Peers)
	case <-time.After(time.Second):
		t.Fatal("未收到 FallbackCompletedEvent")
	}
}

func TestFallback_PriorityOrder(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)

	mdnsM := &stubMethod{name: "mdns", prio: 30, peers: []types.PeerDescriptor{desc("lan-1", nil)}}
	relayM := &stubMethod{name: "relay", prio: 20, peers: []types.PeerDescriptor{desc("relay-1", nil), desc("self", nil), desc("relay-1", nil)}}
	dnsM := &stubMethod{name: "dns", prio: 10, err: errors.New("nxdomain")}

	eng, _ := newTestEngine(t, testConfig(), self, WithFallbackMethods(mdnsM, relayM, dnsM))
	assert.Equal(t, []string{SeedMethodName, "dns", "relay", "mdns"}, eng.FallbackMethods())

	peers := eng.HandleDiscoveryFailure(context.Background(), errors.New("dht down"))
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerID("relay-1"), peers[0].ID)
	assert.Equal(t, int32(1), dnsM.calls.Load())
	assert.Equal(t, int32(1), relayM.calls.Load())
	assert.Equal(t, int32(0), mdnsM.calls.Load())
	assert.Equal(t, "relay", eng.Stats().LastMethod)
}

func TestFallback_ExhaustedNeverFails(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)

	panicky := &stubMethod{name: "dns", prio: 10, panics: true}
	empty := &stubMethod{name: "mdns", prio: 30}
	eng, _ := newTestEngine(t, testConfig("gone@/memory/gone"), self, WithFallbackMethods(panicky, empty))

	exhausted := make(chan types.BootstrapExhaustedEvent, 4)
	cancel := eng.ExhaustedEvents().Handle(func(ev types.BootstrapExhaustedEvent) { exhausted <- ev })
	defer cancel()

	var peers []types.PeerDescriptor
	assert.NotPanics(t, func() {
		peers = eng.HandleDiscoveryFailure(context.Background(), errors.New("dht down"))
	})
	assert.Empty(t, peers)

	select {
	case ev := <-exhausted:
		assert.Equal(t, "dht down", ev.Cause)
		assert.Equal(t, []string{SeedMethodName, "dns", "mdns"}, ev.Methods)
	case <-time.After(time.Second):
		t.Fatal("未收到 BootstrapExhaustedEvent")
	}

	_, _, err := eng.RunFallback(context.Background())
	assert.True(t, errors.Is(err, ErrBootstrapExhausted))
	assert.Equal(t, int64(2), eng.Stats().ExhaustedRuns)
}

func TestFindCandidates_RecommendationsThenChain(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	net.AddPeer("seed-a", nil)

	relayM := &stubMethod{name: "relay", prio: 20, peers: []types.PeerDescriptor{desc("relay-1", nil)}}
	eng, _ := newTestEngine(t, testConfig("seed-a@/memory/seed-a"), self, WithFallbackMethods(relayM))

	eng.Observe(desc("known", nil))
	eng.RecordInteraction("known", types.InteractionConnection, true, types.InteractionMeta{})

	got, err := eng.FindCandidates(context.Background(), 1, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.PeerID("known"), got[0].ID)

	exclude := func(id types.PeerID) bool { return id == "known" }
	got, err = eng.FindCandidates(context.Background(), 2, exclude)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, types.PeerID("seed-a"), got[0].ID)
	assert.Equal(t, int32(0), relayM.calls.Load())
}

func TestEngine_CloseIdempotent(t *testing.T) {
	net := memory.NewNetwork()
	eng, err := NewEngine(testConfig(), net.AddPeer("self", nil))
	require.NoError(t, err)
	require.NoError(t, eng.Close())
	require.NoError(t, eng.Close())

	_, _, err = eng.RunFallback(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyClosed))
	assert.Nil(t, eng.HandleDiscoveryFailure(context.Background(), nil))
}

// ============================================================================
//                              Fx 模块
// ============================================================================

func TestModule_ProvidesEngine(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	cfg := config.NewConfig()
	cfg.Bootstrap.Nodes = []string{"seed-a@/memory/seed-a"}

	dnsM := &stubMethod{name: "dns", prio: 10}
	var (
		eng     *Engine
		trigger interfaces.FallbackTrigger
	)
	app := fxtest.New(t,
		fx.Supply(cfg),
		fx.Provide(func() interfaces.Transport { return self }),
		fx.Provide(func() *scheduler.Scheduler { return scheduler.New(clock.NewMock()) }),
		fx.Provide(fx.Annotate(func() interfaces.FallbackMethod { return dnsM }, fx.ResultTags(`group:"fallback_methods"`))),
		Module(),
		fx.Populate(&eng, &trigger),
	)
	app.RequireStart()
	defer app.RequireStop()

	require.NotNil(t, eng)
	assert.Same(t, eng, trigger)
	assert.Equal(t, []string{SeedMethodName, "dns"}, eng.FallbackMethods())
	assert.Len(t, eng.Seeds(), 1)
}
