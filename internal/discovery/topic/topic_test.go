package topic

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/internal/transport/memory"
	"github.com/dep2p/meshcore/pkg/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.LookupTimeout = 200 * time.Millisecond
	cfg.CacheTTL = 0
	cfg.Interval = time.Second
	return cfg
}

func newTestService(t *testing.T, cfg Config, tr *memory.Transport) (*Service, *clock.Mock) {
	t.Helper()
	clk := clock.NewMock()
	sched := scheduler.New(clk)
	t.Cleanup(sched.Stop)

	svc, err := NewService(cfg, tr.DHT(), tr.LocalPeer(), sched)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc, clk
}

// countingDHT 记录调用次数
type countingDHT struct {
	mu    sync.Mutex
	joins int
	leave int
	finds int
	err   error
	block bool
	peers []types.PeerDescriptor
}

func (d *countingDHT) Join(context.Context, types.TopicID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.joins++
	return d.err
}

func (d *countingDHT) Leave(context.Context, types.TopicID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.leave++
	return nil
}

func (d *countingDHT) FindPeers(ctx context.Context, _ types.TopicID, _ int) ([]types.PeerDescriptor, error) {
	d.mu.Lock()
	d.finds++
	block, err, peers := d.block, d.err, d.peers
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return peers, err
}

func (d *countingDHT) Connected() bool { return true }

func (d *countingDHT) counts() (int, int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.joins, d.leave, d.finds
}

// ============================================================================
//                              主题生成
// ============================================================================

func TestGenerateTopics_Deterministic(t *testing.T) {
	c := types.SearchCriteria{
		Location:  &types.GeoPoint{Lat: 52.52, Lon: 13.405},
		Interests: []string{"Music", "art", "music"},
	}
	a := GenerateTopics(c, 1)
	b := GenerateTopics(c, 1)
	require.Len(t, a, 3)
	assert.Equal(t, a, b)

	// 同一网格内的坐标得到同一主题
	near := GenerateTopics(types.SearchCriteria{Location: &types.GeoPoint{Lat: 52.9, Lon: 13.1}}, 1)
	assert.Contains(t, a, near[0])

	for _, topic := range a {
		assert.Regexp(t, `^/meshcore/topic/[0-9a-f]{32}$`, string(topic))
	}
}

func TestGenerateTopics_Namespace(t *testing.T) {
	c := types.SearchCriteria{Namespace: "/apps/", Interests: []string{"go"}}
	topics := GenerateTopics(c, 0)
	require.Len(t, topics, 1)
	assert.Regexp(t, `^/apps/topic/`, string(topics[0]))

	assert.Empty(t, GenerateTopics(types.SearchCriteria{}, 1))
}

func TestLocationBucket(t *testing.T) {
	assert.Equal(t, "52.0000,13.0000", LocationBucket(types.GeoPoint{Lat: 52.52, Lon: 13.405}, 1))
	assert.Equal(t, "-34.0000,151.0000", LocationBucket(types.GeoPoint{Lat: -33.86, Lon: 151.2}, 1))
	assert.Equal(t, "52.5000,13.0000", LocationBucket(types.GeoPoint{Lat: 52.52, Lon: 13.405}, 0.5))
}

func TestMergeUnique(t *testing.T) {
	a := []types.PeerDescriptor{{ID: "p1"}, {ID: "p2"}}
	b := []types.PeerDescriptor{{ID: "p2"}, {ID: "p3"}, {ID: ""}}

	out := MergeUnique(0, a, b)
	require.Len(t, out, 3)
	assert.Equal(t, types.PeerID("p3"), out[2].ID)

	assert.Len(t, MergeUnique(2, a, b), 2)
}

// ============================================================================
//                              Join / Leave
// ============================================================================

func TestJoin_Idempotent(t *testing.T) {
	dht := &countingDHT{}
	sched := scheduler.New(clock.NewMock())
	defer sched.Stop()
	svc, err := NewService(testConfig(), dht, "self", sched)
	require.NoError(t, err)

	topics := svc.Topics(types.SearchCriteria{Interests: []string{"go", "p2p"}})
	require.NoError(t, svc.Join(context.Background(), topics))
	require.NoError(t, svc.Join(context.Background(), topics))

	joins, _, _ := dht.counts()
	assert.Equal(t, 2, joins)
	assert.Len(t, svc.JoinedTopics(), 2)

	require.NoError(t, svc.Leave(context.Background(), topics[:1]))
	require.NoError(t, svc.Leave(context.Background(), topics[:1]))
	_, leaves, _ := dht.counts()
	assert.Equal(t, 1, leaves)
	assert.Len(t, svc.JoinedTopics(), 1)
	assert.Equal(t, 1, svc.Status().JoinedTopics)
}

func TestJoin_FailureRetriedByRefresh(t *testing.T) {
	dht := &countingDHT{err: errors.New("boom")}
	sched := scheduler.New(clock.NewMock())
	defer sched.Stop()
	svc, err := NewService(testConfig(), dht, "self", sched)
	require.NoError(t, err)

	topics := svc.Topics(types.SearchCriteria{Interests: []string{"go"}})
	err = svc.Join(context.Background(), topics)
	require.ErrorIs(t, err, ErrDiscoveryUnreachable)
	assert.Len(t, svc.JoinedTopics(), 1)

	dht.mu.Lock()
	dht.err = nil
	dht.mu.Unlock()

	svc.RefreshNow(context.Background())
	require.NoError(t, svc.Join(context.Background(), topics))
	joins, _, _ := dht.counts()
	// 失败一次 + 刷新成功一次；之后的 Join 不再公告
	assert.Equal(t, 2, joins)
}

// ============================================================================
//                              FindPeers
// ============================================================================

func TestFindPeers_DedupesAndFiltersSelf(t *testing.T) {
	dht := &countingDHT{peers: []types.PeerDescriptor{
		{ID: "self"}, {ID: "a"}, {ID: "b"}, {ID: "a"},
	}}
	sched := scheduler.New(clock.NewMock())
	defer sched.Stop()
	svc, err := NewService(testConfig(), dht, "self", sched)
	require.NoError(t, err)

	peers, err := svc.FindPeers(context.Background(), "/meshcore/topic/x")
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, types.PeerID("a"), peers[0].ID)
	assert.Equal(t, "discovery", peers[0].Meta(types.MetaSource))
}

func TestFindPeers_Timeout(t *testing.T) {
	dht := &countingDHT{block: true}
	sched := scheduler.New(clock.NewMock())
	defer sched.Stop()
	cfg := testConfig()
	cfg.LookupTimeout = 20 * time.Millisecond
	svc, err := NewService(cfg, dht, "self", sched)
	require.NoError(t, err)

	start := time.Now()
	_, err = svc.FindPeers(context.Background(), "/meshcore/topic/x")
	require.ErrorIs(t, err, ErrDiscoveryTimeout)
	assert.Less(t, time.Since(start), time.Second)
	assert.NotEmpty(t, svc.Status().LastError)
}

func TestFindPeers_Unreachable(t *testing.T) {
	net := memory.NewNetwork()
	tr := net.AddPeer("self", nil)
	svc, _ := newTestService(t, testConfig(), tr)

	net.SetDHTAvailable(false)
	_, err := svc.FindPeers(context.Background(), "/meshcore/topic/x")
	assert.ErrorIs(t, err, ErrDiscoveryUnreachable)
	assert.False(t, svc.Status().Connected)

	sched := scheduler.New(nil)
	defer sched.Stop()
	noDHT, err := NewService(testConfig(), nil, "self", sched)
	require.NoError(t, err)
	_, err = noDHT.FindPeers(context.Background(), "/meshcore/topic/x")
	assert.ErrorIs(t, err, ErrDiscoveryUnreachable)
}

func TestFindPeers_Cache(t *testing.T) {
	dht := &countingDHT{peers: []types.PeerDescriptor{{ID: "a"}}}
	sched := scheduler.New(clock.NewMock())
	defer sched.Stop()
	cfg := testConfig()
	cfg.CacheTTL = time.Minute
	svc, err := NewService(cfg, dht, "self", sched)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		peers, err := svc.FindPeers(context.Background(), "/meshcore/topic/x")
		require.NoError(t, err)
		require.Len(t, peers, 1)
	}
	_, _, finds := dht.counts()
	assert.Equal(t, 1, finds)
}

// ============================================================================
//                              Discover（模拟网络）
// ============================================================================

func TestDiscover_FindsPeersSharingInterests(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	other := net.AddPeer("other", nil)
	third := net.AddPeer("third", nil)

	criteria := types.SearchCriteria{Interests: []string{"music"}}
	svc, _ := newTestService(t, testConfig(), self)
	otherSvc, _ := newTestService(t, testConfig(), other)
	thirdSvc, _ := newTestService(t, testConfig(), third)

	require.NoError(t, otherSvc.Join(context.Background(), otherSvc.Topics(criteria)))
	require.NoError(t, thirdSvc.Join(context.Background(), thirdSvc.Topics(types.SearchCriteria{Interests: []string{"sports"}})))

	sub, err := svc.DiscoveredEvents().Subscribe()
	require.NoError(t, err)
	defer sub.Close()

	peers, err := svc.Discover(context.Background(), criteria, 10)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerID("other"), peers[0].ID)

	select {
	case ev := <-sub.Out():
		assert.Equal(t, types.PeerID("other"), ev.Peer.ID)
	case <-time.After(time.Second):
		t.Fatal("no discovery event")
	}

	// 再次发现同一节点不重复发事件
	_, err = svc.Discover(context.Background(), criteria, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), svc.DiscoveredEvents().Emitted())

	members := net.TopicMembers(svc.Topics(criteria)[0])
	assert.Equal(t, 2, members)
}

func TestDiscover_AllTopicsFail(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	svc, _ := newTestService(t, testConfig(), self)
	net.SetDHTAvailable(false)

	_, err := svc.Discover(context.Background(), types.SearchCriteria{Interests: []string{"a", "b"}}, 10)
	assert.ErrorIs(t, err, ErrDiscoveryUnreachable)
}

func TestFindCandidates_Exclude(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	criteria := types.SearchCriteria{Interests: []string{"go"}}
	svc, _ := newTestService(t, testConfig(), self)
	require.NoError(t, svc.Join(context.Background(), svc.Topics(criteria)))

	for _, id := range []types.PeerID{"a", "b", "c"} {
		tr := net.AddPeer(id, nil)
		peerSvc, _ := newTestService(t, testConfig(), tr)
		require.NoError(t, peerSvc.Join(context.Background(), peerSvc.Topics(criteria)))
	}

	got, err := svc.FindCandidates(context.Background(), 5, func(id types.PeerID) bool { return id == "a" })
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, types.PeerID("b"), got[0].ID)

	got, err = svc.FindCandidates(context.Background(), 1, nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRefreshLoop_RunsOnInterval(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	svc, clk := newTestService(t, testConfig(), self)
	require.NoError(t, svc.Join(context.Background(), svc.Topics(types.SearchCriteria{Interests: []string{"go"}})))
	require.NoError(t, svc.Start(context.Background()))
	require.NoError(t, svc.Start(context.Background()))

	before := net.Lookups()
	clk.Add(time.Second)
	require.Eventually(t, func() bool { return net.Lookups() > before }, time.Second, time.Millisecond)

	svc.Stop()
}

func TestClose_LeavesTopics(t *testing.T) {
	net := memory.NewNetwork()
	self := net.AddPeer("self", nil)
	svc, _ := newTestService(t, testConfig(), self)
	topics := svc.Topics(types.SearchCriteria{Interests: []string{"go"}})
	require.NoError(t, svc.Join(context.Background(), topics))
	assert.Equal(t, 1, net.TopicMembers(topics[0]))

	require.NoError(t, svc.Close())
	assert.Equal(t, 0, net.TopicMembers(topics[0]))
	assert.ErrorIs(t, svc.Join(context.Background(), topics), ErrServiceClosed)
	_, err := svc.FindPeers(context.Background(), topics[0])
	assert.ErrorIs(t, err, ErrServiceClosed)
}
