package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

func nextEvent(t *testing.T, ch <-chan types.ConnEvent) types.ConnEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return types.ConnEvent{}
	}
}

func TestDial_EmitsEventsOnBothSides(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	b := n.AddPeer("b", map[string]string{types.MetaRegion: "eu"})

	evA, cancelA := a.SubscribeEvents()
	defer cancelA()
	evB, cancelB := b.SubscribeEvents()
	defer cancelB()

	c, err := a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)
	assert.Equal(t, types.PeerID("b"), c.RemotePeer())
	assert.Equal(t, types.DirOutbound, c.Direction())

	ev := nextEvent(t, evA)
	assert.Equal(t, types.ConnEventConnected, ev.Kind)
	assert.Equal(t, types.PeerID("b"), ev.PeerID)
	ev = nextEvent(t, evB)
	assert.Equal(t, types.PeerID("a"), ev.PeerID)
	assert.Equal(t, types.DirInbound, ev.Direction)

	// 重复拨号复用连接，不产生新事件
	_, err = a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)
	assert.Len(t, a.Connections(), 1)
	assert.Equal(t, 2, n.DialCount("b"))

	require.NoError(t, c.Close())
	assert.Equal(t, types.ConnEventDisconnected, nextEvent(t, evA).Kind)
	assert.Equal(t, types.ConnEventDisconnected, nextEvent(t, evB).Kind)
	assert.False(t, a.IsConnected("b"))
}

func TestReachability(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	n.AddPeer("b", nil)

	_, err := a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)

	n.SetReachable("b", false)
	_, err = a.Ping(context.Background(), "b")
	assert.True(t, errors.Is(err, ErrUnreachable))
	// 静默故障：连接仍在
	assert.True(t, a.IsConnected("b"))

	_, err = a.Dial(context.Background(), n.Descriptor("missing"))
	assert.ErrorIs(t, err, ErrUnreachable)

	n.SetReachable("b", true)
	_, err = a.Ping(context.Background(), "b")
	assert.NoError(t, err)
}

func TestCrash_ClosesConnections(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	n.AddPeer("b", nil)
	ev, cancel := a.SubscribeEvents()
	defer cancel()

	_, err := a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)
	nextEvent(t, ev)

	n.Crash("b")
	got := nextEvent(t, ev)
	assert.Equal(t, types.ConnEventDisconnected, got.Kind)
	assert.False(t, n.Reachable("b"))
	_, err = a.Dial(context.Background(), n.Descriptor("b"))
	assert.ErrorIs(t, err, ErrUnreachable)
}

func TestPing_Latency(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	n.AddPeer("b", nil)
	_, err := a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)

	n.SetLatency("b", 20*time.Millisecond)
	rtt, err := a.Ping(context.Background(), "b")
	require.NoError(t, err)
	assert.Equal(t, 20*time.Millisecond, rtt)

	n.SetLatency("b", time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = a.Ping(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = a.Ping(context.Background(), "c")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestOpenStream_HealthProtocol(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	n.AddPeer("b", nil)
	c, err := a.Dial(context.Background(), n.Descriptor("b"))
	require.NoError(t, err)

	s, err := a.OpenStream(context.Background(), c, DefaultHealthProtocol)
	require.NoError(t, err)
	assert.Equal(t, DefaultHealthProtocol, s.Protocol())
	require.NoError(t, s.Close())

	_, err = a.OpenStream(context.Background(), c, "/unknown/1.0.0")
	assert.ErrorIs(t, err, ErrProtocolNotSupported)
}

func TestDHT_JoinFindLeave(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	b := n.AddPeer("b", nil)
	ctx := context.Background()

	require.NoError(t, a.DHT().Join(ctx, "t1"))
	require.NoError(t, a.DHT().Join(ctx, "t1"))
	require.NoError(t, b.DHT().Join(ctx, "t1"))
	assert.Equal(t, 2, n.TopicMembers("t1"))

	peers, err := a.DHT().FindPeers(ctx, "t1", 10)
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, types.PeerID("a"), peers[0].ID)

	peers, err = a.DHT().FindPeers(ctx, "t1", 1)
	require.NoError(t, err)
	assert.Len(t, peers, 1)

	require.NoError(t, b.DHT().Leave(ctx, "t1"))
	assert.Equal(t, 1, n.TopicMembers("t1"))

	n.SetDHTAvailable(false)
	assert.False(t, a.DHT().Connected())
	_, err = a.DHT().FindPeers(ctx, "t1", 10)
	assert.ErrorIs(t, err, ErrDHTUnavailable)
	assert.ErrorIs(t, a.DHT().Join(ctx, "t2"), ErrDHTUnavailable)
}

func TestTransport_Close(t *testing.T) {
	n := NewNetwork()
	a := n.AddPeer("a", nil)
	b := n.AddPeer("b", nil)
	ev, _ := a.SubscribeEvents()

	_, err := b.Dial(context.Background(), n.Descriptor("a"))
	require.NoError(t, err)
	nextEvent(t, ev)

	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
	assert.Empty(t, b.Connections())

	// 关闭后事件通道被关闭
	for range ev {
	}
}

func TestModule_SharedNetwork(t *testing.T) {
	n := NewNetwork()
	var tr interfaces.Transport
	app := fxtest.New(t,
		fx.Supply(n),
		Module(),
		fx.Populate(&tr),
	)
	app.RequireStart()

	require.NotNil(t, tr)
	assert.Contains(t, n.Peers(), tr.LocalPeer())
	assert.Equal(t, []types.Address{types.Address("/memory/" + tr.LocalPeer().String())}, tr.LocalAddrs())

	other := n.AddPeer("other", nil)
	_, err := other.Dial(context.Background(), n.Descriptor(tr.LocalPeer()))
	require.NoError(t, err)
	assert.Len(t, tr.Connections(), 1)

	app.RequireStop()
	assert.Empty(t, other.Connections())
}
