package libp2p

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	cfg.DHTMode = "server"
	cfg.ProtocolPrefix = "/meshcore-test"
	cfg.ConnHighWater = 0
	cfg.ConnLowWater = 0
	return cfg
}

func newTestTransport(t *testing.T) *Transport {
	t.Helper()
	tr, err := New(context.Background(), testConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = tr.Close() })
	return tr
}

func descriptorOf(tr *Transport) types.PeerDescriptor {
	return types.NewPeerDescriptor(tr.LocalPeer(), tr.LocalAddrs(), nil)
}

func nextEvent(t *testing.T, ch <-chan types.ConnEvent) types.ConnEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for connection event")
		return types.ConnEvent{}
	}
}

// ============================================================================
//                              配置
// ============================================================================

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.DHTMode = "full"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ProtocolPrefix = "meshcore"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.ConnLowWater, cfg.ConnHighWater = 10, 5
	assert.Error(t, cfg.Validate())
}

func TestConfigFromUnified(t *testing.T) {
	u := config.NewConfig()
	u.Node.Namespace = "lab"
	u.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	u.Transport.DHTMode = "client"

	cfg := ConfigFromUnified(u)
	assert.Equal(t, "/lab", cfg.ProtocolPrefix)
	assert.Equal(t, "client", cfg.DHTMode)
	assert.Equal(t, []string{"/ip4/127.0.0.1/tcp/0"}, cfg.ListenAddrs)
	assert.Equal(t, DefaultConfig(), ConfigFromUnified(nil))
}

// ============================================================================
//                              连接
// ============================================================================

func TestDial_EventsAndPing(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	events, cancel := a.SubscribeEvents()
	defer cancel()

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()

	c, err := a.Dial(ctx, descriptorOf(b))
	require.NoError(t, err)
	assert.Equal(t, b.LocalPeer(), c.RemotePeer())
	assert.Equal(t, types.DirOutbound, c.Direction())
	assert.False(t, c.Opened().IsZero())

	ev := nextEvent(t, events)
	assert.Equal(t, types.ConnEventConnected, ev.Kind)
	assert.Equal(t, b.LocalPeer(), ev.PeerID)

	// 已连接时返回现有连接
	again, err := a.Dial(ctx, types.PeerDescriptor{ID: b.LocalPeer()})
	require.NoError(t, err)
	assert.Equal(t, b.LocalPeer(), again.RemotePeer())
	require.Len(t, a.Connections(), 1)

	rtt, err := a.Ping(ctx, b.LocalPeer())
	require.NoError(t, err)
	assert.Greater(t, rtt, time.Duration(0))

	bw := a.Bandwidth()
	assert.GreaterOrEqual(t, bw.InBytesPerSec, 0.0)
	assert.GreaterOrEqual(t, bw.OutBytesPerSec, 0.0)

	require.NoError(t, a.ClosePeer(b.LocalPeer()))
	ev = nextEvent(t, events)
	assert.Equal(t, types.ConnEventDisconnected, ev.Kind)
	assert.Equal(t, b.LocalPeer(), ev.PeerID)

	_, err = a.Ping(ctx, b.LocalPeer())
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDial_Errors(t *testing.T) {
	a := newTestTransport(t)
	ctx := context.Background()

	_, err := a.Dial(ctx, types.PeerDescriptor{ID: "not-a-peer-id"})
	assert.ErrorIs(t, err, ErrInvalidPeerID)

	_, err = a.Dial(ctx, descriptorOf(a))
	assert.ErrorIs(t, err, ErrDialSelf)

	b := newTestTransport(t)
	_, err = a.Dial(ctx, types.PeerDescriptor{ID: b.LocalPeer()})
	assert.ErrorIs(t, err, ErrNoAddrs)
}

func TestOpenStream_Echo(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)
	const proto = types.ProtocolID("/meshcore-test/echo/1.0.0")

	b.SetStreamHandler(proto, func(s interfaces.Stream) {
		defer s.Close()
		_, _ = io.Copy(s, s)
	})

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	c, err := a.Dial(ctx, descriptorOf(b))
	require.NoError(t, err)

	s, err := a.OpenStream(ctx, c, proto)
	require.NoError(t, err)
	assert.Equal(t, proto, s.Protocol())

	_, err = s.Write([]byte("ping"))
	require.NoError(t, err)
	buf := make([]byte, 4)
	_, err = io.ReadFull(s, buf)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf))
	require.NoError(t, s.Close())
}

// ============================================================================
//                              发现基座
// ============================================================================

func TestDHT_RequiresRoutingTable(t *testing.T) {
	a := newTestTransport(t)
	d := a.DHT()
	assert.False(t, d.Connected())
	assert.ErrorIs(t, d.Join(context.Background(), "/meshcore/topic/x"), ErrDHTUnavailable)
	_, err := d.FindPeers(context.Background(), "/meshcore/topic/x", 5)
	assert.ErrorIs(t, err, ErrDHTUnavailable)
	assert.NoError(t, d.Leave(context.Background(), "/meshcore/topic/x"))
}

func TestDHT_JoinLeave(t *testing.T) {
	a := newTestTransport(t)
	b := newTestTransport(t)

	ctx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	_, err := a.Dial(ctx, descriptorOf(b))
	require.NoError(t, err)
	require.Eventually(t, a.DHT().Connected, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, a.DHT().Join(ctx, "/meshcore/topic/x"))
	require.NoError(t, a.DHT().Join(ctx, "/meshcore/topic/x"))
	assert.Equal(t, 1, a.dht.Joined())

	require.NoError(t, a.DHT().Leave(ctx, "/meshcore/topic/x"))
	assert.Zero(t, a.dht.Joined())
}

// ============================================================================
//                              生命周期
// ============================================================================

func TestClose_Idempotent(t *testing.T) {
	tr, err := New(context.Background(), testConfig())
	require.NoError(t, err)

	events, _ := tr.SubscribeEvents()
	require.NoError(t, tr.Close())
	require.NoError(t, tr.Close())

	_, open := <-events
	assert.False(t, open, "subscriptions are closed")

	late, _ := tr.SubscribeEvents()
	_, open = <-late
	assert.False(t, open)
}

func TestModule(t *testing.T) {
	u := config.NewConfig()
	u.Transport.ListenAddrs = []string{"/ip4/127.0.0.1/tcp/0"}
	u.Transport.ConnHighWater = 0
	u.Transport.ConnLowWater = 0

	var (
		tr interfaces.Transport
		h  host.Host
	)
	app := fxtest.New(t,
		fx.Supply(u),
		Module(),
		fx.Populate(&tr, &h),
	)
	app.RequireStart()
	require.NotNil(t, tr)
	assert.Equal(t, types.PeerID(h.ID().String()), tr.LocalPeer())
	app.RequireStop()
}
