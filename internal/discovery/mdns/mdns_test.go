package mdns

import (
	"context"
	"testing"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/types"
)

func mustPeer(t *testing.T, s string) peer.ID {
	t.Helper()
	id, err := peer.Decode(s)
	require.NoError(t, err)
	return id
}

func addrInfo(t *testing.T, s string, addr string) peer.AddrInfo {
	t.Helper()
	return peer.AddrInfo{ID: mustPeer(t, s), Addrs: []ma.Multiaddr{ma.StringCast(addr)}}
}

const (
	selfPeer  = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"
	otherPeer = "QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa"
)

func TestDiscover_ReturnsCachedPeers(t *testing.T) {
	m := newWithSelf(mustPeer(t, selfPeer), DefaultConfig())

	m.cache.HandlePeerFound(addrInfo(t, selfPeer, "/ip4/192.168.1.2/tcp/4001"))
	m.cache.HandlePeerFound(addrInfo(t, otherPeer, "/ip4/192.168.1.3/tcp/4001"))
	m.cache.HandlePeerFound(peer.AddrInfo{ID: mustPeer(t, otherPeer)})

	peers, err := m.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerID(otherPeer), peers[0].ID)
	assert.Equal(t, []types.Address{"/ip4/192.168.1.3/tcp/4001"}, peers[0].Addrs)
	assert.Equal(t, "mdns", peers[0].Meta(types.MetaSource))
}

func TestDiscover_WaitsForAnnouncement(t *testing.T) {
	m := newWithSelf(mustPeer(t, selfPeer), DefaultConfig())

	info := addrInfo(t, otherPeer, "/ip4/192.168.1.3/tcp/4001")
	go func() {
		time.Sleep(20 * time.Millisecond)
		m.cache.HandlePeerFound(info)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	peers, err := m.Discover(ctx)
	require.NoError(t, err)
	assert.Len(t, peers, 1)
}

func TestDiscover_EmptyOnDeadline(t *testing.T) {
	m := newWithSelf(mustPeer(t, selfPeer), DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	peers, err := m.Discover(ctx)
	assert.NoError(t, err)
	assert.Empty(t, peers)

	require.NoError(t, m.Close())
	_, err = m.Discover(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNilHost)

	cfg := DefaultConfig()
	cfg.ServiceTag = ""
	assert.Error(t, cfg.Validate())
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Bootstrap.EnableMDNS = false
	cfg.Bootstrap.MDNSService = "_custom._udp"
	c := ConfigFromUnified(cfg)
	assert.False(t, c.Enabled)
	assert.Equal(t, "_custom._udp", c.ServiceTag)

	m := newWithSelf(mustPeer(t, selfPeer), DefaultConfig())
	assert.Equal(t, MethodName, m.Name())
	assert.Equal(t, Priority, m.Priority())
	assert.Empty(t, m.Peers())
}
