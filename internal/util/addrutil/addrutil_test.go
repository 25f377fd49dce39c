package addrutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/meshcore/pkg/types"
)

const testPeer = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"

func TestParseFullAddr(t *testing.T) {
	tests := []struct {
		name     string
		fullAddr string
		wantDial string
	}{
		{"ip4 tcp", "/ip4/1.2.3.4/tcp/4001/p2p/" + testPeer, "/ip4/1.2.3.4/tcp/4001"},
		{"ip6 quic", "/ip6/::1/udp/4001/quic-v1/p2p/" + testPeer, "/ip6/::1/udp/4001/quic-v1"},
		{"dns4", "/dns4/boot.example.com/tcp/4001/p2p/" + testPeer, "/dns4/boot.example.com/tcp/4001"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, dial, err := ParseFullAddr(tt.fullAddr)
			require.NoError(t, err)
			assert.Equal(t, types.PeerID(testPeer), id)
			assert.Equal(t, types.Address(tt.wantDial), dial)
		})
	}
}

func TestParseFullAddr_Invalid(t *testing.T) {
	_, _, err := ParseFullAddr("")
	assert.ErrorIs(t, err, ErrEmptyAddress)

	_, _, err = ParseFullAddr("/ip4/1.2.3.4/tcp/4001")
	assert.ErrorIs(t, err, ErrMissingPeerID)

	_, _, err = ParseFullAddr("/ip4/1.2.3.4/tcp/4001/p2p/" + testPeer + "/tcp/1")
	assert.ErrorIs(t, err, ErrPeerIDNotAtEnd)

	_, _, err = ParseFullAddr("/bogus/1.2.3.4/p2p/" + testPeer)
	assert.ErrorIs(t, err, ErrInvalidFullAddr)
}

func TestParseSeed(t *testing.T) {
	id, addr, err := ParseSeed("peerA@/memory/peerA")
	require.NoError(t, err)
	assert.Equal(t, types.PeerID("peerA"), id)
	assert.Equal(t, types.Address("/memory/peerA"), addr)

	id, addr, err = ParseSeed("/ip4/10.0.0.1/tcp/4001/p2p/" + testPeer)
	require.NoError(t, err)
	assert.Equal(t, types.PeerID(testPeer), id)
	assert.Equal(t, types.Address("/ip4/10.0.0.1/tcp/4001"), addr)

	_, _, err = ParseSeed("peerA@")
	assert.ErrorIs(t, err, ErrEmptyAddress)
}

func TestBuildFullAddr(t *testing.T) {
	s, err := BuildFullAddr("/ip4/1.2.3.4/tcp/4001", testPeer)
	require.NoError(t, err)
	assert.Equal(t, "/ip4/1.2.3.4/tcp/4001/p2p/"+testPeer, s)

	again, err := BuildFullAddr(types.Address(s), testPeer)
	require.NoError(t, err)
	assert.Equal(t, s, again)

	_, err = BuildFullAddr(types.Address(s), "other")
	assert.Error(t, err)

	assert.Equal(t, "/ip4/1.2.3.4/tcp/4001", StripPeerID(s))
	assert.True(t, HasPeerID(s))
	assert.False(t, HasPeerID("/ip4/1.2.3.4/tcp/4001"))
}

func TestAddrType(t *testing.T) {
	assert.Equal(t, "loopback", AddrType("/ip4/127.0.0.1/tcp/4001"))
	assert.Equal(t, "private", AddrType("/ip4/192.168.1.1/tcp/4001"))
	assert.Equal(t, "public", AddrType("/ip4/8.8.8.8/tcp/4001"))
	assert.Equal(t, "dns", AddrType("/dns4/example.com/tcp/4001"))
	assert.Equal(t, "relay", AddrType("/ip4/8.8.8.8/tcp/4001/p2p/"+testPeer+"/p2p-circuit"))
	assert.Equal(t, "private", AddrType("10.1.2.3:4001"))
	assert.Equal(t, "unknown", AddrType(""))
}
