package relayseed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/types"
)

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func staticSource(peers ...types.PeerDescriptor) PeerSource {
	return func(limit int) []types.PeerDescriptor { return peers }
}

func testPeers() []types.PeerDescriptor {
	return []types.PeerDescriptor{
		types.NewPeerDescriptor("a", []types.Address{"/memory/a"}, map[string]string{types.MetaRegion: "eu"}),
		types.NewPeerDescriptor("b", []types.Address{"/memory/b"}, nil),
		types.NewPeerDescriptor("c", nil, nil),
	}
}

func TestClient_QueriesEndpoint(t *testing.T) {
	srv := httptest.NewServer(NewHandler("meshcore", staticSource(testPeers()...)))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoints = []string{wsURL(srv)}
	cfg.Timeout = 2 * time.Second
	c := NewClient(cfg)

	peers, err := c.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, types.PeerID("a"), peers[0].ID)
	assert.Equal(t, "eu", peers[0].Meta(types.MetaRegion))
	assert.Equal(t, "relay", peers[0].Meta(types.MetaSource))
	assert.Equal(t, MethodName, c.Name())
	assert.Equal(t, Priority, c.Priority())
}

func TestClient_MergesEndpointsAndSkipsFailures(t *testing.T) {
	a := httptest.NewServer(NewHandler("", staticSource(testPeers()[0])))
	defer a.Close()
	b := httptest.NewServer(NewHandler("", staticSource(testPeers()[:2]...)))
	defer b.Close()
	broken := httptest.NewServer(http.NotFoundHandler())
	defer broken.Close()

	cfg := DefaultConfig()
	cfg.Endpoints = []string{wsURL(broken), wsURL(a), wsURL(b)}
	cfg.Timeout = 2 * time.Second

	peers, err := NewClient(cfg).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, types.PeerID("b"), peers[1].ID)
}

func TestClient_NamespaceMismatch(t *testing.T) {
	srv := httptest.NewServer(NewHandler("other", staticSource(testPeers()...)))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoints = []string{wsURL(srv)}
	_, err := NewClient(cfg).Discover(context.Background())
	assert.ErrorIs(t, err, ErrBadResponse)
}

func TestClient_Limit(t *testing.T) {
	srv := httptest.NewServer(NewHandler("", func(limit int) []types.PeerDescriptor {
		out := make([]types.PeerDescriptor, 0, 10)
		for i := 0; i < 10; i++ {
			id := types.PeerID(string(rune('a' + i)))
			out = append(out, types.NewPeerDescriptor(id, []types.Address{"/memory/" + types.Address(id)}, nil))
		}
		return out
	}))
	defer srv.Close()

	cfg := DefaultConfig()
	cfg.Endpoints = []string{wsURL(srv)}
	cfg.Limit = 3
	peers, err := NewClient(cfg).Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, peers, 3)
}

func TestClient_NoEndpoints(t *testing.T) {
	_, err := NewClient(DefaultConfig()).Discover(context.Background())
	assert.ErrorIs(t, err, ErrNoEndpoints)
}

func TestClient_ContextCancelled(t *testing.T) {
	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer srv.Close()
	defer close(block)

	cfg := DefaultConfig()
	cfg.Endpoints = []string{wsURL(srv)}
	cfg.Timeout = 50 * time.Millisecond

	start := time.Now()
	_, err := NewClient(cfg).Discover(context.Background())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestConfigFromUnified(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Bootstrap.RelaySeeds = []string{"ws://seed.example.com/peers"}
	c := ConfigFromUnified(cfg)
	assert.Equal(t, []string{"ws://seed.example.com/peers"}, c.Endpoints)
	assert.Equal(t, cfg.Node.Namespace, c.Namespace)

	assert.Len(t, NewFromParams(Params{UnifiedCfg: cfg}).Methods, 1)
	assert.Empty(t, NewFromParams(Params{}).Methods)
}
