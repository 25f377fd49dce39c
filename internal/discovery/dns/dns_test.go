package dns

import (
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	mdns "github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/meshcore/pkg/types"
)

const (
	peerA = "QmNnooDu7bfjPFoTZYxMNLWUQJyrVwtbZg5gBMjTezGAJN"
	peerB = "QmQCU2EcMqAqQPR2i9bChDtGNJchTbq5TbXJJ16u19uLTa"
	peerC = "QmcZf59bWwK5XFi76CZX8cbJ4BhTzzA3gU1ZjYZcYW3dwt"
)

// startServer 启动本地 DNS 服务器，zone 为 FQDN → TXT 记录
func startServer(t *testing.T, zone map[string][]string) (string, *atomic.Int32) {
	t.Helper()
	var queries atomic.Int32

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	handler := mdns.HandlerFunc(func(w mdns.ResponseWriter, req *mdns.Msg) {
		queries.Add(1)
		m := new(mdns.Msg)
		m.SetReply(req)
		q := req.Question[0]
		records, ok := zone[q.Name]
		if !ok {
			m.Rcode = mdns.RcodeNameError
		}
		for _, txt := range records {
			m.Answer = append(m.Answer, &mdns.TXT{
				Hdr: mdns.RR_Header{Name: q.Name, Rrtype: mdns.TypeTXT, Class: mdns.ClassINET, Ttl: 60},
				Txt: []string{txt},
			})
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	srv := &mdns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("dns server did not start")
	}
	t.Cleanup(func() { _ = srv.Shutdown() })
	return pc.LocalAddr().String(), &queries
}

func testConfig(server string, domains ...string) Config {
	cfg := DefaultConfig()
	cfg.Server = server
	cfg.Domains = domains
	cfg.Timeout = time.Second
	return cfg
}

func TestParseDNSAddr(t *testing.T) {
	peer, nested, err := ParseDNSAddr("dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/" + peerA)
	require.NoError(t, err)
	assert.Empty(t, nested)
	assert.Equal(t, types.PeerID(peerA), peer.ID)
	assert.Equal(t, []types.Address{"/ip4/1.2.3.4/tcp/4001"}, peer.Addrs)
	assert.Equal(t, "dns", peer.Meta(types.MetaSource))

	peer, nested, err = ParseDNSAddr("dnsaddr=/dnsaddr/eu.example.com")
	require.NoError(t, err)
	assert.Nil(t, peer)
	assert.Equal(t, "eu.example.com", nested)

	for _, bad := range []string{
		"",
		"ip4=/ip4/1.2.3.4",
		"dnsaddr=",
		"dnsaddr=/dnsaddr/",
		"dnsaddr=/ip4/1.2.3.4/tcp/4001",
	} {
		_, _, err := ParseDNSAddr(bad)
		assert.ErrorIs(t, err, ErrInvalidDNSAddr, bad)
	}
}

func TestValidateDomain(t *testing.T) {
	assert.NoError(t, ValidateDomain("boot.example.com"))
	assert.NoError(t, ValidateDomain("_dnsaddr.boot.example.com"))
	assert.ErrorIs(t, ValidateDomain(""), ErrInvalidDomain)
	assert.ErrorIs(t, ValidateDomain("bad..example.com"), ErrInvalidDomain)
	assert.ErrorIs(t, ValidateDomain("-bad.example.com"), ErrInvalidDomain)
	assert.ErrorIs(t, ValidateDomain("bad-.example.com"), ErrInvalidDomain)
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())

	cfg.Timeout = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.MaxDepth = 11
	assert.Error(t, cfg.Validate())
}

func TestDiscover_ResolvesNestedRecords(t *testing.T) {
	addr, _ := startServer(t, map[string][]string{
		"_dnsaddr.boot.example.com.": {
			"dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/" + peerA,
			"dnsaddr=/dnsaddr/eu.example.com",
			"garbage",
		},
		"_dnsaddr.eu.example.com.": {
			"dnsaddr=/ip4/5.6.7.8/tcp/4001/p2p/" + peerB,
			"dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/" + peerA,
		},
	})

	d := NewDiscoverer(testConfig(addr, "boot.example.com"))
	peers, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 2)
	assert.Equal(t, types.PeerID(peerA), peers[0].ID)
	assert.Equal(t, types.PeerID(peerB), peers[1].ID)

	st := d.Stats()
	assert.Equal(t, 1, st.TotalDomains)
	assert.Equal(t, 2, st.TotalPeers)
}

func TestDiscover_MaxDepth(t *testing.T) {
	addr, _ := startServer(t, map[string][]string{
		"_dnsaddr.a.example.com.": {"dnsaddr=/dnsaddr/b.example.com"},
		"_dnsaddr.b.example.com.": {"dnsaddr=/ip4/5.6.7.8/tcp/4001/p2p/" + peerC},
	})

	cfg := testConfig(addr, "a.example.com")
	cfg.MaxDepth = 0
	peers, err := NewDiscoverer(cfg).Discover(context.Background())
	require.NoError(t, err)
	assert.Empty(t, peers)

	cfg.MaxDepth = 1
	peers, err = NewDiscoverer(cfg).Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, peers, 1)
	assert.Equal(t, types.PeerID(peerC), peers[0].ID)
}

func TestDiscover_Cache(t *testing.T) {
	addr, queries := startServer(t, map[string][]string{
		"_dnsaddr.boot.example.com.": {"dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/" + peerA},
	})
	d := NewDiscoverer(testConfig(addr, "boot.example.com"))

	for i := 0; i < 3; i++ {
		_, err := d.Discover(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), queries.Load())

	d.Reset()
	_, err := d.Discover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(2), queries.Load())
}

func TestDiscover_AllDomainsFail(t *testing.T) {
	addr, _ := startServer(t, map[string][]string{})
	d := NewDiscoverer(testConfig(addr, "missing.example.com"))

	peers, err := d.Discover(context.Background())
	assert.Empty(t, peers)
	assert.ErrorIs(t, err, ErrNoRecordsFound)

	_, err = NewDiscoverer(testConfig(addr)).Discover(context.Background())
	assert.ErrorIs(t, err, ErrNoDomains)
}

func TestDiscoverer_AddRemoveDomain(t *testing.T) {
	d := NewDiscoverer(DefaultConfig())
	require.NoError(t, d.AddDomain("a.example.com"))
	require.NoError(t, d.AddDomain("a.example.com"))
	require.NoError(t, d.AddDomain("b.example.com"))
	assert.Equal(t, []string{"a.example.com", "b.example.com"}, d.Domains())

	assert.Error(t, d.AddDomain("bad..domain"))

	d.RemoveDomain("a.example.com")
	assert.Equal(t, []string{"b.example.com"}, d.Domains())
	assert.Equal(t, MethodName, d.Name())
	assert.Equal(t, Priority, d.Priority())
}

func TestNewFromParams(t *testing.T) {
	res, err := NewFromParams(Params{})
	require.NoError(t, err)
	assert.Empty(t, res.Methods)
}
