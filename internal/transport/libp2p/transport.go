package libp2p

import (
	"context"
	"fmt"
	"sync"
	"time"

	golibp2p "github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/metrics"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/protocol/ping"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/internal/util/addrutil"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("transport/libp2p")

// Transport go-libp2p 传输适配器
type Transport struct {
	cfg  Config
	host host.Host
	kad  *dht.IpfsDHT
	dht  *routingDHT
	ping *ping.PingService
	bw   *metrics.BandwidthCounter

	ctx    context.Context
	cancel context.CancelFunc
	notify *network.NotifyBundle
	queue  chan types.ConnEvent
	done   chan struct{}

	mu        sync.Mutex
	connected map[peer.ID]struct{}
	subs      map[int]chan types.ConnEvent
	nextSub   int
	closed    bool
}

var (
	_ interfaces.Transport         = (*Transport)(nil)
	_ interfaces.Pinger            = (*Transport)(nil)
	_ interfaces.BandwidthReporter = (*Transport)(nil)
	_ interfaces.DHTProvider       = (*Transport)(nil)
)

// New 创建 libp2p host、kad-dht 与路由发现
func New(ctx context.Context, cfg Config, extra ...golibp2p.Option) (*Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("libp2p: invalid config: %w", err)
	}

	bw := metrics.NewBandwidthCounter()
	opts := []golibp2p.Option{
		golibp2p.ListenAddrStrings(cfg.ListenAddrs...),
		golibp2p.BandwidthReporter(bw),
	}
	if cfg.ConnHighWater > 0 {
		cm, err := connmgr.NewConnManager(cfg.ConnLowWater, cfg.ConnHighWater,
			connmgr.WithGracePeriod(cfg.GracePeriod))
		if err != nil {
			return nil, fmt.Errorf("libp2p: connmgr: %w", err)
		}
		opts = append(opts, golibp2p.ConnectionManager(cm))
	}
	opts = append(opts, extra...)

	h, err := golibp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("libp2p: host: %w", err)
	}

	tctx, cancel := context.WithCancel(context.Background())
	kad, err := dht.New(tctx, h,
		dht.Mode(dhtMode(cfg.DHTMode)),
		dht.ProtocolPrefix(protocol.ID(cfg.ProtocolPrefix)),
	)
	if err != nil {
		cancel()
		return nil, multierr.Append(fmt.Errorf("libp2p: dht: %w", err), h.Close())
	}

	t := &Transport{
		cfg:       cfg,
		host:      h,
		kad:       kad,
		ping:      ping.NewPingService(h),
		bw:        bw,
		ctx:       tctx,
		cancel:    cancel,
		queue:     make(chan types.ConnEvent, eventQueueSize),
		done:      make(chan struct{}),
		connected: make(map[peer.ID]struct{}),
		subs:      make(map[int]chan types.ConnEvent),
	}
	t.dht = newRoutingDHT(tctx, h.ID(), kad)
	t.notify = &network.NotifyBundle{
		ConnectedF:    t.onConnected,
		DisconnectedF: t.onDisconnected,
	}
	h.Network().Notify(t.notify)
	go t.dispatch()

	if err := kad.Bootstrap(ctx); err != nil {
		logger.Warn("DHT 引导失败", "error", err)
	}
	logger.Info("libp2p 传输已启动",
		"peer", log.TruncateID(h.ID().String(), 12),
		"addrs", len(h.Addrs()),
		"dhtMode", cfg.DHTMode)
	return t, nil
}

func dhtMode(s string) dht.ModeOpt {
	switch s {
	case "client":
		return dht.ModeClient
	case "server":
		return dht.ModeServer
	default:
		return dht.ModeAuto
	}
}

// Host 底层 libp2p host
func (t *Transport) Host() host.Host { return t.host }

// LocalPeer 返回本地节点 ID
func (t *Transport) LocalPeer() types.PeerID { return types.PeerID(t.host.ID().String()) }

// LocalAddrs 返回监听地址（不含 /p2p 后缀）
func (t *Transport) LocalAddrs() []types.Address {
	addrs := t.host.Addrs()
	out := make([]types.Address, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, types.Address(a.String()))
	}
	return out
}

// Dial 连接到节点；已连接时返回现有连接
func (t *Transport) Dial(ctx context.Context, d types.PeerDescriptor) (interfaces.Connection, error) {
	pid, err := decodeID(d.ID)
	if err != nil {
		return nil, err
	}
	if pid == t.host.ID() {
		return nil, ErrDialSelf
	}
	if t.isClosed() {
		return nil, ErrClosed
	}

	if t.host.Network().Connectedness(pid) != network.Connected {
		info := peer.AddrInfo{ID: pid, Addrs: parseAddrs(d.Addrs)}
		if len(info.Addrs) == 0 && len(t.host.Peerstore().Addrs(pid)) == 0 {
			return nil, fmt.Errorf("dial %s: %w", d.ID.ShortString(), ErrNoAddrs)
		}
		if err := t.host.Connect(ctx, info); err != nil {
			return nil, fmt.Errorf("dial %s: %w", d.ID.ShortString(), err)
		}
	}

	conns := t.host.Network().ConnsToPeer(pid)
	if len(conns) == 0 {
		return nil, fmt.Errorf("dial %s: %w", d.ID.ShortString(), ErrNotConnected)
	}
	return wrapConn(conns[0]), nil
}

// Connections 每个已连接节点返回一条连接
func (t *Transport) Connections() []interfaces.Connection {
	nw := t.host.Network()
	peers := nw.Peers()
	out := make([]interfaces.Connection, 0, len(peers))
	for _, p := range peers {
		if conns := nw.ConnsToPeer(p); len(conns) > 0 {
			out = append(out, wrapConn(conns[0]))
		}
	}
	return out
}

// OpenStream 在到连接远端的节点上打开协议流
func (t *Transport) OpenStream(ctx context.Context, c interfaces.Connection, proto types.ProtocolID) (interfaces.Stream, error) {
	pid, err := decodeID(c.RemotePeer())
	if err != nil {
		return nil, err
	}
	if t.host.Network().Connectedness(pid) != network.Connected {
		return nil, ErrNotConnected
	}
	s, err := t.host.NewStream(network.WithNoDial(ctx, "health probe"), pid, protocol.ID(proto))
	if err != nil {
		return nil, fmt.Errorf("open stream %s: %w", proto, err)
	}
	return &stream{Stream: s}, nil
}

// SetStreamHandler 注册协议处理器
func (t *Transport) SetStreamHandler(proto types.ProtocolID, fn func(interfaces.Stream)) {
	if fn == nil {
		t.host.RemoveStreamHandler(protocol.ID(proto))
		return
	}
	t.host.SetStreamHandler(protocol.ID(proto), func(s network.Stream) {
		fn(&stream{Stream: s})
	})
}

// ClosePeer 关闭到节点的所有连接
func (t *Transport) ClosePeer(id types.PeerID) error {
	pid, err := decodeID(id)
	if err != nil {
		return err
	}
	return t.host.Network().ClosePeer(pid)
}

// Ping 往返探测，只使用已有连接
func (t *Transport) Ping(ctx context.Context, id types.PeerID) (time.Duration, error) {
	pid, err := decodeID(id)
	if err != nil {
		return 0, err
	}
	if t.host.Network().Connectedness(pid) != network.Connected {
		return 0, ErrNotConnected
	}

	pctx, cancel := context.WithCancel(network.WithNoDial(ctx, "ping"))
	defer cancel()
	select {
	case res, ok := <-ping.Ping(pctx, t.host, pid):
		if !ok {
			return 0, ctx.Err()
		}
		if res.Error != nil {
			return 0, fmt.Errorf("ping %s: %w", id.ShortString(), res.Error)
		}
		return res.RTT, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Bandwidth 全局收发速率
func (t *Transport) Bandwidth() types.Bandwidth {
	st := t.bw.GetBandwidthTotals()
	return types.Bandwidth{InBytesPerSec: st.RateIn, OutBytesPerSec: st.RateOut}
}

// DHT 返回主题发现基座
func (t *Transport) DHT() interfaces.DHT { return t.dht }

// Close 停止事件分发，关闭 DHT 与 host
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()

	t.host.Network().StopNotify(t.notify)
	t.dht.close()
	t.cancel()
	<-t.done

	t.mu.Lock()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()

	return multierr.Combine(t.kad.Close(), t.host.Close())
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// ============================================================================
//                              辅助函数
// ============================================================================

func decodeID(id types.PeerID) (peer.ID, error) {
	pid, err := peer.Decode(string(id))
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidPeerID, id)
	}
	return pid, nil
}

// parseAddrs 解析地址，去掉 /p2p 后缀，跳过无法解析的地址
func parseAddrs(addrs []types.Address) []multiaddr.Multiaddr {
	out := make([]multiaddr.Multiaddr, 0, len(addrs))
	for _, a := range addrs {
		ma, err := multiaddr.NewMultiaddr(addrutil.StripPeerID(string(a)))
		if err != nil {
			logger.Debug("跳过无法解析的地址", "addr", string(a), "error", err)
			continue
		}
		out = append(out, ma)
	}
	return out
}

func toDescriptor(pi peer.AddrInfo) types.PeerDescriptor {
	addrs := make([]types.Address, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, types.Address(a.String()))
	}
	return types.NewPeerDescriptor(types.PeerID(pi.ID.String()), addrs, nil)
}
