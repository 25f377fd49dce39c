package memory

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// StreamHandler 协议流处理器，在独立 goroutine 中以远端流调用
type StreamHandler func(s *Stream)

// Transport 模拟节点
type Transport struct {
	net   *Network
	id    types.PeerID
	addrs []types.Address
	meta  map[string]string

	// 以下字段由 net.mu 保护
	conns    map[types.PeerID]*conn
	subs     map[int]chan types.ConnEvent
	nextSub  int
	handlers map[types.ProtocolID]StreamHandler
	closed   bool

	dht *DHT
}

var (
	_ interfaces.Transport   = (*Transport)(nil)
	_ interfaces.Pinger      = (*Transport)(nil)
	_ interfaces.DHTProvider = (*Transport)(nil)
)

// LocalPeer 返回本地节点 ID
func (t *Transport) LocalPeer() types.PeerID { return t.id }

// LocalAddrs 返回本地地址
func (t *Transport) LocalAddrs() []types.Address {
	return append([]types.Address(nil), t.addrs...)
}

// Dial 连接到节点
func (t *Transport) Dial(ctx context.Context, peer types.PeerDescriptor) (interfaces.Connection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if peer.ID == t.id {
		return nil, fmt.Errorf("dial self: %w", ErrUnreachable)
	}
	if err := wait(ctx, t.net.latencyTo(peer.ID)); err != nil {
		return nil, err
	}

	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	c, err := t.net.connectLocked(t.id, peer.ID)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Connections 返回当前所有连接
func (t *Transport) Connections() []interfaces.Connection {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	out := make([]interfaces.Connection, 0, len(t.conns))
	for _, c := range t.conns {
		out = append(out, c)
	}
	return out
}

// IsConnected 是否与节点存在连接
func (t *Transport) IsConnected(id types.PeerID) bool {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	_, ok := t.conns[id]
	return ok
}

// OpenStream 打开协议流
func (t *Transport) OpenStream(ctx context.Context, c interfaces.Connection, proto types.ProtocolID) (interfaces.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	remoteID := c.RemotePeer()

	t.net.mu.Lock()
	if _, ok := t.conns[remoteID]; !ok {
		t.net.mu.Unlock()
		return nil, ErrNotConnected
	}
	if !t.net.reachableLocked(remoteID) || !t.net.reachableLocked(t.id) {
		t.net.mu.Unlock()
		return nil, fmt.Errorf("open stream to %s: %w", remoteID, ErrUnreachable)
	}
	handler := t.net.nodes[remoteID].handlers[proto]
	t.net.mu.Unlock()

	if handler == nil {
		return nil, fmt.Errorf("%s: %w", proto, ErrProtocolNotSupported)
	}
	if err := wait(ctx, t.net.latencyTo(remoteID)); err != nil {
		return nil, err
	}

	a, b := net.Pipe()
	go handler(&Stream{Conn: b, proto: proto, remote: t.id})
	return &Stream{Conn: a, proto: proto, remote: remoteID}, nil
}

// SetStreamHandler 注册协议处理器
func (t *Transport) SetStreamHandler(proto types.ProtocolID, h StreamHandler) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()
	if h == nil {
		delete(t.handlers, proto)
		return
	}
	t.handlers[proto] = h
}

// ClosePeer 关闭到节点的连接
func (t *Transport) ClosePeer(id types.PeerID) error {
	t.net.Disconnect(t.id, id)
	return nil
}

// SubscribeEvents 订阅连接事件
func (t *Transport) SubscribeEvents() (<-chan types.ConnEvent, func()) {
	t.net.mu.Lock()
	defer t.net.mu.Unlock()

	ch := make(chan types.ConnEvent, eventBuffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	return ch, func() {
		t.net.mu.Lock()
		defer t.net.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

// Ping 往返探测
func (t *Transport) Ping(ctx context.Context, id types.PeerID) (time.Duration, error) {
	t.net.mu.Lock()
	_, connected := t.conns[id]
	reachable := t.net.reachableLocked(id) && t.net.reachableLocked(t.id)
	t.net.mu.Unlock()

	if !connected {
		return 0, ErrNotConnected
	}
	if !reachable {
		return 0, fmt.Errorf("ping %s: %w", id, ErrUnreachable)
	}
	rtt := t.net.latencyTo(id)
	start := time.Now()
	if err := wait(ctx, rtt); err != nil {
		return 0, err
	}
	if rtt <= 0 {
		return time.Since(start), nil
	}
	return rtt, nil
}

// DHT 返回发现基座
func (t *Transport) DHT() interfaces.DHT { return t.dht }

// Close 关闭节点：断开所有连接并关闭事件订阅
func (t *Transport) Close() error {
	n := t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if t.closed {
		return nil
	}
	for remote := range t.conns {
		n.disconnectLocked(t.id, remote)
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	for topic, members := range n.topics {
		delete(members, t.id)
		if len(members) == 0 {
			delete(n.topics, topic)
		}
	}
	return nil
}

func (t *Transport) emitLocked(ev types.ConnEvent) {
	for _, ch := range t.subs {
		select {
		case ch <- ev:
		default:
			logger.Warn("事件订阅缓冲区已满，丢弃事件", "peer", t.id, "event", ev.Kind.String())
		}
	}
}

func (t *Transport) descriptorLocked() types.PeerDescriptor {
	return types.NewPeerDescriptor(t.id, t.addrs, t.meta)
}

func (n *Network) latencyTo(id types.PeerID) time.Duration {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.latency[id]
}

// ============================================================================
//                              conn / Stream
// ============================================================================

type conn struct {
	net        *Network
	local      types.PeerID
	remote     types.PeerID
	remoteAddr types.Address
	dir        types.Direction
	opened     time.Time
}

func (c *conn) RemotePeer() types.PeerID   { return c.remote }
func (c *conn) RemoteAddr() types.Address  { return c.remoteAddr }
func (c *conn) Direction() types.Direction { return c.dir }
func (c *conn) Opened() time.Time          { return c.opened }

func (c *conn) Close() error {
	c.net.Disconnect(c.local, c.remote)
	return nil
}

// Stream 模拟协议流
type Stream struct {
	net.Conn
	proto  types.ProtocolID
	remote types.PeerID
}

// Protocol 协议 ID
func (s *Stream) Protocol() types.ProtocolID { return s.proto }

// RemotePeer 对端节点
func (s *Stream) RemotePeer() types.PeerID { return s.remote }

// Reset 异常终止
func (s *Stream) Reset() error { return s.Conn.Close() }
