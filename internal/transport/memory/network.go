package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("transport/memory")

// DefaultHealthProtocol 每个模拟节点默认注册的健康探测协议
const DefaultHealthProtocol types.ProtocolID = "/meshcore/health/1.0.0"

// eventBuffer 每个事件订阅的缓冲区
const eventBuffer = 1024

// ============================================================================
//                              Network
// ============================================================================

// Network 模拟网络
//
// 所有连接状态变化都在 mu 内完成，事件也在 mu 内以非阻塞方式投递，
// 因此同一节点的 connect/disconnect 事件严格保序。
type Network struct {
	mu sync.Mutex

	nodes       map[types.PeerID]*Transport
	unreachable map[types.PeerID]bool
	latency     map[types.PeerID]time.Duration
	dials       map[types.PeerID]int

	topics     map[types.TopicID]map[types.PeerID]struct{}
	dhtDown    bool
	dhtLatency time.Duration
	lookups    int
}

// NewNetwork 创建模拟网络
func NewNetwork() *Network {
	return &Network{
		nodes:       make(map[types.PeerID]*Transport),
		unreachable: make(map[types.PeerID]bool),
		latency:     make(map[types.PeerID]time.Duration),
		dials:       make(map[types.PeerID]int),
		topics:      make(map[types.TopicID]map[types.PeerID]struct{}),
	}
}

// AddPeer 添加节点，已存在时返回现有节点
func (n *Network) AddPeer(id types.PeerID, meta map[string]string) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()

	if t, ok := n.nodes[id]; ok {
		return t
	}
	t := &Transport{
		net:      n,
		id:       id,
		addrs:    []types.Address{types.Address("/memory/" + string(id))},
		meta:     copyMeta(meta),
		conns:    make(map[types.PeerID]*conn),
		subs:     make(map[int]chan types.ConnEvent),
		handlers: make(map[types.ProtocolID]StreamHandler),
	}
	t.handlers[DefaultHealthProtocol] = func(s *Stream) { _ = s.Close() }
	t.dht = &DHT{t: t}
	n.nodes[id] = t
	delete(n.unreachable, id)
	return t
}

// Peer 返回节点
func (n *Network) Peer(id types.PeerID) *Transport {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.nodes[id]
}

// Peers 返回所有节点 ID（排序）
func (n *Network) Peers() []types.PeerID {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]types.PeerID, 0, len(n.nodes))
	for id := range n.nodes {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Descriptor 返回节点描述
func (n *Network) Descriptor(id types.PeerID) types.PeerDescriptor {
	n.mu.Lock()
	defer n.mu.Unlock()
	t, ok := n.nodes[id]
	if !ok {
		return types.PeerDescriptor{ID: id}
	}
	return t.descriptorLocked()
}

// SetReachable 设置节点可达性
func (n *Network) SetReachable(id types.PeerID, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ok {
		delete(n.unreachable, id)
	} else {
		n.unreachable[id] = true
	}
}

// Reachable 节点是否可达
func (n *Network) Reachable(id types.PeerID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.reachableLocked(id)
}

// Crash 节点下线：设为不可达并关闭其所有连接
func (n *Network) Crash(id types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.unreachable[id] = true
	t, ok := n.nodes[id]
	if !ok {
		return
	}
	for remote := range t.conns {
		n.disconnectLocked(id, remote)
	}
}

// Disconnect 断开两个节点间的连接
func (n *Network) Disconnect(a, b types.PeerID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnectLocked(a, b)
}

// SetLatency 设置到节点的往返延迟
func (n *Network) SetLatency(id types.PeerID, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.latency[id] = d
}

// SetDHTAvailable 设置发现基座可用性
func (n *Network) SetDHTAvailable(ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dhtDown = !ok
}

// SetDHTLatency 设置主题查询延迟
func (n *Network) SetDHTLatency(d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dhtLatency = d
}

// DialCount 返回以节点为目标的拨号次数
func (n *Network) DialCount(id types.PeerID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.dials[id]
}

// Lookups 返回主题查询次数
func (n *Network) Lookups() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lookups
}

// TopicMembers 返回主题成员数
func (n *Network) TopicMembers(topic types.TopicID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.topics[topic])
}

// ============================================================================
//                              内部方法
// ============================================================================

func (n *Network) reachableLocked(id types.PeerID) bool {
	_, exists := n.nodes[id]
	return exists && !n.unreachable[id]
}

func (n *Network) connectLocked(from, to types.PeerID) (*conn, error) {
	n.dials[to]++
	local, ok1 := n.nodes[from]
	remote, ok2 := n.nodes[to]
	if !ok1 || !ok2 || local.closed || remote.closed {
		return nil, fmt.Errorf("dial %s: %w", to, ErrUnreachable)
	}
	if !n.reachableLocked(from) || !n.reachableLocked(to) {
		return nil, fmt.Errorf("dial %s: %w", to, ErrUnreachable)
	}
	if c, ok := local.conns[to]; ok {
		return c, nil
	}

	now := time.Now()
	out := &conn{net: n, local: from, remote: to, remoteAddr: remote.addrs[0], dir: types.DirOutbound, opened: now}
	in := &conn{net: n, local: to, remote: from, remoteAddr: local.addrs[0], dir: types.DirInbound, opened: now}
	local.conns[to] = out
	remote.conns[from] = in

	local.emitLocked(types.ConnEvent{Kind: types.ConnEventConnected, PeerID: to, Addrs: remote.addrs, Direction: types.DirOutbound, Time: now})
	remote.emitLocked(types.ConnEvent{Kind: types.ConnEventConnected, PeerID: from, Addrs: local.addrs, Direction: types.DirInbound, Time: now})
	logger.Debug("模拟连接建立", "from", from, "to", to)
	return out, nil
}

func (n *Network) disconnectLocked(a, b types.PeerID) {
	now := time.Now()
	if ta, ok := n.nodes[a]; ok {
		if _, had := ta.conns[b]; had {
			delete(ta.conns, b)
			ta.emitLocked(types.ConnEvent{Kind: types.ConnEventDisconnected, PeerID: b, Time: now})
		}
	}
	if tb, ok := n.nodes[b]; ok {
		if _, had := tb.conns[a]; had {
			delete(tb.conns, a)
			tb.emitLocked(types.ConnEvent{Kind: types.ConnEventDisconnected, PeerID: a, Time: now})
		}
	}
}

// wait 在 ctx 内等待 d
func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func copyMeta(meta map[string]string) map[string]string {
	if len(meta) == 0 {
		return nil
	}
	out := make(map[string]string, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
