package libp2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              连接事件
// ============================================================================

// SubscribeEvents 订阅 peer:connect / peer:disconnect
func (t *Transport) SubscribeEvents() (<-chan types.ConnEvent, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan types.ConnEvent, eventBuffer)
	if t.closed {
		close(ch)
		return ch, func() {}
	}
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch

	return ch, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
}

// onConnected 节点的第一条连接产生 peer:connect
func (t *Transport) onConnected(_ network.Network, c network.Conn) {
	pid := c.RemotePeer()
	t.mu.Lock()
	_, known := t.connected[pid]
	if !known {
		t.connected[pid] = struct{}{}
	}
	t.mu.Unlock()
	if known {
		return
	}
	t.enqueue(types.ConnEvent{
		Kind:      types.ConnEventConnected,
		PeerID:    types.PeerID(pid.String()),
		Addrs:     []types.Address{types.Address(c.RemoteMultiaddr().String())},
		Direction: direction(c.Stat().Direction),
		Time:      time.Now(),
	})
}

// onDisconnected 节点的最后一条连接关闭时产生 peer:disconnect
func (t *Transport) onDisconnected(nw network.Network, c network.Conn) {
	pid := c.RemotePeer()
	if nw.Connectedness(pid) == network.Connected {
		return
	}
	if !t.forget(pid) {
		return
	}
	t.enqueue(types.ConnEvent{
		Kind:      types.ConnEventDisconnected,
		PeerID:    types.PeerID(pid.String()),
		Direction: direction(c.Stat().Direction),
		Time:      time.Now(),
	})
}

func (t *Transport) forget(pid peer.ID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.connected[pid]; !ok {
		return false
	}
	delete(t.connected, pid)
	return true
}

func (t *Transport) enqueue(ev types.ConnEvent) {
	select {
	case t.queue <- ev:
	case <-t.ctx.Done():
	default:
		logger.Warn("连接事件队列已满，丢弃事件", "peer", ev.PeerID.ShortString(), "event", ev.Kind.String())
	}
}

// dispatch 按到达顺序把事件投递给所有订阅者
func (t *Transport) dispatch() {
	defer close(t.done)
	for {
		select {
		case <-t.ctx.Done():
			return
		case ev := <-t.queue:
			t.mu.Lock()
			for _, ch := range t.subs {
				select {
				case ch <- ev:
				default:
					logger.Warn("事件订阅缓冲区已满，丢弃事件", "peer", ev.PeerID.ShortString(), "event", ev.Kind.String())
				}
			}
			t.mu.Unlock()
		}
	}
}
