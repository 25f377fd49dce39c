package mdns

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/libp2p/go-libp2p/core/peer"

	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

// peerCache 收集 mDNS 公告
//
// 实现 libp2p mdns.Notifee。新节点到达时唤醒所有等待者。
type peerCache struct {
	self  peer.ID
	peers *expirable.LRU[peer.ID, types.PeerDescriptor]

	mu     sync.Mutex
	notify chan struct{}
}

func newPeerCache(self peer.ID, cfg Config) *peerCache {
	return &peerCache{
		self:   self,
		peers:  expirable.NewLRU[peer.ID, types.PeerDescriptor](cfg.MaxPeers, nil, cfg.PeerTTL),
		notify: make(chan struct{}),
	}
}

// HandlePeerFound 实现 mdns.Notifee
func (c *peerCache) HandlePeerFound(pi peer.AddrInfo) {
	if pi.ID == c.self || pi.ID == "" || len(pi.Addrs) == 0 {
		return
	}

	addrs := make([]types.Address, 0, len(pi.Addrs))
	for _, a := range pi.Addrs {
		addrs = append(addrs, types.Address(a.String()))
	}
	id := types.PeerID(pi.ID.String())
	d := types.NewPeerDescriptor(id, addrs, nil).WithMeta(types.MetaSource, "mdns")
	c.peers.Add(pi.ID, d)
	logger.Debug("发现局域网节点", "peer", log.TruncateID(string(id), 12), "addrs", len(addrs))

	c.mu.Lock()
	close(c.notify)
	c.notify = make(chan struct{})
	c.mu.Unlock()
}

// snapshot 返回当前有效的节点
func (c *peerCache) snapshot() []types.PeerDescriptor {
	values := c.peers.Values()
	out := make([]types.PeerDescriptor, 0, len(values))
	for _, d := range values {
		out = append(out, d.Clone())
	}
	return out
}

// changed 返回下一次新节点到达时关闭的 channel
func (c *peerCache) changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.notify
}
