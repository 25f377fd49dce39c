package libp2p

import (
	"context"
	"fmt"
	"sync"

	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/discovery"
	"github.com/libp2p/go-libp2p/core/peer"
	drouting "github.com/libp2p/go-libp2p/p2p/discovery/routing"
	dutil "github.com/libp2p/go-libp2p/p2p/discovery/util"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// routingDHT 基于 kad-dht 的主题发现基座
//
// Join 在后台持续公告（dutil.Advertise 按 TTL 自动续期），Leave 取消公告。
// FindPeers 通过 provider 记录查找主题成员。
type routingDHT struct {
	ctx  context.Context
	self peer.ID
	kad  *dht.IpfsDHT
	rd   *drouting.RoutingDiscovery

	mu     sync.Mutex
	joined map[types.TopicID]context.CancelFunc
}

var _ interfaces.DHT = (*routingDHT)(nil)

func newRoutingDHT(ctx context.Context, self peer.ID, kad *dht.IpfsDHT) *routingDHT {
	return &routingDHT{
		ctx:    ctx,
		self:   self,
		kad:    kad,
		rd:     drouting.NewRoutingDiscovery(kad),
		joined: make(map[types.TopicID]context.CancelFunc),
	}
}

// Join 开始公告主题，重复调用安全
func (d *routingDHT) Join(ctx context.Context, topic types.TopicID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.Connected() {
		return ErrDHTUnavailable
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ctx.Err() != nil {
		return ErrClosed
	}
	if _, ok := d.joined[topic]; ok {
		return nil
	}
	actx, cancel := context.WithCancel(d.ctx)
	d.joined[topic] = cancel
	dutil.Advertise(actx, d.rd, string(topic))
	return nil
}

// Leave 停止公告，未加入时不返回错误
func (d *routingDHT) Leave(_ context.Context, topic types.TopicID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cancel, ok := d.joined[topic]; ok {
		cancel()
		delete(d.joined, topic)
	}
	return nil
}

// FindPeers 查找主题成员，排除本节点与没有地址的记录
func (d *routingDHT) FindPeers(ctx context.Context, topic types.TopicID, limit int) ([]types.PeerDescriptor, error) {
	if !d.Connected() {
		return nil, ErrDHTUnavailable
	}
	var opts []discovery.Option
	if limit > 0 {
		// 多取一个，给本节点留位置
		opts = append(opts, discovery.Limit(limit+1))
	}
	ch, err := d.rd.FindPeers(ctx, string(topic), opts...)
	if err != nil {
		return nil, fmt.Errorf("find peers %s: %w", topic, err)
	}

	var out []types.PeerDescriptor
	for pi := range ch {
		if pi.ID == d.self || len(pi.Addrs) == 0 {
			continue
		}
		if limit > 0 && len(out) >= limit {
			continue
		}
		out = append(out, toDescriptor(pi))
	}
	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

// Connected 路由表非空即视为可用
func (d *routingDHT) Connected() bool {
	return d.kad.RoutingTable().Size() > 0
}

// Joined 当前公告中的主题数
func (d *routingDHT) Joined() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.joined)
}

func (d *routingDHT) close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for topic, cancel := range d.joined {
		cancel()
		delete(d.joined, topic)
	}
}
