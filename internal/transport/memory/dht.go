package memory

import (
	"context"
	"sort"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// DHT 模拟发现基座，所有节点共享 Network 的主题注册表
type DHT struct {
	t *Transport
}

var _ interfaces.DHT = (*DHT)(nil)

// Join 加入主题
func (d *DHT) Join(ctx context.Context, topic types.TopicID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n := d.t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dhtDown || !n.reachableLocked(d.t.id) {
		return ErrDHTUnavailable
	}
	members, ok := n.topics[topic]
	if !ok {
		members = make(map[types.PeerID]struct{})
		n.topics[topic] = members
	}
	members[d.t.id] = struct{}{}
	return nil
}

// Leave 离开主题
func (d *DHT) Leave(ctx context.Context, topic types.TopicID) error {
	n := d.t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	if members, ok := n.topics[topic]; ok {
		delete(members, d.t.id)
		if len(members) == 0 {
			delete(n.topics, topic)
		}
	}
	return nil
}

// FindPeers 查找主题成员（按 ID 排序）
func (d *DHT) FindPeers(ctx context.Context, topic types.TopicID, limit int) ([]types.PeerDescriptor, error) {
	n := d.t.net
	n.mu.Lock()
	n.lookups++
	down := n.dhtDown || !n.reachableLocked(d.t.id)
	delay := n.dhtLatency
	n.mu.Unlock()

	if down {
		return nil, ErrDHTUnavailable
	}
	if err := wait(ctx, delay); err != nil {
		return nil, err
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	ids := make([]types.PeerID, 0, len(n.topics[topic]))
	for id := range n.topics[topic] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]types.PeerDescriptor, 0, len(ids))
	for _, id := range ids {
		if limit > 0 && len(out) >= limit {
			break
		}
		if t, ok := n.nodes[id]; ok {
			out = append(out, t.descriptorLocked())
		}
	}
	return out, nil
}

// Connected 基座是否可用
func (d *DHT) Connected() bool {
	n := d.t.net
	n.mu.Lock()
	defer n.mu.Unlock()
	return !n.dhtDown && n.reachableLocked(d.t.id)
}
