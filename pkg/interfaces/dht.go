package interfaces

import (
	"context"

	"github.com/dep2p/meshcore/pkg/types"
)

// DHT 主题发现基座
//
// 不约束 wire 协议，只要求能公告/撤销对主题的兴趣并按主题查找节点。
type DHT interface {
	// Join 公告本节点对主题的兴趣，重复调用安全
	Join(ctx context.Context, topic types.TopicID) error

	// Leave 撤销公告，未加入时不返回错误
	Leave(ctx context.Context, topic types.TopicID) error

	// FindPeers 查找对主题感兴趣的节点，最多返回 limit 个
	FindPeers(ctx context.Context, topic types.TopicID, limit int) ([]types.PeerDescriptor, error)

	// Connected 基座当前是否可用
	Connected() bool
}

// DHTProvider 可选能力：传输同时提供发现基座
type DHTProvider interface {
	DHT() DHT
}
