package interfaces

import (
	"context"
	"io"
	"time"

	"github.com/dep2p/meshcore/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// Transport 接口
// ════════════════════════════════════════════════════════════════════════════

// Transport 抽象传输层
//
// 核心只依赖以下能力：拨号、枚举连接、打开流、关闭连接、订阅连接事件。
// 具体实现见 internal/transport/libp2p 与 internal/transport/memory。
type Transport interface {
	// LocalPeer 返回本地节点 ID
	LocalPeer() types.PeerID

	// LocalAddrs 返回本地可达地址
	LocalAddrs() []types.Address

	// Dial 连接到节点；已连接时直接返回现有连接
	Dial(ctx context.Context, peer types.PeerDescriptor) (Connection, error)

	// Connections 返回当前所有连接
	Connections() []Connection

	// OpenStream 在连接上打开协议流
	OpenStream(ctx context.Context, conn Connection, proto types.ProtocolID) (Stream, error)

	// ClosePeer 关闭到节点的所有连接
	ClosePeer(id types.PeerID) error

	// SubscribeEvents 订阅 peer:connect / peer:disconnect 事件
	//
	// 同一节点的事件按发生顺序投递；返回的函数取消订阅。
	SubscribeEvents() (<-chan types.ConnEvent, func())
}

// Connection 单个节点连接
type Connection interface {
	// RemotePeer 远端节点 ID
	RemotePeer() types.PeerID

	// RemoteAddr 远端地址
	RemoteAddr() types.Address

	// Direction 连接方向
	Direction() types.Direction

	// Opened 建立时间
	Opened() time.Time

	// Close 关闭连接
	Close() error
}

// Stream 协议流
type Stream interface {
	io.ReadWriteCloser

	// Protocol 协议 ID
	Protocol() types.ProtocolID

	// Reset 异常终止
	Reset() error
}

// Pinger 可选能力：往返时间探测
//
// 恢复管理器在传输实现了 Pinger 时用它做健康检查，
// 否则退化为打开并关闭一个健康探测流。
type Pinger interface {
	Ping(ctx context.Context, id types.PeerID) (time.Duration, error)
}

// BandwidthReporter 可选能力：带宽统计
type BandwidthReporter interface {
	Bandwidth() types.Bandwidth
}
