package meshcore

import (
	"context"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/diagnostics"
	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/internal/core/recovery"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/internal/discovery/bootstrap"
	"github.com/dep2p/meshcore/internal/discovery/topic"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("meshcore")

// ════════════════════════════════════════════════════════════════════════════
//                              NodeState
// ════════════════════════════════════════════════════════════════════════════

// NodeState 节点状态
type NodeState int

const (
	// StateCreated 已创建（配置已校验，组件未构建）
	StateCreated NodeState = iota

	// StateInitialized 已初始化（组件已构建，未连接）
	StateInitialized

	// StateConnected 已连接（事件泵与周期任务运行中）
	StateConnected

	// StateDisconnected 已断开（可再次 Connect）
	StateDisconnected

	// StateDestroyed 已销毁（终态）
	StateDestroyed
)

// String 返回状态的字符串表示
func (s NodeState) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateDestroyed:
		return "destroyed"
	default:
		return "unknown"
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Node
// ════════════════════════════════════════════════════════════════════════════

// subsystems Initialize 一次性填充的组件集合
//
// 字段在填充后都不为 nil；Node.sys 为 nil 表示尚未初始化或已销毁。
type subsystems struct {
	transport   interfaces.Transport
	sched       *scheduler.Scheduler
	discovery   *topic.Service
	bootstrap   *bootstrap.Engine
	recovery    *recovery.Manager
	diagnostics *diagnostics.Service
}

// Node 节点
//
// Node 拥有四个子系统的生命周期，把传输事件按到达顺序分发给它们，
// 并对外提供统一的查询、操作与事件订阅入口。
type Node struct {
	cfg  *config.Config
	opts *options

	mu    sync.Mutex
	state NodeState
	app   *fx.App
	sys   *subsystems

	// 组件事件转发（Initialize 注册，Destroy 取消）
	relays []func()

	// 事件泵（Connect 启动，Disconnect 停止）
	pumpCancel context.CancelFunc
	pumpDone   chan struct{}

	// 节点级事件主题，New 时创建，订阅可早于 Initialize
	connected    *eventbus.Topic[types.PeerConnectedEvent]
	disconnected *eventbus.Topic[types.PeerDisconnectedEvent]
	issues       *eventbus.Topic[types.IssuesDetectedEvent]
	updates      *eventbus.Topic[types.DiagnosticsUpdatedEvent]
	partitions   *eventbus.Topic[types.PartitionDetectedEvent]
}

// New 创建节点
//
// 配置被复制后应用选项并校验，无效时立即返回包装 ErrConfigurationInvalid 的错误。
// cfg 为 nil 时使用默认配置。
func New(cfg *config.Config, opts ...Option) (*Node, error) {
	c, o, err := applyOptions(cfg, opts)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		logger.Error("配置无效", "error", err)
		return nil, err
	}

	return &Node{
		cfg:          c,
		opts:         o,
		state:        StateCreated,
		connected:    eventbus.NewTopic[types.PeerConnectedEvent]("node/peer_connected"),
		disconnected: eventbus.NewTopic[types.PeerDisconnectedEvent]("node/peer_disconnected"),
		issues:       eventbus.NewTopic[types.IssuesDetectedEvent]("node/issues", eventbus.Stateful()),
		updates:      eventbus.NewTopic[types.DiagnosticsUpdatedEvent]("node/diagnostics", eventbus.Stateful()),
		partitions:   eventbus.NewTopic[types.PartitionDetectedEvent]("node/partition"),
	}, nil
}

// Config 返回节点配置的副本
func (n *Node) Config() *config.Config {
	return n.cfg.Clone()
}

// State 返回节点状态
func (n *Node) State() NodeState {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// ID 返回本节点 ID，未初始化时为空
func (n *Node) ID() types.PeerID {
	sys := n.subsystems()
	if sys == nil {
		return ""
	}
	return sys.transport.LocalPeer()
}

// Addrs 返回本节点地址，未初始化时为空
func (n *Node) Addrs() []types.Address {
	sys := n.subsystems()
	if sys == nil {
		return nil
	}
	return sys.transport.LocalAddrs()
}

// Registry 返回诊断指标注册表，未初始化时为 nil
func (n *Node) Registry() *prometheus.Registry {
	sys := n.subsystems()
	if sys == nil {
		return nil
	}
	return sys.diagnostics.Registry()
}

// subsystems 返回当前组件集合，未初始化或已销毁时为 nil
func (n *Node) subsystems() *subsystems {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sys
}
