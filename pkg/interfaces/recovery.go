package interfaces

import (
	"context"

	"github.com/dep2p/meshcore/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
// 组件间契约
// ════════════════════════════════════════════════════════════════════════════

// CandidateSource 替换节点来源
//
// 恢复管理器在健康节点不足时按顺序询问各来源（发现服务，然后引导引擎）。
type CandidateSource interface {
	// Name 来源名称，用于日志
	Name() string

	// FindCandidates 返回至多 want 个候选，跳过 exclude 返回 true 的节点
	FindCandidates(ctx context.Context, want int, exclude func(types.PeerID) bool) ([]types.PeerDescriptor, error)
}

// FallbackTrigger 引导回退链入口
type FallbackTrigger interface {
	// HandleDiscoveryFailure 从不返回错误，退化为回退链能找到的节点（可能为空）
	HandleDiscoveryFailure(ctx context.Context, cause error) []types.PeerDescriptor
}

// FallbackMethod 引导回退链中的一种发现方式
//
// 引导引擎按 Priority 升序依次尝试；Discover 返回空列表表示该方式没有结果。
type FallbackMethod interface {
	// Name 方式名称（dns / relay / mdns）
	Name() string

	// Priority 越小越先尝试，种子节点固定在最前
	Priority() int

	// Discover 在 ctx 截止前返回发现的节点
	Discover(ctx context.Context) ([]types.PeerDescriptor, error)
}

// Remedies 自动修复动作的执行者
//
// 诊断服务只读；修复动作委托给拥有状态的组件。
type Remedies interface {
	// RetryBootstrap 重新执行引导回退链并连接结果，返回新连接数
	RetryBootstrap(ctx context.Context) (int, error)

	// ResetPeerConnections 关闭并重建所有跟踪的连接
	ResetPeerConnections(ctx context.Context) error

	// ForceNetworkRecovery 强制网络级恢复
	ForceNetworkRecovery(ctx context.Context) error

	// RequestPeers 请求补充节点，返回新连接数
	RequestPeers(ctx context.Context) (int, error)
}

// InteractionRecorder 交互记录接收者
//
// 恢复管理器把重连与替换拨号的结果交给引导引擎，用于种子可靠性与推荐打分。
type InteractionRecorder interface {
	RecordInteraction(id types.PeerID, kind types.InteractionKind, success bool, meta types.InteractionMeta)
}
