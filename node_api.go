package meshcore

import (
	"context"
	"fmt"

	"github.com/dep2p/meshcore/internal/discovery/bootstrap"
	"github.com/dep2p/meshcore/internal/discovery/topic"
	"github.com/dep2p/meshcore/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              状态查询（不会失败）
// ════════════════════════════════════════════════════════════════════════════

// GetNetworkStatus 返回网络状态
//
// 初始化之前与销毁之后返回未连接的空状态。
func (n *Node) GetNetworkStatus() types.NetworkStatus {
	sys := n.subsystems()
	if sys == nil {
		return types.NetworkStatus{}
	}
	return sys.diagnostics.NetworkStatus()
}

// GetNetworkHealth 返回连接健康汇总，包括每个跟踪节点的健康记录
func (n *Node) GetNetworkHealth() types.NetworkHealth {
	sys := n.subsystems()
	if sys == nil {
		return types.NetworkHealth{}
	}
	return sys.recovery.Health()
}

// GetNetworkDiagnostics 计算一份新的诊断快照
func (n *Node) GetNetworkDiagnostics() types.DiagnosticsSnapshot {
	sys := n.subsystems()
	if sys == nil {
		return types.DiagnosticsSnapshot{}
	}
	return sys.diagnostics.Snapshot()
}

// RunNetworkTroubleshooting 执行一次排障，返回评分、问题、建议与可用的修复动作
func (n *Node) RunNetworkTroubleshooting() types.TroubleshootingReport {
	sys := n.subsystems()
	if sys == nil {
		return types.TroubleshootingReport{}
	}
	return sys.diagnostics.RunTroubleshooting()
}

// Recommendations 按推荐分数降序返回有交互历史的节点，limit <= 0 时使用配置上限
//
// 已跟踪的节点不参与推荐。
func (n *Node) Recommendations(limit int) []types.PeerRecommendation {
	sys := n.subsystems()
	if sys == nil {
		return nil
	}
	return sys.bootstrap.Recommend(bootstrap.RecommendOptions{
		Limit:   limit,
		Exclude: sys.recovery.IsTracked,
	})
}

// ════════════════════════════════════════════════════════════════════════════
//                              发现与连接
// ════════════════════════════════════════════════════════════════════════════

// DiscoverPeers 按条件发现节点
//
// 加入条件对应的主题并查询，结果按节点 ID 去重并截断到 node.max_peers。
// 查询失败或结果少于 discovery.min_peers 时转入引导回退链，
// 回退链的产出追加在主题结果之后；只会返回生命周期错误或 ctx 的错误。
func (n *Node) DiscoverPeers(ctx context.Context, criteria types.SearchCriteria) ([]types.PeerDescriptor, error) {
	sys, err := n.ready()
	if err != nil {
		return nil, err
	}

	peers, err := sys.discovery.Discover(ctx, criteria, n.cfg.Node.MaxPeers)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		logger.Warn("主题发现失败，转入引导回退链", "error", err)
	} else {
		want := sys.discovery.MinPeers()
		if len(peers) >= want {
			return peers, nil
		}
		err = fmt.Errorf("%w: found %d, want %d", topic.ErrInsufficientPeers, len(peers), want)
		logger.Info("主题发现结果不足，转入引导回退链", "found", len(peers), "min", want)
	}

	fallback := sys.bootstrap.HandleDiscoveryFailure(ctx, err)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return topic.MergeUnique(n.cfg.Node.MaxPeers, peers, fallback), nil
}

// ConnectPeers 拨号并跟踪一组节点，受 node.max_peers 约束，返回成功数
func (n *Node) ConnectPeers(ctx context.Context, peers []types.PeerDescriptor) (int, error) {
	sys, err := n.ready()
	if err != nil {
		return 0, err
	}
	return sys.recovery.ConnectPeers(ctx, peers), nil
}

// RemovePeer 节点主动离开：停止跟踪并关闭连接，不触发重连与替换
//
// 返回节点之前是否被跟踪。
func (n *Node) RemovePeer(id types.PeerID) bool {
	sys := n.subsystems()
	if sys == nil {
		return false
	}
	return sys.recovery.RemovePeer(id)
}

// ════════════════════════════════════════════════════════════════════════════
//                              恢复操作
// ════════════════════════════════════════════════════════════════════════════

// ForcePeerRecovery 取消节点的待执行重连并立即尝试一次，返回是否成功
//
// 未跟踪的节点或未初始化的节点返回 false。
func (n *Node) ForcePeerRecovery(ctx context.Context, id types.PeerID) bool {
	sys := n.subsystems()
	if sys == nil {
		return false
	}
	return sys.recovery.ForcePeerRecovery(ctx, id)
}

// ForceNetworkRecovery 网络级恢复：重连所有不健康节点、执行引导回退链并补足健康节点
func (n *Node) ForceNetworkRecovery(ctx context.Context) error {
	sys, err := n.ready()
	if err != nil {
		return err
	}
	return sys.recovery.ForceNetworkRecovery(ctx)
}

// ApplyAutoFix 提交一个修复动作，异步执行
//
// 同一动作执行中时再次提交直接返回；超过速率限制返回 diagnostics.ErrRateLimited。
func (n *Node) ApplyAutoFix(action types.AutoFixAction) error {
	sys, err := n.ready()
	if err != nil {
		return err
	}
	return sys.diagnostics.ApplyAutoFix(action)
}

// ════════════════════════════════════════════════════════════════════════════
//                              消息计数
// ════════════════════════════════════════════════════════════════════════════

// RecordMessageSent 记录上层发送的消息
func (n *Node) RecordMessageSent(size int) {
	if sys := n.subsystems(); sys != nil {
		sys.diagnostics.RecordMessageSent(size)
	}
}

// RecordMessageReceived 记录上层收到的消息
func (n *Node) RecordMessageReceived(size int) {
	if sys := n.subsystems(); sys != nil {
		sys.diagnostics.RecordMessageReceived(size)
	}
}

// RecordMessageDelivered 记录确认送达的消息
func (n *Node) RecordMessageDelivered() {
	if sys := n.subsystems(); sys != nil {
		sys.diagnostics.RecordMessageDelivered()
	}
}

// RecordMessageFailed 记录发送失败的消息
func (n *Node) RecordMessageFailed() {
	if sys := n.subsystems(); sys != nil {
		sys.diagnostics.RecordMessageFailed()
	}
}

// ready 返回组件集合；未初始化或已销毁时返回对应错误
func (n *Node) ready() (*subsystems, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	switch n.state {
	case StateCreated:
		return nil, ErrNotInitialized
	case StateDestroyed:
		return nil, ErrNodeDestroyed
	}
	return n.sys, nil
}
