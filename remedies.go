package meshcore

import (
	"context"

	"github.com/dep2p/meshcore/internal/core/recovery"
	"github.com/dep2p/meshcore/internal/discovery/bootstrap"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// remedies 自动修复动作的执行者，把诊断服务的修复请求转给恢复与引导
type remedies struct {
	rec  *recovery.Manager
	boot *bootstrap.Engine
}

var _ interfaces.Remedies = (*remedies)(nil)

func newRemedies(rec *recovery.Manager, boot *bootstrap.Engine) *remedies {
	return &remedies{rec: rec, boot: boot}
}

// RetryBootstrap 重新执行引导回退链并跟踪产出的节点
func (r *remedies) RetryBootstrap(ctx context.Context) (int, error) {
	peers, method, err := r.boot.RunFallback(ctx)
	if err != nil {
		return 0, err
	}
	n := r.rec.ConnectPeers(ctx, peers)
	logger.Info("重新引导完成", "method", method, "found", len(peers), "connected", n)
	return n, nil
}

// ResetPeerConnections 重置所有不健康节点的连接
func (r *remedies) ResetPeerConnections(ctx context.Context) error {
	return r.rec.ResetPeerConnections(ctx)
}

// ForceNetworkRecovery 强制网络级恢复
func (r *remedies) ForceNetworkRecovery(ctx context.Context) error {
	return r.rec.ForceNetworkRecovery(ctx)
}

// RequestPeers 从候选来源补充健康节点
func (r *remedies) RequestPeers(ctx context.Context) (int, error) {
	return r.rec.Replenish(ctx), nil
}
