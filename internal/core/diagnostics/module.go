package diagnostics

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Params 诊断模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Transport  interfaces.Transport
	Scheduler  *scheduler.Scheduler
	Health     HealthSource        `optional:"true"`
	Discovery  DiscoveryStatus     `optional:"true"`
	Remedies   interfaces.Remedies `optional:"true"`
}

// Module 返回诊断模块
//
// 提供:
//   - *Service
//
// 生命周期:
//   - OnStop: 停止刷新并等待正在执行的修复
//
// 刷新循环不随 OnStart 启动，由节点在 Connect 时调用 Start。
func Module() fx.Option {
	return fx.Module("core/diagnostics",
		fx.Provide(ProvideService),
	)
}

// ProvideService 提供诊断服务
func ProvideService(lc fx.Lifecycle, p Params) (*Service, error) {
	svc, err := NewService(ConfigFromUnified(p.UnifiedCfg), p.Transport, p.Scheduler,
		WithHealthSource(p.Health),
		WithDiscoveryStatus(p.Discovery),
		WithRemedies(p.Remedies),
	)
	if err != nil {
		logger.Error("创建诊断服务失败", "error", err)
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return svc.Close()
		},
	})
	return svc, nil
}
