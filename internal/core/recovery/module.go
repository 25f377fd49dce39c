package recovery

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Params 恢复模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Transport  interfaces.Transport
	Scheduler  *scheduler.Scheduler
	Sources    []interfaces.CandidateSource   `group:"candidate_sources"`
	Trigger    interfaces.FallbackTrigger     `optional:"true"`
	Recorder   interfaces.InteractionRecorder `optional:"true"`
}

// Module 返回恢复模块
//
// 提供:
//   - *Manager
//
// 生命周期:
//   - OnStop: 停止循环并关闭事件主题
//
// 健康检查循环不随 OnStart 启动，由节点在 Connect 时调用 Start。
func Module() fx.Option {
	return fx.Module("core/recovery",
		fx.Provide(ProvideManager),
	)
}

// ProvideManager 提供恢复管理器
func ProvideManager(lc fx.Lifecycle, p Params) (*Manager, error) {
	m, err := NewManager(ConfigFromUnified(p.UnifiedCfg), p.Transport, p.Scheduler,
		WithCandidateSources(p.Sources...),
		WithFallbackTrigger(p.Trigger),
		WithInteractionRecorder(p.Recorder),
	)
	if err != nil {
		logger.Error("创建恢复管理器失败", "error", err)
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
	return m, nil
}
