package scheduler

import (
	"context"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
)

// Params Scheduler 模块依赖参数
type Params struct {
	fx.In

	Clock clock.Clock `optional:"true"`
}

// Module 返回 Scheduler Fx 模块
//
// 提供:
//   - *Scheduler
//
// 生命周期:
//   - OnStop: 停止所有任务
func Module() fx.Option {
	return fx.Module("scheduler",
		fx.Provide(ProvideScheduler),
		fx.Invoke(registerLifecycle),
	)
}

// ProvideScheduler 提供调度器
func ProvideScheduler(p Params) *Scheduler {
	return New(p.Clock)
}

func registerLifecycle(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			s.Stop()
			return nil
		},
	})
}
