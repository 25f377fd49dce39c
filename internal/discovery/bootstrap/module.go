package bootstrap

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// Params 引导模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Transport  interfaces.Transport
	Scheduler  *scheduler.Scheduler
	Storage    interfaces.Engine           `optional:"true"`
	Methods    []interfaces.FallbackMethod `group:"fallback_methods"`
	Reputation ReputationFunc              `optional:"true"`
	Profile    *types.LocalProfile         `optional:"true"`
}

// Result 引导模块导出结果
type Result struct {
	fx.Out

	Engine   *Engine
	Source   interfaces.CandidateSource `group:"candidate_sources"`
	Trigger  interfaces.FallbackTrigger
	Recorder interfaces.InteractionRecorder
}

// Module 返回引导模块
//
// 提供:
//   - *Engine
//   - interfaces.CandidateSource（group: candidate_sources）
//   - interfaces.FallbackTrigger
//   - interfaces.InteractionRecorder
//
// 生命周期:
//   - OnStart: 从存储恢复种子记录
//   - OnStop: 写回种子记录并关闭事件主题
//
// 种子拨号不随 OnStart 执行，由节点在 Connect 时调用 ConnectSeeds。
func Module() fx.Option {
	return fx.Module("discovery/bootstrap",
		fx.Provide(ProvideEngine),
	)
}

// ProvideEngine 提供引导引擎
func ProvideEngine(lc fx.Lifecycle, p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if p.Profile != nil {
		cfg.Profile = types.LocalProfile{Location: p.Profile.Location, Interests: types.NormalizeInterests(p.Profile.Interests)}
	}

	opts := []Option{
		WithStorage(p.Storage),
		WithReputation(p.Reputation),
		WithFallbackMethods(p.Methods...),
	}
	if p.Scheduler != nil {
		opts = append(opts, WithClock(p.Scheduler.Clock()))
	}

	eng, err := NewEngine(cfg, p.Transport, opts...)
	if err != nil {
		logger.Error("创建引导引擎失败", "error", err)
		return Result{}, err
	}
	logger.Debug("回退链", "methods", methodNames(eng.methods))

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return eng.Restore()
		},
		OnStop: func(_ context.Context) error {
			return eng.Close()
		},
	})
	return Result{Engine: eng, Source: eng, Trigger: eng, Recorder: eng}, nil
}
