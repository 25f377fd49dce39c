package topic

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Params 发现服务依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
	Transport  interfaces.Transport
	Scheduler  *scheduler.Scheduler
}

// Result 发现服务提供的结果
type Result struct {
	fx.Out

	Service *Service
	Source  interfaces.CandidateSource `group:"candidate_sources"`
}

// Module 返回发现服务 Fx 模块
//
// 提供:
//   - *Service
//   - interfaces.CandidateSource（group: candidate_sources）
//
// 生命周期:
//   - OnStop: 离开所有主题并关闭服务
//
// 刷新循环不随 OnStart 启动，由节点在 Connect 时调用 Start。
func Module() fx.Option {
	return fx.Module("discovery",
		fx.Provide(ProvideService),
	)
}

// ProvideService 提供发现服务
func ProvideService(lc fx.Lifecycle, p Params) (Result, error) {
	var dht interfaces.DHT
	if dp, ok := p.Transport.(interfaces.DHTProvider); ok {
		dht = dp.DHT()
	}
	if dht == nil {
		logger.Warn("传输层未提供发现基座，主题查询将不可用")
	}

	svc, err := NewService(ConfigFromUnified(p.UnifiedCfg), dht, p.Transport.LocalPeer(), p.Scheduler)
	if err != nil {
		return Result{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return svc.Close()
		},
	})
	return Result{Service: svc, Source: svc}, nil
}
