package storage

import (
	"context"

	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Params Storage 模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config    `optional:"true"`
	Engine     interfaces.Engine `name:"external_storage" optional:"true"`
}

// Result Storage 模块提供的结果
type Result struct {
	fx.Out

	Engine interfaces.Engine
}

// Module 返回 Storage Fx 模块
//
// 提供:
//   - interfaces.Engine: 存储引擎（外部提供时直接使用）
//
// 生命周期:
//   - OnStart: 启动垃圾回收
//   - OnStop: 关闭引擎（外部提供的引擎由调用方负责关闭）
func Module() fx.Option {
	return fx.Module("storage",
		fx.Provide(ProvideStorage),
	)
}

// ProvideStorage 提供存储引擎
func ProvideStorage(lc fx.Lifecycle, p Params) (Result, error) {
	if p.Engine != nil {
		return Result{Engine: p.Engine}, nil
	}

	cfg := ConfigFromUnified(p.UnifiedCfg)
	eng, err := Open(cfg)
	if err != nil {
		logger.Error("创建存储引擎失败", "error", err)
		return Result{}, err
	}
	logger.Debug("存储引擎创建成功", "path", cfg.Path, "inMemory", cfg.InMemory)

	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			return eng.Start()
		},
		OnStop: func(_ context.Context) error {
			logger.Info("正在关闭存储引擎")
			return eng.Close()
		},
	})
	return Result{Engine: eng}, nil
}
