package libp2p

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Params 传输模块依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result 传输模块导出结果
type Result struct {
	fx.Out

	Transport interfaces.Transport
	Host      host.Host
}

// Module 返回 libp2p 传输模块
//
// 提供:
//   - interfaces.Transport
//   - host.Host（局域网发现使用）
//
// 生命周期:
//   - OnStop: 关闭 DHT 与 host
func Module() fx.Option {
	return fx.Module("transport/libp2p",
		fx.Provide(ProvideTransport),
	)
}

// ProvideTransport 创建 libp2p 传输
func ProvideTransport(lc fx.Lifecycle, p Params) (Result, error) {
	t, err := New(context.Background(), ConfigFromUnified(p.UnifiedCfg))
	if err != nil {
		logger.Error("创建 libp2p 传输失败", "error", err)
		return Result{}, err
	}
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return t.Close()
		},
	})
	return Result{Transport: t, Host: t.Host()}, nil
}
