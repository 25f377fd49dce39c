package mdns

import (
	"context"

	"github.com/libp2p/go-libp2p/core/host"
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Module mDNS 发现模块
//
// 提供:
//   - interfaces.FallbackMethod（group: fallback_methods），需要 libp2p host 且已启用
//
// 生命周期:
//   - OnStart: 启动公告与监听
//   - OnStop: 关闭服务
var Module = fx.Module("discovery_mdns",
	fx.Provide(NewFromParams),
)

// Params mDNS 依赖参数
type Params struct {
	fx.In

	Host       host.Host      `optional:"true"`
	UnifiedCfg *config.Config `optional:"true"`
}

// Result mDNS 导出结果
type Result struct {
	fx.Out

	Methods []interfaces.FallbackMethod `group:"fallback_methods,flatten"`
}

// NewFromParams 从 Fx 参数创建 MDNS
func NewFromParams(lc fx.Lifecycle, p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if !cfg.Enabled || p.Host == nil {
		return Result{}, nil
	}
	m, err := New(p.Host, cfg)
	if err != nil {
		return Result{}, err
	}
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := m.Start(); err != nil {
				// 局域网发现失败不阻止节点启动
				logger.Warn("mDNS 启动失败", "error", err)
			}
			return nil
		},
		OnStop: func(_ context.Context) error {
			return m.Close()
		},
	})
	return Result{Methods: []interfaces.FallbackMethod{m}}, nil
}
