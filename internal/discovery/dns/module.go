package dns

import (
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Module DNS 发现模块
//
// 提供:
//   - interfaces.FallbackMethod（group: fallback_methods），仅在配置了域名时
var Module = fx.Module("discovery_dns",
	fx.Provide(NewFromParams),
)

// Params DNS 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result DNS 导出结果
type Result struct {
	fx.Out

	Methods []interfaces.FallbackMethod `group:"fallback_methods,flatten"`
}

// NewFromParams 从 Fx 参数创建 Discoverer
func NewFromParams(p Params) (Result, error) {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if len(cfg.Domains) == 0 {
		return Result{}, nil
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}
	logger.Debug("DNS 回退已启用", "domains", cfg.Domains)
	return Result{Methods: []interfaces.FallbackMethod{NewDiscoverer(cfg)}}, nil
}
