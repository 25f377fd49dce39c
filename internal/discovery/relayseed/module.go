package relayseed

import (
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Module 种子端点发现模块
//
// 提供:
//   - interfaces.FallbackMethod（group: fallback_methods），仅在配置了端点时
var Module = fx.Module("discovery_relayseed",
	fx.Provide(NewFromParams),
)

// Params 依赖参数
type Params struct {
	fx.In

	UnifiedCfg *config.Config `optional:"true"`
}

// Result 导出结果
type Result struct {
	fx.Out

	Methods []interfaces.FallbackMethod `group:"fallback_methods,flatten"`
}

// NewFromParams 从 Fx 参数创建客户端
func NewFromParams(p Params) Result {
	cfg := ConfigFromUnified(p.UnifiedCfg)
	if len(cfg.Endpoints) == 0 {
		return Result{}
	}
	logger.Debug("种子端点回退已启用", "endpoints", len(cfg.Endpoints))
	return Result{Methods: []interfaces.FallbackMethod{NewClient(cfg)}}
}
