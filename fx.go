package meshcore

import (
	"log/slog"

	"github.com/benbjohnson/clock"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/lib/log"

	// 基础设施
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/internal/core/storage"

	// 传输
	"github.com/dep2p/meshcore/internal/transport/libp2p"
	"github.com/dep2p/meshcore/internal/transport/memory"

	// 发现与引导
	"github.com/dep2p/meshcore/internal/discovery/bootstrap"
	"github.com/dep2p/meshcore/internal/discovery/dns"
	"github.com/dep2p/meshcore/internal/discovery/mdns"
	"github.com/dep2p/meshcore/internal/discovery/relayseed"
	"github.com/dep2p/meshcore/internal/discovery/topic"

	// 恢复与诊断
	"github.com/dep2p/meshcore/internal/core/diagnostics"
	"github.com/dep2p/meshcore/internal/core/recovery"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

var fxLogger = log.Logger("meshcore/fx")

// buildFxApp 构建 Fx 应用
//
// 加载顺序（按依赖）：
//  1. 基础设施：配置 → 时钟 → 调度器 → 存储
//  2. 传输：外部传输 / 模拟网络 / libp2p
//  3. 回退方法：DNS → 种子端点 → mDNS → 用户方法
//  4. 子系统：主题发现 → 引导 → 恢复 → 诊断
//
// 组件在 Populate 后一次性写入 sys。
func buildFxApp(cfg *config.Config, opts *options, sys *subsystems) *fx.App {
	// ════════════════════════════════════════════════════════════════════════
	// 1. 基础设施
	// ════════════════════════════════════════════════════════════════════════
	modules := []fx.Option{
		fx.Supply(cfg),
	}
	if opts.clock != nil {
		clk := opts.clock
		modules = append(modules, fx.Provide(func() clock.Clock { return clk }))
	}
	modules = append(modules,
		scheduler.Module(),
		storage.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 2. 传输
	// ════════════════════════════════════════════════════════════════════════
	switch {
	case opts.transport != nil:
		tr := opts.transport
		modules = append(modules, fx.Provide(func() interfaces.Transport { return tr }))
	case cfg.Transport.Kind == config.TransportMemory:
		modules = append(modules, memory.Module())
	default:
		modules = append(modules, libp2p.Module())
	}

	// ════════════════════════════════════════════════════════════════════════
	// 3. 回退方法（按 Priority 排序由引导引擎完成）
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		dns.Module,
		relayseed.Module,
		mdns.Module,
	)
	if len(opts.methods) > 0 {
		methods := opts.methods
		modules = append(modules, fx.Provide(
			fx.Annotate(
				func() []interfaces.FallbackMethod { return methods },
				fx.ResultTags(`group:"fallback_methods,flatten"`),
			),
		))
	}
	if opts.reputation != nil {
		fn := opts.reputation
		modules = append(modules, fx.Provide(func() bootstrap.ReputationFunc { return fn }))
	}
	if opts.profile != nil {
		p := opts.profile
		modules = append(modules, fx.Provide(func() *types.LocalProfile { return p }))
	}

	// ════════════════════════════════════════════════════════════════════════
	// 4. 子系统
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		topic.Module(),
		bootstrap.Module(),
		recovery.Module(),
		fx.Provide(
			fx.Annotate(
				func(m *recovery.Manager) *recovery.Manager { return m },
				fx.As(new(diagnostics.HealthSource)),
			),
			fx.Annotate(
				func(s *topic.Service) *topic.Service { return s },
				fx.As(new(diagnostics.DiscoveryStatus)),
			),
			fx.Annotate(
				newRemedies,
				fx.As(new(interfaces.Remedies)),
			),
		),
		diagnostics.Module(),
	)

	// ════════════════════════════════════════════════════════════════════════
	// 5. 填充与日志
	// ════════════════════════════════════════════════════════════════════════
	modules = append(modules,
		fx.Populate(
			&sys.transport,
			&sys.sched,
			&sys.discovery,
			&sys.bootstrap,
			&sys.recovery,
			&sys.diagnostics,
		),
		fx.WithLogger(func() fxevent.Logger {
			return &fxevent.ZapLogger{Logger: newZapLogger(cfg.Log.Level)}
		}),
	)

	return fx.New(modules...)
}

// newZapLogger Fx 事件日志：debug 级别时输出到开发 logger，否则丢弃
func newZapLogger(level string) *zap.Logger {
	if lvl, _ := log.ParseLevel(level); lvl > slog.LevelDebug {
		return zap.NewNop()
	}
	zl, err := zap.NewDevelopment()
	if err != nil {
		fxLogger.Warn("创建 Fx 事件日志失败", "error", err)
		return zap.NewNop()
	}
	return zl
}
