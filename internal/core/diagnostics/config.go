package diagnostics

import (
	"time"

	"github.com/dep2p/meshcore/config"
)

// Config 诊断服务配置
type Config struct {
	// Interval 快照刷新周期
	Interval time.Duration

	// TargetPeers 健康评分中的目标节点数
	TargetPeers int

	// SampleWindow 每个节点保留的探测样本数
	SampleWindow int

	// HighLatency 平均延迟超过该值时报告问题
	HighLatency time.Duration

	// PacketLossThreshold 丢包率超过该值时报告问题
	PacketLossThreshold float64

	// MinDeliveryRate 投递率（百分比）低于该值时报告问题
	MinDeliveryRate float64

	// AutoFixRate 自动修复的速率（每秒次数）
	AutoFixRate float64

	// AutoFixBurst 自动修复的突发数
	AutoFixBurst int

	// AutoFixTimeout 单次修复的超时
	AutoFixTimeout time.Duration

	// AutoApply 刷新快照时自动应用可用的修复
	AutoApply bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return fromDiagnosticsConfig(config.DefaultDiagnosticsConfig())
}

// ConfigFromUnified 从统一配置创建诊断配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return fromDiagnosticsConfig(cfg.Diagnostics)
}

func fromDiagnosticsConfig(d config.DiagnosticsConfig) Config {
	return Config{
		Interval:            d.Interval.Duration(),
		TargetPeers:         d.TargetPeers,
		SampleWindow:        d.SampleWindow,
		HighLatency:         d.HighLatency.Duration(),
		PacketLossThreshold: d.PacketLossThreshold,
		MinDeliveryRate:     d.MinDeliveryRate,
		AutoFixRate:         d.AutoFixRate,
		AutoFixBurst:        d.AutoFixBurst,
		AutoFixTimeout:      time.Minute,
		AutoApply:           d.AutoApply,
	}
}

// Validate 验证配置
func (c Config) Validate() error {
	dc := config.DiagnosticsConfig{
		Interval:            config.Duration(c.Interval),
		TargetPeers:         c.TargetPeers,
		SampleWindow:        c.SampleWindow,
		HighLatency:         config.Duration(c.HighLatency),
		PacketLossThreshold: c.PacketLossThreshold,
		MinDeliveryRate:     c.MinDeliveryRate,
		AutoFixRate:         c.AutoFixRate,
		AutoFixBurst:        c.AutoFixBurst,
		AutoApply:           c.AutoApply,
	}
	return dc.Validate()
}
