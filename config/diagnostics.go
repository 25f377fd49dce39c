package config

import "time"

// DiagnosticsConfig 诊断服务配置
type DiagnosticsConfig struct {
	// Interval 快照刷新周期
	// 默认值: 30s
	Interval Duration `json:"interval"`

	// TargetPeers 健康评分中的目标节点数
	// 默认值: 8
	TargetPeers int `json:"target_peers"`

	// SampleWindow 每个节点保留的延迟样本数
	// 默认值: 32
	SampleWindow int `json:"sample_window"`

	// HighLatency 高延迟阈值
	// 默认值: 500ms
	HighLatency Duration `json:"high_latency"`

	// PacketLossThreshold 丢包率告警阈值
	// 默认值: 0.2
	PacketLossThreshold float64 `json:"packet_loss_threshold"`

	// MinDeliveryRate 投递率告警阈值（百分比）
	// 默认值: 80
	MinDeliveryRate float64 `json:"min_delivery_rate"`

	// AutoFixRate 自动修复的速率（每秒次数）
	// 默认值: 0.2
	AutoFixRate float64 `json:"auto_fix_rate"`

	// AutoFixBurst 自动修复的突发数
	// 默认值: 2
	AutoFixBurst int `json:"auto_fix_burst"`

	// AutoApply 刷新快照时自动应用可用的修复
	// 默认值: false
	AutoApply bool `json:"auto_apply"`
}

// DefaultDiagnosticsConfig 返回默认诊断配置
func DefaultDiagnosticsConfig() DiagnosticsConfig {
	return DiagnosticsConfig{
		Interval:            Duration(30 * time.Second),
		TargetPeers:         8,
		SampleWindow:        32,
		HighLatency:         Duration(500 * time.Millisecond),
		PacketLossThreshold: 0.2,
		MinDeliveryRate:     80,
		AutoFixRate:         0.2,
		AutoFixBurst:        2,
	}
}

// Validate 验证诊断配置
func (c DiagnosticsConfig) Validate() error {
	if c.Interval <= 0 {
		return invalid("diagnostics.interval must be positive")
	}
	if c.TargetPeers < 1 {
		return invalid("diagnostics.target_peers must be >= 1")
	}
	if c.SampleWindow < 1 {
		return invalid("diagnostics.sample_window must be >= 1")
	}
	if c.PacketLossThreshold < 0 || c.PacketLossThreshold > 1 {
		return invalid("diagnostics.packet_loss_threshold must be in [0, 1]")
	}
	if c.MinDeliveryRate < 0 || c.MinDeliveryRate > 100 {
		return invalid("diagnostics.min_delivery_rate must be in [0, 100]")
	}
	if c.AutoFixRate <= 0 || c.AutoFixBurst < 1 {
		return invalid("diagnostics auto-fix rate and burst must be positive")
	}
	return nil
}
