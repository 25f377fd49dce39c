package config

import "time"

// RecoveryConfig 连接恢复配置
//
// 控制健康检查周期、重连退避曲线、节点替换与分区检测。
type RecoveryConfig struct {
	// HealthCheckInterval 健康检查周期
	// 默认值: 30s
	HealthCheckInterval Duration `json:"health_check_interval"`

	// HealthCheckTimeout 单次健康检查超时，必须小于 HealthCheckInterval
	// 默认值: 5s
	HealthCheckTimeout Duration `json:"health_check_timeout"`

	// MaxConsecutiveFailures 判定不健康的连续失败次数
	// 默认值: 3
	MaxConsecutiveFailures int `json:"max_consecutive_failures"`

	// MaxReconnectAttempts 最大重连次数，耗尽后删除并替换
	// 默认值: 5
	MaxReconnectAttempts int `json:"max_reconnect_attempts"`

	// InitialReconnectDelay 初始重连延迟
	// 默认值: 1s
	InitialReconnectDelay Duration `json:"initial_reconnect_delay"`

	// MaxReconnectDelay 最大重连延迟
	// 默认值: 60s
	MaxReconnectDelay Duration `json:"max_reconnect_delay"`

	// BackoffMultiplier 退避倍数
	// 默认值: 2.0
	BackoffMultiplier float64 `json:"backoff_multiplier"`

	// MinHealthyPeers 健康节点下限，低于时请求替换节点
	// 默认值: 3
	MinHealthyPeers int `json:"min_healthy_peers"`

	// MaxUnhealthyPeers 容忍的不健康节点数，超出部分在替换前先被剔除
	// 默认值: 5
	MaxUnhealthyPeers int `json:"max_unhealthy_peers"`

	// PartitionDetectionThreshold 健康比例低于该值视为分区
	// 默认值: 0.3
	PartitionDetectionThreshold float64 `json:"partition_detection_threshold"`

	// PartitionRecoveryTimeout 分区恢复后的冷却时间，期间不再判定新分区
	// 默认值: 60s
	PartitionRecoveryTimeout Duration `json:"partition_recovery_timeout"`

	// PartitionConfirmCycles 连续多少个检查周期低于阈值才判定分区
	// 默认值: 2
	PartitionConfirmCycles int `json:"partition_confirm_cycles"`

	// MaxConcurrentOps 并发的单节点操作上限（检查与拨号）
	// 默认值: 8
	MaxConcurrentOps int `json:"max_concurrent_ops"`

	// DialTimeout 重连与替换拨号超时
	// 默认值: 10s
	DialTimeout Duration `json:"dial_timeout"`

	// HealthProtocol 传输不支持 ping 时用于探测的协议
	// 默认值: "/meshcore/health/1.0.0"
	HealthProtocol string `json:"health_protocol"`
}

// DefaultRecoveryConfig 返回默认恢复配置
func DefaultRecoveryConfig() RecoveryConfig {
	return RecoveryConfig{
		HealthCheckInterval:         Duration(30 * time.Second),
		HealthCheckTimeout:          Duration(5 * time.Second),
		MaxConsecutiveFailures:      3,
		MaxReconnectAttempts:        5,
		InitialReconnectDelay:       Duration(time.Second),
		MaxReconnectDelay:           Duration(60 * time.Second),
		BackoffMultiplier:           2.0,
		MinHealthyPeers:             3,
		MaxUnhealthyPeers:           5,
		PartitionDetectionThreshold: 0.3,
		PartitionRecoveryTimeout:    Duration(60 * time.Second),
		PartitionConfirmCycles:      2,
		MaxConcurrentOps:            8,
		DialTimeout:                 Duration(10 * time.Second),
		HealthProtocol:              "/meshcore/health/1.0.0",
	}
}

// Validate 验证恢复配置
func (c RecoveryConfig) Validate() error {
	if c.HealthCheckInterval <= 0 {
		return invalid("recovery.health_check_interval must be positive")
	}
	if c.HealthCheckTimeout <= 0 || c.HealthCheckTimeout >= c.HealthCheckInterval {
		return invalid("recovery.health_check_timeout (%s) must be positive and shorter than health_check_interval (%s)",
			c.HealthCheckTimeout, c.HealthCheckInterval)
	}
	if c.MaxConsecutiveFailures < 1 {
		return invalid("recovery.max_consecutive_failures must be >= 1")
	}
	if c.MaxReconnectAttempts < 1 {
		return invalid("recovery.max_reconnect_attempts must be >= 1")
	}
	if c.InitialReconnectDelay <= 0 {
		return invalid("recovery.initial_reconnect_delay must be positive")
	}
	if c.MaxReconnectDelay < c.InitialReconnectDelay {
		return invalid("recovery.max_reconnect_delay must be >= initial_reconnect_delay")
	}
	if c.BackoffMultiplier < 1 {
		return invalid("recovery.backoff_multiplier must be >= 1")
	}
	if c.MinHealthyPeers < 0 {
		return invalid("recovery.min_healthy_peers cannot be negative")
	}
	if c.MaxUnhealthyPeers < 0 {
		return invalid("recovery.max_unhealthy_peers cannot be negative")
	}
	if c.PartitionDetectionThreshold < 0 || c.PartitionDetectionThreshold > 1 {
		return invalid("recovery.partition_detection_threshold must be in [0, 1]")
	}
	if c.PartitionRecoveryTimeout < 0 {
		return invalid("recovery.partition_recovery_timeout cannot be negative")
	}
	if c.PartitionConfirmCycles < 1 {
		return invalid("recovery.partition_confirm_cycles must be >= 1")
	}
	if c.MaxConcurrentOps < 1 {
		return invalid("recovery.max_concurrent_ops must be >= 1")
	}
	if c.DialTimeout <= 0 {
		return invalid("recovery.dial_timeout must be positive")
	}
	if c.HealthProtocol == "" {
		return invalid("recovery.health_protocol cannot be empty")
	}
	return nil
}
