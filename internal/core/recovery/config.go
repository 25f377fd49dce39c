package recovery

import (
	"time"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              恢复配置
// ============================================================================

// Config 恢复管理器配置
type Config struct {
	// HealthCheckInterval 健康检查周期
	HealthCheckInterval time.Duration

	// HealthCheckTimeout 单个节点的探测超时
	HealthCheckTimeout time.Duration

	// MaxConsecutiveFailures 判定不健康的连续失败次数
	MaxConsecutiveFailures int

	// MaxReconnectAttempts 最大重连次数
	MaxReconnectAttempts int

	// InitialReconnectDelay 初始重连延迟
	InitialReconnectDelay time.Duration

	// MaxReconnectDelay 最大重连延迟
	MaxReconnectDelay time.Duration

	// BackoffMultiplier 退避倍数
	BackoffMultiplier float64

	// MinHealthyPeers 健康节点下限
	MinHealthyPeers int

	// MaxUnhealthyPeers 容忍的不健康节点数
	MaxUnhealthyPeers int

	// MaxPeers 跟踪节点上限
	MaxPeers int

	// PartitionDetectionThreshold 分区判定阈值
	PartitionDetectionThreshold float64

	// PartitionRecoveryTimeout 分区解除后的冷却时间
	PartitionRecoveryTimeout time.Duration

	// PartitionConfirmCycles 判定分区所需的连续周期数
	PartitionConfirmCycles int

	// MaxConcurrentOps 并发的单节点操作上限
	MaxConcurrentOps int

	// DialTimeout 拨号超时
	DialTimeout time.Duration

	// HealthProtocol 传输不支持 ping 时的探测协议
	HealthProtocol types.ProtocolID
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return fromRecoveryConfig(config.DefaultRecoveryConfig(), config.DefaultNodeConfig().MaxPeers)
}

// ConfigFromUnified 从统一配置创建恢复配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		return DefaultConfig()
	}
	return fromRecoveryConfig(cfg.Recovery, cfg.Node.MaxPeers)
}

func fromRecoveryConfig(r config.RecoveryConfig, maxPeers int) Config {
	return Config{
		HealthCheckInterval:         r.HealthCheckInterval.Duration(),
		HealthCheckTimeout:          r.HealthCheckTimeout.Duration(),
		MaxConsecutiveFailures:      r.MaxConsecutiveFailures,
		MaxReconnectAttempts:        r.MaxReconnectAttempts,
		InitialReconnectDelay:       r.InitialReconnectDelay.Duration(),
		MaxReconnectDelay:           r.MaxReconnectDelay.Duration(),
		BackoffMultiplier:           r.BackoffMultiplier,
		MinHealthyPeers:             r.MinHealthyPeers,
		MaxUnhealthyPeers:           r.MaxUnhealthyPeers,
		MaxPeers:                    maxPeers,
		PartitionDetectionThreshold: r.PartitionDetectionThreshold,
		PartitionRecoveryTimeout:    r.PartitionRecoveryTimeout.Duration(),
		PartitionConfirmCycles:      r.PartitionConfirmCycles,
		MaxConcurrentOps:            r.MaxConcurrentOps,
		DialTimeout:                 r.DialTimeout.Duration(),
		HealthProtocol:              types.ProtocolID(r.HealthProtocol),
	}
}

// Validate 验证配置
//
// 与 config.RecoveryConfig.Validate 规则一致，错误同样包装 config.ErrInvalidConfig。
func (c Config) Validate() error {
	rc := config.RecoveryConfig{
		HealthCheckInterval:         config.Duration(c.HealthCheckInterval),
		HealthCheckTimeout:          config.Duration(c.HealthCheckTimeout),
		MaxConsecutiveFailures:      c.MaxConsecutiveFailures,
		MaxReconnectAttempts:        c.MaxReconnectAttempts,
		InitialReconnectDelay:       config.Duration(c.InitialReconnectDelay),
		MaxReconnectDelay:           config.Duration(c.MaxReconnectDelay),
		BackoffMultiplier:           c.BackoffMultiplier,
		MinHealthyPeers:             c.MinHealthyPeers,
		MaxUnhealthyPeers:           c.MaxUnhealthyPeers,
		PartitionDetectionThreshold: c.PartitionDetectionThreshold,
		PartitionRecoveryTimeout:    config.Duration(c.PartitionRecoveryTimeout),
		PartitionConfirmCycles:      c.PartitionConfirmCycles,
		MaxConcurrentOps:            c.MaxConcurrentOps,
		DialTimeout:                 config.Duration(c.DialTimeout),
		HealthProtocol:              string(c.HealthProtocol),
	}
	if err := rc.Validate(); err != nil {
		return err
	}
	nc := config.DefaultNodeConfig()
	nc.MaxPeers = c.MaxPeers
	return nc.Validate()
}
