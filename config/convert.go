package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// FromJSON 从 JSON 数据创建配置
//
// 未出现的字段保留默认值。
//
//	{
//	  "node": {"max_peers": 10},
//	  "bootstrap": {"nodes": ["seed-1@/ip4/10.0.0.1/tcp/4001"]},
//	  "recovery": {"min_healthy_peers": 3, "health_check_interval": "10s"}
//	}
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// LoadFile 从文件加载并验证配置
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := FromJSON(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ToJSON 序列化配置
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Clone 深拷贝配置
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		cp := *c
		return &cp
	}
	out := NewConfig()
	if err := json.Unmarshal(data, out); err != nil {
		cp := *c
		return &cp
	}
	return out
}

// ApplyPreset 应用预设配置
//
// 支持的预设：
//   - "server": 常驻节点，更多连接、更激进的检查
//   - "mobile": 移动端，更少连接、更长周期
//   - "test": 测试/模拟网络，内存存储、短周期、关闭 mDNS
func ApplyPreset(cfg *Config, presetName string) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	switch presetName {
	case "server":
		cfg.Node.MaxPeers = 200
		cfg.Recovery.MinHealthyPeers = 8
		cfg.Recovery.MaxConcurrentOps = 32
		cfg.Diagnostics.TargetPeers = 32
		cfg.Transport.ConnHighWater = 256
	case "mobile":
		cfg.Node.MaxPeers = 16
		cfg.Recovery.MinHealthyPeers = 2
		cfg.Recovery.HealthCheckInterval = Duration(time.Minute)
		cfg.Discovery.Interval = Duration(2 * time.Minute)
		cfg.Diagnostics.Interval = Duration(time.Minute)
		cfg.Recovery.MaxConcurrentOps = 4
	case "test":
		cfg.Storage.InMemory = true
		cfg.Bootstrap.EnableMDNS = false
		cfg.Transport.Kind = TransportMemory
		cfg.Recovery.HealthCheckInterval = Duration(time.Second)
		cfg.Recovery.HealthCheckTimeout = Duration(200 * time.Millisecond)
		cfg.Recovery.InitialReconnectDelay = Duration(100 * time.Millisecond)
		cfg.Recovery.MaxReconnectDelay = Duration(2 * time.Second)
		cfg.Recovery.PartitionRecoveryTimeout = Duration(5 * time.Second)
		cfg.Discovery.Interval = Duration(time.Second)
		cfg.Discovery.LookupTimeout = Duration(500 * time.Millisecond)
		cfg.Diagnostics.Interval = Duration(time.Second)
		cfg.Bootstrap.DialTimeout = Duration(500 * time.Millisecond)
		cfg.Bootstrap.MethodTimeout = Duration(time.Second)
		cfg.Recovery.DialTimeout = Duration(500 * time.Millisecond)
	case "":
	default:
		return fmt.Errorf("unknown preset: %s", presetName)
	}
	return nil
}
