// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，自带 DefaultXxxConfig() 与 Validate()
//   - 支持从 JSON 加载和保存配置
//   - 支持预设配置（server/mobile/test）
//
// 使用示例：
//
//	cfg := config.NewConfig()
//	cfg.Node.MaxPeers = 10
//	cfg.Recovery.MinHealthyPeers = 3
//
//	cfg, err := config.LoadFile("meshcore.json")
package config

import "errors"

// ErrInvalidConfig 配置无效
//
// 所有 Validate() 返回的错误都包装此错误，可用 errors.Is 判断。
var ErrInvalidConfig = errors.New("config: invalid configuration")

// KnownPeer 已知节点配置
//
// 启动时直接连接的节点，不依赖引导节点或主题发现。
type KnownPeer struct {
	// PeerID 目标节点的 Peer ID
	PeerID string `json:"peer_id"`

	// Addrs 目标节点的地址列表
	Addrs []string `json:"addrs"`
}

// Config 是 meshcore 的完整配置结构
//
// 配置按照功能模块组织：
//   - Node: 节点级限制与命名空间
//   - Discovery: 主题发现
//   - Bootstrap: 种子节点与回退链
//   - Recovery: 健康检查、重连、分区检测
//   - Diagnostics: 诊断与自动修复
//   - Storage: 持久化
//   - Transport: 传输适配器
//   - Log: 日志
type Config struct {
	// Node 节点配置
	Node NodeConfig `json:"node"`

	// Discovery 主题发现配置
	Discovery DiscoveryConfig `json:"discovery"`

	// Bootstrap 引导配置
	Bootstrap BootstrapConfig `json:"bootstrap"`

	// Recovery 连接恢复配置
	Recovery RecoveryConfig `json:"recovery"`

	// Diagnostics 诊断配置
	Diagnostics DiagnosticsConfig `json:"diagnostics"`

	// Storage 存储配置
	Storage StorageConfig `json:"storage"`

	// Transport 传输配置
	Transport TransportConfig `json:"transport"`

	// Log 日志配置
	Log LogConfig `json:"log"`

	// KnownPeers 已知节点列表
	KnownPeers []KnownPeer `json:"known_peers,omitempty"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Node:        DefaultNodeConfig(),
		Discovery:   DefaultDiscoveryConfig(),
		Bootstrap:   DefaultBootstrapConfig(),
		Recovery:    DefaultRecoveryConfig(),
		Diagnostics: DefaultDiagnosticsConfig(),
		Storage:     DefaultStorageConfig(),
		Transport:   DefaultTransportConfig(),
		Log:         DefaultLogConfig(),
	}
}

// Validate 验证配置的有效性
//
// 检查所有子配置以及跨模块约束，返回的错误包装 ErrInvalidConfig。
func (c *Config) Validate() error {
	if c == nil {
		return invalid("config is nil")
	}
	if err := c.Node.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.Bootstrap.Validate(); err != nil {
		return err
	}
	if err := c.Recovery.Validate(); err != nil {
		return err
	}
	if err := c.Diagnostics.Validate(); err != nil {
		return err
	}
	if err := c.Storage.Validate(); err != nil {
		return err
	}
	if err := c.Transport.Validate(); err != nil {
		return err
	}
	if err := c.Log.Validate(); err != nil {
		return err
	}

	if c.Recovery.MinHealthyPeers > c.Node.MaxPeers {
		return invalid("recovery.min_healthy_peers (%d) exceeds node.max_peers (%d)",
			c.Recovery.MinHealthyPeers, c.Node.MaxPeers)
	}
	for i, kp := range c.KnownPeers {
		if kp.PeerID == "" {
			return invalid("known_peers[%d]: peer_id cannot be empty", i)
		}
	}
	return nil
}
