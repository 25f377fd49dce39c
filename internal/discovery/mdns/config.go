package mdns

import (
	"errors"
	"time"

	"github.com/dep2p/meshcore/config"
)

const (
	// DefaultServiceTag mDNS 服务标签
	DefaultServiceTag = "_meshcore._udp"

	// DefaultPeerTTL 局域网节点缓存有效期
	DefaultPeerTTL = 2 * time.Minute

	// DefaultMaxPeers 缓存的节点数上限
	DefaultMaxPeers = 128
)

// Config MDNS 配置
type Config struct {
	// ServiceTag mDNS 服务标签
	ServiceTag string

	// PeerTTL 发现的节点在缓存中的有效期
	PeerTTL time.Duration

	// MaxPeers 缓存上限
	MaxPeers int

	// Enabled 是否启用
	Enabled bool
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		ServiceTag: DefaultServiceTag,
		PeerTTL:    DefaultPeerTTL,
		MaxPeers:   DefaultMaxPeers,
		Enabled:    true,
	}
}

// ConfigFromUnified 从统一配置创建 mDNS 配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Enabled = cfg.Bootstrap.EnableMDNS
	if cfg.Bootstrap.MDNSService != "" {
		c.ServiceTag = cfg.Bootstrap.MDNSService
	}
	return c
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.ServiceTag == "" {
		return errors.New("service tag is empty")
	}
	if c.PeerTTL <= 0 {
		return errors.New("peer ttl must be positive")
	}
	if c.MaxPeers < 1 {
		return errors.New("max peers must be >= 1")
	}
	return nil
}
