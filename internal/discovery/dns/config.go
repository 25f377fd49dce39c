package dns

import (
	"errors"
	"time"

	"github.com/dep2p/meshcore/config"
)

// Config DNS 发现配置
type Config struct {
	// Domains 要查询的域名列表
	Domains []string

	// Timeout 单次 DNS 查询超时
	Timeout time.Duration

	// MaxDepth dnsaddr 最大递归深度
	MaxDepth int

	// CacheTTL 结果缓存 TTL，0 表示不缓存
	CacheTTL time.Duration

	// CacheSize 缓存的域名数上限
	CacheSize int

	// Server DNS 服务器地址（host:port），为空时读取 /etc/resolv.conf
	Server string
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Timeout:   5 * time.Second,
		MaxDepth:  3,
		CacheTTL:  5 * time.Minute,
		CacheSize: 64,
	}
}

// ConfigFromUnified 从统一配置创建 DNS 配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Domains = append([]string(nil), cfg.Bootstrap.DNSDomains...)
	c.Server = cfg.Bootstrap.DNSServer
	if t := cfg.Bootstrap.MethodTimeout.Duration(); t > 0 && t < c.Timeout {
		c.Timeout = t
	}
	return c
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if c.MaxDepth < 0 {
		return errors.New("max depth must be non-negative")
	}
	if c.MaxDepth > 10 {
		return errors.New("max depth too large (max 10)")
	}
	if c.CacheTTL < 0 {
		return errors.New("cache TTL must be non-negative")
	}
	for _, d := range c.Domains {
		if err := ValidateDomain(d); err != nil {
			return err
		}
	}
	return nil
}
