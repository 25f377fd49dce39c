package topic

import (
	"time"

	"github.com/dep2p/meshcore/config"
)

// DefaultNamespace 默认主题命名空间
const DefaultNamespace = "meshcore"

// Config 发现服务配置
type Config struct {
	Namespace     string
	Interval      time.Duration
	LookupTimeout time.Duration
	LookupLimit   int
	CacheTTL      time.Duration
	CacheSize     int
	GridDegrees   float64
	MinPeers      int
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return ConfigFromUnified(nil)
}

// ConfigFromUnified 从统一配置创建发现服务配置
func ConfigFromUnified(cfg *config.Config) Config {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	d := cfg.Discovery
	return Config{
		Namespace:     cfg.Node.Namespace,
		Interval:      d.Interval.Duration(),
		LookupTimeout: d.LookupTimeout.Duration(),
		LookupLimit:   d.LookupLimit,
		CacheTTL:      d.CacheTTL.Duration(),
		CacheSize:     d.CacheSize,
		GridDegrees:   d.LocationGridDegrees,
		MinPeers:      d.MinPeers,
	}
}
