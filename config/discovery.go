package config

import "time"

// DiscoveryConfig 主题发现配置
type DiscoveryConfig struct {
	// Interval 刷新周期：重新公告已加入的主题并刷新缓存
	// 默认值: 30s
	Interval Duration `json:"interval"`

	// LookupTimeout 单次主题查询超时
	// 默认值: 10s
	LookupTimeout Duration `json:"lookup_timeout"`

	// LookupLimit 单次主题查询返回的最大节点数
	// 默认值: 50
	LookupLimit int `json:"lookup_limit"`

	// CacheTTL 查询结果缓存时间
	// 默认值: 1m
	CacheTTL Duration `json:"cache_ttl"`

	// CacheSize 缓存的主题数
	// 默认值: 256
	CacheSize int `json:"cache_size"`

	// LocationGridDegrees 坐标分桶的网格大小（度）
	// 默认值: 1.0
	LocationGridDegrees float64 `json:"location_grid_degrees"`

	// MinPeers 主发现路径返回少于该数量时进入回退链
	// 默认值: 3
	MinPeers int `json:"min_peers"`
}

// DefaultDiscoveryConfig 返回默认发现配置
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Interval:            Duration(30 * time.Second),
		LookupTimeout:       Duration(10 * time.Second),
		LookupLimit:         50,
		CacheTTL:            Duration(time.Minute),
		CacheSize:           256,
		LocationGridDegrees: 1.0,
		MinPeers:            3,
	}
}

// Validate 验证发现配置
func (c DiscoveryConfig) Validate() error {
	if c.Interval <= 0 {
		return invalid("discovery.interval must be positive")
	}
	if c.LookupTimeout <= 0 {
		return invalid("discovery.lookup_timeout must be positive")
	}
	if c.LookupLimit < 1 {
		return invalid("discovery.lookup_limit must be >= 1")
	}
	if c.CacheSize < 1 {
		return invalid("discovery.cache_size must be >= 1")
	}
	if c.CacheTTL < 0 {
		return invalid("discovery.cache_ttl cannot be negative")
	}
	if c.LocationGridDegrees <= 0 || c.LocationGridDegrees > 180 {
		return invalid("discovery.location_grid_degrees must be in (0, 180]")
	}
	if c.MinPeers < 0 {
		return invalid("discovery.min_peers cannot be negative")
	}
	return nil
}
