package config

import (
	"strings"
	"time"
)

// BootstrapConfig 引导与推荐配置
type BootstrapConfig struct {
	// Nodes 种子节点列表
	//
	// 支持两种格式：
	//   - 带 /p2p/ 后缀的 multiaddr："/ip4/1.2.3.4/tcp/4001/p2p/12D3KooW..."
	//   - "<peer-id>@<address>"，address 为任意传输地址
	Nodes []string `json:"nodes"`

	// DialTimeout 单个种子的拨号超时
	// 默认值: 10s
	DialTimeout Duration `json:"dial_timeout"`

	// MethodTimeout 回退链每个方法的超时
	// 默认值: 15s
	MethodTimeout Duration `json:"method_timeout"`

	// MaxConcurrentDials 种子并发拨号数
	// 默认值: 8
	MaxConcurrentDials int `json:"max_concurrent_dials"`

	// HistorySize 每个节点保留的交互记录条数
	// 默认值: 100
	HistorySize int `json:"history_size"`

	// MaxTrackedPeers 保留交互历史的节点数上限（LRU）
	// 默认值: 1024
	MaxTrackedPeers int `json:"max_tracked_peers"`

	// MaxRecommendations 推荐结果上限
	// 默认值: 20
	MaxRecommendations int `json:"max_recommendations"`

	// MaxDistanceKm 地理加分的最大距离
	// 默认值: 1000
	MaxDistanceKm float64 `json:"max_distance_km"`

	// DNSDomains DNS 种子域名，解析 _dnsaddr.<domain> 的 TXT 记录
	DNSDomains []string `json:"dns_domains,omitempty"`

	// DNSServer DNS 服务器地址（host:port），为空时读取 /etc/resolv.conf
	DNSServer string `json:"dns_server,omitempty"`

	// RelaySeeds websocket 种子端点（ws:// 或 wss://）
	RelaySeeds []string `json:"relay_seeds,omitempty"`

	// EnableMDNS 是否启用本地网络发现
	// 默认值: true
	EnableMDNS bool `json:"enable_mdns"`

	// MDNSService mDNS 服务名
	// 默认值: "_meshcore._udp"
	MDNSService string `json:"mdns_service"`
}

// DefaultBootstrapConfig 返回默认引导配置
func DefaultBootstrapConfig() BootstrapConfig {
	return BootstrapConfig{
		DialTimeout:        Duration(10 * time.Second),
		MethodTimeout:      Duration(15 * time.Second),
		MaxConcurrentDials: 8,
		HistorySize:        100,
		MaxTrackedPeers:    1024,
		MaxRecommendations: 20,
		MaxDistanceKm:      1000,
		EnableMDNS:         true,
		MDNSService:        "_meshcore._udp",
	}
}

// Validate 验证引导配置
func (c BootstrapConfig) Validate() error {
	for i, n := range c.Nodes {
		if strings.TrimSpace(n) == "" {
			return invalid("bootstrap.nodes[%d] cannot be empty", i)
		}
	}
	if c.DialTimeout <= 0 {
		return invalid("bootstrap.dial_timeout must be positive")
	}
	if c.MethodTimeout <= 0 {
		return invalid("bootstrap.method_timeout must be positive")
	}
	if c.MaxConcurrentDials < 1 {
		return invalid("bootstrap.max_concurrent_dials must be >= 1")
	}
	if c.HistorySize < 1 {
		return invalid("bootstrap.history_size must be >= 1")
	}
	if c.MaxTrackedPeers < 1 {
		return invalid("bootstrap.max_tracked_peers must be >= 1")
	}
	if c.MaxRecommendations < 1 {
		return invalid("bootstrap.max_recommendations must be >= 1")
	}
	if c.MaxDistanceKm <= 0 {
		return invalid("bootstrap.max_distance_km must be positive")
	}
	for i, u := range c.RelaySeeds {
		if !strings.HasPrefix(u, "ws://") && !strings.HasPrefix(u, "wss://") {
			return invalid("bootstrap.relay_seeds[%d]: %q is not a websocket url", i, u)
		}
	}
	if c.EnableMDNS && c.MDNSService == "" {
		return invalid("bootstrap.mdns_service cannot be empty when mdns is enabled")
	}
	return nil
}
