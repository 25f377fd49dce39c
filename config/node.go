package config

import "time"

// NodeConfig 节点配置
type NodeConfig struct {
	// MaxPeers 跟踪连接的上限
	// 默认值: 50
	MaxPeers int `json:"max_peers"`

	// Namespace 发现主题命名空间
	// 默认值: "meshcore"
	Namespace string `json:"namespace"`

	// Interests 本节点的兴趣标签，用于推荐打分
	Interests []string `json:"interests,omitempty"`

	// Latitude / Longitude 本节点坐标（可选），用于推荐的地理加分
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`

	// ShutdownTimeout Disconnect/Destroy 的最长等待时间
	// 默认值: 10s
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// DefaultNodeConfig 返回默认节点配置
func DefaultNodeConfig() NodeConfig {
	return NodeConfig{
		MaxPeers:        50,
		Namespace:       "meshcore",
		ShutdownTimeout: Duration(10 * time.Second),
	}
}

// Validate 验证节点配置
func (c NodeConfig) Validate() error {
	if c.MaxPeers < 1 {
		return invalid("node.max_peers must be >= 1")
	}
	if c.Namespace == "" {
		return invalid("node.namespace cannot be empty")
	}
	if (c.Latitude == nil) != (c.Longitude == nil) {
		return invalid("node.latitude and node.longitude must be set together")
	}
	if c.Latitude != nil && (*c.Latitude < -90 || *c.Latitude > 90 || *c.Longitude < -180 || *c.Longitude > 180) {
		return invalid("node coordinates out of range")
	}
	if c.ShutdownTimeout <= 0 {
		return invalid("node.shutdown_timeout must be positive")
	}
	return nil
}
