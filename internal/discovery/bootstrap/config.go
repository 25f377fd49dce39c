package bootstrap

import (
	"errors"
	"time"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/types"
)

// Config 引导引擎配置
type Config struct {
	// Seeds 种子节点（"id@addr" 或带 /p2p/ 的 multiaddr）
	Seeds []string

	// DialTimeout 单个种子拨号超时
	DialTimeout time.Duration

	// MethodTimeout 回退链每个方法的超时
	MethodTimeout time.Duration

	// MaxConcurrentDials 种子并发拨号数
	MaxConcurrentDials int

	// HistorySize 每个节点保留的交互记录条数
	HistorySize int

	// MaxTrackedPeers 保留交互历史的节点数上限
	MaxTrackedPeers int

	// MaxRecommendations 推荐结果上限
	MaxRecommendations int

	// MaxDistanceKm 地理加分的最大距离
	MaxDistanceKm float64

	// Profile 本节点的位置与兴趣
	Profile types.LocalProfile
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		DialTimeout:        10 * time.Second,
		MethodTimeout:      15 * time.Second,
		MaxConcurrentDials: 8,
		HistorySize:        100,
		MaxTrackedPeers:    1024,
		MaxRecommendations: 20,
		MaxDistanceKm:      1000,
	}
}

// ConfigFromUnified 从统一配置创建引导配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	b := cfg.Bootstrap
	c.Seeds = append([]string(nil), b.Nodes...)
	if d := b.DialTimeout.Duration(); d > 0 {
		c.DialTimeout = d
	}
	if d := b.MethodTimeout.Duration(); d > 0 {
		c.MethodTimeout = d
	}
	if b.MaxConcurrentDials > 0 {
		c.MaxConcurrentDials = b.MaxConcurrentDials
	}
	if b.HistorySize > 0 {
		c.HistorySize = b.HistorySize
	}
	if b.MaxTrackedPeers > 0 {
		c.MaxTrackedPeers = b.MaxTrackedPeers
	}
	if b.MaxRecommendations > 0 {
		c.MaxRecommendations = b.MaxRecommendations
	}
	if b.MaxDistanceKm > 0 {
		c.MaxDistanceKm = b.MaxDistanceKm
	}

	c.Profile.Interests = types.NormalizeInterests(cfg.Node.Interests)
	if cfg.Node.Latitude != nil && cfg.Node.Longitude != nil {
		c.Profile.Location = &types.GeoPoint{Lat: *cfg.Node.Latitude, Lon: *cfg.Node.Longitude}
	}
	return c
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.DialTimeout <= 0 {
		return errors.New("dial timeout must be positive")
	}
	if c.MethodTimeout <= 0 {
		return errors.New("method timeout must be positive")
	}
	if c.MaxConcurrentDials < 1 {
		return errors.New("max concurrent dials must be >= 1")
	}
	if c.HistorySize < 1 {
		return errors.New("history size must be >= 1")
	}
	if c.MaxTrackedPeers < 1 {
		return errors.New("max tracked peers must be >= 1")
	}
	if c.MaxRecommendations < 1 {
		return errors.New("max recommendations must be >= 1")
	}
	if c.MaxDistanceKm <= 0 {
		return errors.New("max distance must be positive")
	}
	if c.Profile.Location != nil && !c.Profile.Location.Valid() {
		return errors.New("profile location out of range")
	}
	return nil
}
