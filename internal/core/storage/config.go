package storage

import (
	"time"

	"github.com/dep2p/meshcore/config"
)

// Config Storage 模块配置
type Config struct {
	// Path BadgerDB 数据库目录，InMemory 时忽略
	Path string

	// InMemory 内存模式
	InMemory bool

	// SyncWrites 是否同步写入
	SyncWrites bool

	// GCInterval 值日志垃圾回收间隔，0 表示禁用
	GCInterval time.Duration

	// GCDiscardRatio 垃圾回收丢弃比例
	GCDiscardRatio float64
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Path:           "./data/meshcore.db",
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig 返回内存模式配置
func InMemoryConfig() Config {
	c := DefaultConfig()
	c.InMemory = true
	c.GCInterval = 0
	return c
}

// ConfigFromUnified 从统一配置创建 Storage 配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	s := cfg.Storage
	if s.DataDir != "" {
		c.Path = s.DBPath()
	}
	c.InMemory = s.InMemory
	c.SyncWrites = s.SyncWrites
	c.GCInterval = s.GCInterval.Duration()
	if s.GCDiscardRatio > 0 {
		c.GCDiscardRatio = s.GCDiscardRatio
	}
	if c.InMemory {
		c.GCInterval = 0
	}
	return c
}

// Validate 验证配置
func (c *Config) Validate() error {
	if !c.InMemory && c.Path == "" {
		return config.ErrInvalidConfig
	}
	if c.GCInterval > 0 && c.GCInterval < time.Minute {
		c.GCInterval = time.Minute
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		c.GCDiscardRatio = 0.5
	}
	return nil
}
