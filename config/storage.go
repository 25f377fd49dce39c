package config

import (
	"path/filepath"
	"time"
)

// StorageConfig 存储配置
//
// 种子节点可靠性表保存在 BadgerDB 中，通过 Key 前缀隔离：
//
//	${DataDir}/
//	└── meshcore.db/        # BadgerDB 主数据库
type StorageConfig struct {
	// DataDir 数据目录路径
	// 默认值: "./data"
	DataDir string `json:"data_dir"`

	// InMemory 使用内存模式（不落盘，测试与模拟网络使用）
	InMemory bool `json:"in_memory"`

	// SyncWrites 每次写入同步到磁盘
	SyncWrites bool `json:"sync_writes"`

	// GCInterval 值日志垃圾回收周期，0 表示禁用
	// 默认值: 10m
	GCInterval Duration `json:"gc_interval"`

	// GCDiscardRatio 垃圾回收丢弃比例
	// 默认值: 0.5
	GCDiscardRatio float64 `json:"gc_discard_ratio"`
}

// DefaultStorageConfig 返回默认的存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		DataDir:        "./data",
		GCInterval:     Duration(10 * time.Minute),
		GCDiscardRatio: 0.5,
	}
}

// Validate 验证存储配置的有效性
func (c StorageConfig) Validate() error {
	if !c.InMemory && c.DataDir == "" {
		return invalid("storage.data_dir cannot be empty")
	}
	if c.GCInterval < 0 {
		return invalid("storage.gc_interval cannot be negative")
	}
	if c.GCDiscardRatio <= 0 || c.GCDiscardRatio >= 1 {
		return invalid("storage.gc_discard_ratio must be in (0, 1)")
	}
	return nil
}

// DBPath 返回 BadgerDB 数据库路径
func (c StorageConfig) DBPath() string {
	return filepath.Join(c.DataDir, "meshcore.db")
}
