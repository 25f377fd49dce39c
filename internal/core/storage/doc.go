// Package storage 提供基于 BadgerDB 的持久化存储
//
// 引导引擎把种子节点的可靠性统计保存在这里，重启后恢复。
//
// # 键空间设计
//
//	前缀     | 模块           | 说明
//	---------|----------------|------------------
//	b/s/     | bootstrap      | 种子节点可靠性记录（JSON）
//
// 测试与模拟网络使用 InMemory 模式，不落盘。
package storage
