package types

import "time"

// ============================================================================
//                              节点健康
// ============================================================================

// PeerHealthRecord 节点健康记录
//
// 由恢复管理器独占；首次连接时创建，每次健康检查/重连后更新，
// 节点优雅离开或重连耗尽时删除。
type PeerHealthRecord struct {
	PeerID              PeerID
	Addrs               []Address
	State               PeerState
	ConsecutiveFailures int
	IsHealthy           bool
	LastHealthCheck     time.Time
	ReconnectAttempts   int
	NextReconnectDelay  time.Duration
	LastLatency         time.Duration
	ConnectedAt         time.Time
}

// ============================================================================
//                              网络分区
// ============================================================================

// NetworkPartitionState 网络分区状态，每个节点至多一个
type NetworkPartitionState struct {
	DetectedAt         time.Time
	HealthyRatio       float64
	RecoveryInProgress bool
}

// ============================================================================
//                              网络健康
// ============================================================================

// NetworkHealth 网络健康概览
type NetworkHealth struct {
	TotalPeers     int
	HealthyPeers   int
	UnhealthyPeers int
	HealthyRatio   float64
	Partition      *NetworkPartitionState
	PeerHealth     []PeerHealthRecord
}
