package types

import "time"

// ============================================================================
//                              NetworkStatus - 网络状态
// ============================================================================

// Bandwidth 带宽估计
type Bandwidth struct {
	InBytesPerSec  float64
	OutBytesPerSec float64
}

// NetworkStatus 网络状态
type NetworkStatus struct {
	Connected    bool
	PeerCount    int
	DHTConnected bool
	LatencyMs    float64
	Bandwidth    Bandwidth
}

// ============================================================================
//                              DiagnosticsSnapshot - 诊断快照
// ============================================================================

// PeerMetric 单个节点的度量视图
type PeerMetric struct {
	PeerID     PeerID
	State      PeerState
	IsHealthy  bool
	LatencyMs  float64
	PacketLoss float64
	Samples    int
	LastSample time.Time
}

// PeerMetrics 节点度量汇总
type PeerMetrics struct {
	TotalPeers       int
	HealthyPeers     int
	AverageLatencyMs float64
	PacketLoss       float64
	Peers            []PeerMetric
}

// DHTStatus 发现基座状态
type DHTStatus struct {
	Connected    bool
	JoinedTopics int
	LastError    string
}

// Performance 消息计数
type Performance struct {
	MessagesSent      uint64
	MessagesReceived  uint64
	MessagesDelivered uint64
	MessagesFailed    uint64
	BytesIn           uint64
	BytesOut          uint64
	DeliveryRate      float64
}

// Issue 诊断问题
type Issue struct {
	ID         string
	Code       string
	Severity   Severity
	Message    string
	DetectedAt time.Time
	AutoFix    AutoFixAction
}

// TroubleshootingReport 排障报告
type TroubleshootingReport struct {
	HealthScore     int
	Issues          []Issue
	Recommendations []string
	CanAutoFix      bool
	AutoFixActions  []AutoFixAction
}

// DiagnosticsSnapshot 诊断快照，只读
type DiagnosticsSnapshot struct {
	NetworkStatus   NetworkStatus
	PeerMetrics     PeerMetrics
	DHTStatus       DHTStatus
	Performance     Performance
	Troubleshooting TroubleshootingReport
	GeneratedAt     time.Time
}
