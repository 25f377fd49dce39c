package types

import "time"

// ============================================================================
//                              传输事件
// ============================================================================

// ConnEventKind 传输连接事件类型
type ConnEventKind int

const (
	// ConnEventConnected peer:connect
	ConnEventConnected ConnEventKind = iota
	// ConnEventDisconnected peer:disconnect
	ConnEventDisconnected
)

// String 返回事件类型的字符串表示
func (k ConnEventKind) String() string {
	if k == ConnEventConnected {
		return "peer:connect"
	}
	return "peer:disconnect"
}

// ConnEvent 传输层发出的连接事件
type ConnEvent struct {
	Kind      ConnEventKind
	PeerID    PeerID
	Addrs     []Address
	Direction Direction
	Time      time.Time
}

// ============================================================================
//                              节点事件
// ============================================================================

// PeerConnectedEvent 节点已连接
type PeerConnectedEvent struct {
	PeerID    PeerID
	Addrs     []Address
	Direction Direction
	Time      time.Time
}

// PeerDisconnectedEvent 节点已断开
type PeerDisconnectedEvent struct {
	PeerID PeerID
	Time   time.Time
}

// ============================================================================
//                              发现事件
// ============================================================================

// PeerDiscoveredEvent 通过主题发现了节点
type PeerDiscoveredEvent struct {
	Topic TopicID
	Peer  PeerDescriptor
	Time  time.Time
}

// BootstrapExhaustedEvent 回退链所有方法都没有产出
type BootstrapExhaustedEvent struct {
	Cause   string
	Methods []string
	Time    time.Time
}

// FallbackCompletedEvent 回退链某个方法产出了节点
type FallbackCompletedEvent struct {
	Method string
	Peers  int
	Time   time.Time
}

// ============================================================================
//                              恢复事件
// ============================================================================

// PeerUnhealthyEvent 节点连续失败达到阈值
type PeerUnhealthyEvent struct {
	PeerID              PeerID
	ConsecutiveFailures int
	Time                time.Time
}

// PeerRecoveredEvent 节点重连成功
type PeerRecoveredEvent struct {
	PeerID   PeerID
	Attempts int
	Time     time.Time
}

// PeerReplacedEvent 节点重连耗尽，已删除并进入替换流程
type PeerReplacedEvent struct {
	PeerID PeerID
	Reason string
	Time   time.Time
}

// PartitionDetectedEvent 检测到网络分区
type PartitionDetectedEvent struct {
	State NetworkPartitionState
	Cause error
}

// PartitionRecoveredEvent 网络分区已恢复
type PartitionRecoveredEvent struct {
	HealthyRatio float64
	Duration     time.Duration
	Time         time.Time
}

// ============================================================================
//                              诊断事件
// ============================================================================

// DiagnosticsUpdatedEvent 诊断快照已刷新
type DiagnosticsUpdatedEvent struct {
	Snapshot DiagnosticsSnapshot
}

// IssuesDetectedEvent 问题集合出现或发生变化
type IssuesDetectedEvent struct {
	Issues []Issue
	Time   time.Time
}
