// Package types 定义 meshcore 的公共数据结构
//
// 这是整个系统的最底层包，不依赖任何其他 meshcore 内部包。
// 所有类型都是纯值类型，用于在各模块间传递数据。
//
// # 文件组织
//
//   - ids.go         - PeerID, Address, ProtocolID, TopicID
//   - peer.go        - PeerDescriptor, GeoPoint
//   - discovery.go   - SearchCriteria
//   - interaction.go - PeerInteractionRecord, BootstrapNodeRecord, PeerRecommendation
//   - health.go      - PeerHealthRecord, NetworkPartitionState, NetworkHealth
//   - stats.go       - NetworkStatus, DiagnosticsSnapshot, Issue
//   - events.go      - 组件事件
package types
