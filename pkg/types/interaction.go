package types

import "time"

// ============================================================================
//                              交互记录
// ============================================================================

// PeerInteractionRecord 单次交互记录，写入后不可变
type PeerInteractionRecord struct {
	Timestamp   time.Time
	Kind        InteractionKind
	Success     bool
	LatencyMs   float64
	ErrorReason string
	DataSize    int64
}

// InteractionMeta RecordInteraction 的可选元数据
type InteractionMeta struct {
	// LatencyMs 测得的延迟，<= 0 表示未测量
	LatencyMs float64

	// ErrorReason 失败原因
	ErrorReason string

	// DataSize 消息大小
	DataSize int64
}

// ============================================================================
//                              种子节点
// ============================================================================

// BootstrapNodeRecord 种子节点可靠性记录
//
// 由配置创建，只由引导引擎修改，永不删除，只会因可靠性衰减被降级。
type BootstrapNodeRecord struct {
	ID                PeerID       `json:"id"`
	Address           Address      `json:"address"`
	Protocols         []ProtocolID `json:"protocols,omitempty"`
	Region            string       `json:"region,omitempty"`
	Reliability       float64      `json:"reliability"`
	LastSeen          time.Time    `json:"last_seen"`
	AvgResponseTimeMs float64      `json:"avg_response_time_ms"`
	Attempts          int          `json:"attempts"`
}

// Descriptor 转为候选描述
func (r BootstrapNodeRecord) Descriptor() PeerDescriptor {
	d := PeerDescriptor{ID: r.ID}
	if r.Address != "" {
		d.Addrs = []Address{r.Address}
	}
	if len(r.Protocols) > 0 {
		d.Protocols = append([]ProtocolID(nil), r.Protocols...)
	}
	d.Metadata = map[string]string{MetaSource: "bootstrap"}
	if r.Region != "" {
		d.Metadata[MetaRegion] = r.Region
	}
	return d
}

// ============================================================================
//                              推荐
// ============================================================================

// PeerRecommendation 推荐结果，按需从交互历史推导，不单独持久化
type PeerRecommendation struct {
	PeerID                PeerID
	Score                 float64
	Reasons               []string
	LastInteraction       time.Time
	SuccessfulConnections int
	FailedConnections     int
	AverageLatencyMs      float64
	SharedInterests       []string
	GeographicDistanceKm  float64 // 任一方坐标未知时为 -1
	Descriptor            PeerDescriptor
}
