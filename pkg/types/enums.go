package types

// ============================================================================
//                              InteractionKind - 交互类型
// ============================================================================

// InteractionKind 节点交互类型
type InteractionKind int

const (
	// InteractionConnection 建立连接
	InteractionConnection InteractionKind = iota
	// InteractionMessage 消息收发
	InteractionMessage
	// InteractionDiscovery 发现查询
	InteractionDiscovery
)

// String 返回交互类型的字符串表示
func (k InteractionKind) String() string {
	switch k {
	case InteractionConnection:
		return "connection"
	case InteractionMessage:
		return "message"
	case InteractionDiscovery:
		return "discovery"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              PeerState - 节点健康状态
// ============================================================================

// PeerState 节点健康状态机
//
//	Connected → Unhealthy → Reconnecting → {Connected | Replaced}
type PeerState int

const (
	// PeerStateConnected 已连接且健康
	PeerStateConnected PeerState = iota
	// PeerStateUnhealthy 连续失败达到阈值
	PeerStateUnhealthy
	// PeerStateReconnecting 正在按退避重连
	PeerStateReconnecting
)

// String 返回状态的字符串表示
func (s PeerState) String() string {
	switch s {
	case PeerStateConnected:
		return "connected"
	case PeerStateUnhealthy:
		return "unhealthy"
	case PeerStateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ============================================================================
//                              Severity - 问题严重程度
// ============================================================================

// Severity 诊断问题严重程度
type Severity int

const (
	// SeverityInfo 提示
	SeverityInfo Severity = iota
	// SeverityWarning 警告
	SeverityWarning
	// SeverityError 错误
	SeverityError
	// SeverityCritical 严重
	SeverityCritical
)

// String 返回严重程度的字符串表示
func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Penalty 返回该严重程度在健康评分中的扣分
func (s Severity) Penalty() int {
	switch s {
	case SeverityCritical:
		return 20
	case SeverityError:
		return 10
	case SeverityWarning:
		return 5
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ============================================================================
//                              AutoFixAction - 自动修复动作
// ============================================================================

// AutoFixAction 自动修复动作
type AutoFixAction string

const (
	// AutoFixNone 无可用修复
	AutoFixNone AutoFixAction = ""
	// AutoFixRetryBootstrap 重新执行引导回退链
	AutoFixRetryBootstrap AutoFixAction = "retry_bootstrap"
	// AutoFixResetPeerConnections 重置所有节点连接
	AutoFixResetPeerConnections AutoFixAction = "reset_peer_connections"
	// AutoFixForceNetworkRecovery 强制网络级恢复
	AutoFixForceNetworkRecovery AutoFixAction = "force_network_recovery"
	// AutoFixRequestPeers 请求补充节点
	AutoFixRequestPeers AutoFixAction = "request_peers"
)

// Known 是否为已知动作
func (a AutoFixAction) Known() bool {
	switch a {
	case AutoFixRetryBootstrap, AutoFixResetPeerConnections, AutoFixForceNetworkRecovery, AutoFixRequestPeers:
		return true
	default:
		return false
	}
}

// ============================================================================
//                              Direction - 连接方向
// ============================================================================

// Direction 连接方向
type Direction int

const (
	// DirUnknown 未知方向
	DirUnknown Direction = iota
	// DirInbound 入站连接
	DirInbound
	// DirOutbound 出站连接
	DirOutbound
)

// String 返回方向的字符串表示
func (d Direction) String() string {
	switch d {
	case DirInbound:
		return "inbound"
	case DirOutbound:
		return "outbound"
	default:
		return "unknown"
	}
}
