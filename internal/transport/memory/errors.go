package memory

import "errors"

var (
	// ErrUnreachable 节点不可达
	ErrUnreachable = errors.New("memory: peer unreachable")

	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("memory: not connected")

	// ErrProtocolNotSupported 远端未注册协议处理器
	ErrProtocolNotSupported = errors.New("memory: protocol not supported")

	// ErrDHTUnavailable 发现基座不可用
	ErrDHTUnavailable = errors.New("memory: dht unavailable")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("memory: transport closed")
)
