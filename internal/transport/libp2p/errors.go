package libp2p

import "errors"

// 预定义错误
var (
	// ErrInvalidPeerID 节点 ID 无法解析
	ErrInvalidPeerID = errors.New("libp2p: invalid peer id")

	// ErrNoAddrs 没有可用的拨号地址
	ErrNoAddrs = errors.New("libp2p: no dialable addresses")

	// ErrDialSelf 拨号本节点
	ErrDialSelf = errors.New("libp2p: dial to self")

	// ErrNotConnected 未连接
	ErrNotConnected = errors.New("libp2p: not connected")

	// ErrDHTUnavailable 路由表为空，发现基座不可用
	ErrDHTUnavailable = errors.New("libp2p: dht unavailable")

	// ErrClosed 传输已关闭
	ErrClosed = errors.New("libp2p: transport closed")
)
