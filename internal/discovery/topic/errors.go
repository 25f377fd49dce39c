package topic

import "errors"

var (
	// ErrDiscoveryTimeout 主题查询超时
	ErrDiscoveryTimeout = errors.New("discovery: lookup timed out")

	// ErrDiscoveryUnreachable 发现基座不可用
	ErrDiscoveryUnreachable = errors.New("discovery: substrate unreachable")

	// ErrInsufficientPeers 主题查询的结果少于 discovery.min_peers
	ErrInsufficientPeers = errors.New("discovery: too few peers")

	// ErrServiceClosed 服务已关闭
	ErrServiceClosed = errors.New("discovery: service closed")
)
