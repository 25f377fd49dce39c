package recovery

import (
	"errors"
	"fmt"
)

var (
	// ErrDialFailed 重连或替换拨号失败
	ErrDialFailed = errors.New("recovery: dial failed")

	// ErrPartitionDetected 检测到网络分区，作为分区事件与回退链的原因
	ErrPartitionDetected = errors.New("recovery: network partition detected")

	// ErrNotTracked 节点未被跟踪
	ErrNotTracked = errors.New("recovery: peer not tracked")

	// ErrMaxPeers 已达到跟踪节点上限
	ErrMaxPeers = errors.New("recovery: max peers reached")

	// ErrNotConnected 节点当前没有连接
	ErrNotConnected = errors.New("recovery: peer not connected")

	// ErrClosed 管理器已关闭
	ErrClosed = errors.New("recovery: manager closed")
)

// RecoveryError 单节点恢复错误
type RecoveryError struct {
	Op     string // 操作名称
	PeerID string // 节点 ID
	Err    error  // 底层错误
}

// Error 实现 error 接口
func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery %s %s: %v", e.Op, e.PeerID, e.Err)
}

// Unwrap 支持 errors.Unwrap
func (e *RecoveryError) Unwrap() error {
	return e.Err
}
