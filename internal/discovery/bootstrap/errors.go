package bootstrap

import (
	"errors"
	"fmt"
)

// 预定义错误
var (
	// ErrBootstrapExhausted 回退链所有方法都没有产出节点
	ErrBootstrapExhausted = errors.New("bootstrap: all fallback methods exhausted")

	// ErrNoBootstrapPeers 没有可用的种子节点
	ErrNoBootstrapPeers = errors.New("bootstrap: no bootstrap peers configured")

	// ErrAllConnectionsFailed 所有种子拨号都失败
	ErrAllConnectionsFailed = errors.New("bootstrap: all connections failed")

	// ErrAlreadyClosed 引擎已关闭
	ErrAlreadyClosed = errors.New("bootstrap: already closed")

	// ErrInvalidSeed 种子地址无法解析
	ErrInvalidSeed = errors.New("bootstrap: invalid seed address")
)

// BootstrapError 引导错误
type BootstrapError struct {
	Op     string // 操作名称
	PeerID string // 节点 ID（如果适用）
	Err    error  // 底层错误
}

// Error 实现 error 接口
func (e *BootstrapError) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("bootstrap %s failed for peer %s: %v", e.Op, e.PeerID, e.Err)
	}
	return fmt.Sprintf("bootstrap %s failed: %v", e.Op, e.Err)
}

// Unwrap 支持 errors.Unwrap
func (e *BootstrapError) Unwrap() error {
	return e.Err
}
