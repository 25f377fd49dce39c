package mdns

import "errors"

// 预定义错误
var (
	// ErrAlreadyStarted 服务已启动
	ErrAlreadyStarted = errors.New("mdns: already started")

	// ErrAlreadyClosed 服务已关闭
	ErrAlreadyClosed = errors.New("mdns: already closed")

	// ErrInvalidConfig 无效配置
	ErrInvalidConfig = errors.New("mdns: invalid config")

	// ErrNilHost Host 为 nil
	ErrNilHost = errors.New("mdns: host is nil")
)
