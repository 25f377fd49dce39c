package storage

import (
	"errors"

	"github.com/dep2p/meshcore/pkg/interfaces"
)

var (
	// ErrNotFound 键不存在
	ErrNotFound = interfaces.ErrNotFound

	// ErrClosed 引擎已关闭
	ErrClosed = errors.New("storage: engine closed")

	// ErrEmptyKey 空键
	ErrEmptyKey = errors.New("storage: empty key")
)

// IsNotFound 检查是否为 key not found 错误
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
