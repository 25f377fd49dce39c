package meshcore

import (
	"errors"

	"github.com/dep2p/meshcore/config"
)

// 公共错误定义
var (
	// ────────────────────────────────────────────────────────────────────────
	// 构造错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrConfigurationInvalid 配置无效，New 立即失败
	ErrConfigurationInvalid = config.ErrInvalidConfig

	// ────────────────────────────────────────────────────────────────────────
	// 节点生命周期错误
	// ────────────────────────────────────────────────────────────────────────

	// ErrNotInitialized 节点尚未初始化
	ErrNotInitialized = errors.New("meshcore: node not initialized")

	// ErrAlreadyConnected 节点已连接
	ErrAlreadyConnected = errors.New("meshcore: node already connected")

	// ErrNotConnected 节点未连接
	ErrNotConnected = errors.New("meshcore: node not connected")

	// ErrNodeDestroyed 节点已销毁
	ErrNodeDestroyed = errors.New("meshcore: node destroyed")
)
