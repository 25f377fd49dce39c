package diagnostics

import "errors"

var (
	// ErrUnknownAction 未知的修复动作
	ErrUnknownAction = errors.New("diagnostics: unknown auto-fix action")

	// ErrNoRemedies 没有配置修复执行者
	ErrNoRemedies = errors.New("diagnostics: no remedies configured")

	// ErrRateLimited 修复频率超过限制
	ErrRateLimited = errors.New("diagnostics: auto-fix rate limited")

	// ErrClosed 服务已关闭
	ErrClosed = errors.New("diagnostics: service closed")
)
