package scheduler

import "errors"

var (
	// ErrStopped 调度器已停止
	ErrStopped = errors.New("scheduler: stopped")

	// ErrInvalidInterval 周期必须为正
	ErrInvalidInterval = errors.New("scheduler: interval must be positive")
)
