package config

import "fmt"

// invalid 构造包装 ErrInvalidConfig 的错误
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}
