package config

import "strings"

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别：debug / info / warn / error
	// 默认值: "info"
	Level string `json:"level"`

	// Format 输出格式：text / json
	// 默认值: "text"
	Format string `json:"format"`
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{Level: "info", Format: "text"}
}

// Validate 验证日志配置
func (c LogConfig) Validate() error {
	switch strings.ToLower(c.Level) {
	case "debug", "info", "warn", "warning", "error", "":
	default:
		return invalid("log.level %q is not supported", c.Level)
	}
	switch strings.ToLower(c.Format) {
	case "text", "json", "":
	default:
		return invalid("log.format %q is not supported", c.Format)
	}
	return nil
}
