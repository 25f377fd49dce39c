// Package log 提供 meshcore 统一日志接口
//
// 基于 log/slog 封装：组件通过 Logger("core/recovery") 获取懒加载 logger，
// 每次调用都解析当前的 slog.Default()，因此运行时切换输出/级别立即生效。
//
// 环境变量：
//   - MESHCORE_LOG_LEVEL: debug / info / warn / error（默认 info）
//   - MESHCORE_LOG_FORMAT: text / json（默认 text）
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// 日志级别常量（从 slog 导出，方便使用）
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// Format 日志输出格式
type Format int

const (
	// FormatText 文本格式（默认）
	FormatText Format = iota
	// FormatJSON JSON 格式
	FormatJSON
)

// ParseLevel 解析日志级别名称，无法识别时返回 (LevelInfo, false)
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// ParseFormat 解析日志格式
func ParseFormat(name string) Format {
	if strings.EqualFold(strings.TrimSpace(name), "json") {
		return FormatJSON
	}
	return FormatText
}

// Configure 以指定输出、级别、格式重建默认 logger
func Configure(w io.Writer, level slog.Level, format Format) {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey {
				a.Key = "ts"
			}
			return a
		},
	}
	var h slog.Handler
	if format == FormatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	slog.SetDefault(slog.New(h))
}

// SetOutputWithLevel 同时设置日志输出目标和级别（文本格式）
//
// 示例：
//
//	file, _ := os.OpenFile("node.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
//	log.SetOutputWithLevel(file, slog.LevelDebug)
func SetOutputWithLevel(w io.Writer, level slog.Level) {
	Configure(w, level, FormatText)
}

// SetLevel 设置日志级别，输出到 stderr
func SetLevel(level slog.Level) {
	Configure(os.Stderr, level, ParseFormat(os.Getenv("MESHCORE_LOG_FORMAT")))
}

// Discard 丢弃所有日志（测试用）
func Discard() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4})))
}

// ============================================================================
//                              LazyLogger
// ============================================================================

// LazyLogger 懒加载 logger
//
//	var logger = log.Logger("core/recovery")
//	logger.Info("恢复管理器已启动")
type LazyLogger struct {
	component string
}

// Logger 返回带组件名的 LazyLogger
func Logger(component string) *LazyLogger {
	return &LazyLogger{component: component}
}

func (l *LazyLogger) base() *slog.Logger {
	return slog.Default().With("component", l.component)
}

// Debug 输出 Debug 级别日志
func (l *LazyLogger) Debug(msg string, args ...any) { l.base().Debug(msg, args...) }

// Info 输出 Info 级别日志
func (l *LazyLogger) Info(msg string, args ...any) { l.base().Info(msg, args...) }

// Warn 输出 Warn 级别日志
func (l *LazyLogger) Warn(msg string, args ...any) { l.base().Warn(msg, args...) }

// Error 输出 Error 级别日志
func (l *LazyLogger) Error(msg string, args ...any) { l.base().Error(msg, args...) }

// DebugContext 带 context 的 Debug 日志
func (l *LazyLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.base().DebugContext(ctx, msg, args...)
}

// WarnContext 带 context 的 Warn 日志
func (l *LazyLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.base().WarnContext(ctx, msg, args...)
}

// Enabled 判断指定级别是否会输出
func (l *LazyLogger) Enabled(level slog.Level) bool {
	return slog.Default().Enabled(context.Background(), level)
}

// With 添加额外的属性
func (l *LazyLogger) With(args ...any) *slog.Logger {
	return l.base().With(args...)
}

// ============================================================================
//                              工具函数
// ============================================================================

// TruncateID 安全截取 ID 用于日志显示
//
// 避免在日志中直接使用 id[:8] 导致 slice bounds out of range。
func TruncateID(id string, maxLen int) string {
	if len(id) <= maxLen {
		return id
	}
	return id[:maxLen]
}

func init() {
	level, _ := ParseLevel(os.Getenv("MESHCORE_LOG_LEVEL"))
	Configure(os.Stderr, level, ParseFormat(os.Getenv("MESHCORE_LOG_FORMAT")))
}
