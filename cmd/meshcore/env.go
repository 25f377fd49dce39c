package main

import (
	"os"
	"strings"

	"github.com/dep2p/meshcore/config"
)

// ============================================================================
//                              环境变量覆盖（CLI 专用）
// ============================================================================

// 环境变量名（均使用 MESHCORE_ 前缀）
const (
	envPrefix         = "MESHCORE_"
	envPreset         = "PRESET"
	envBootstrapPeers = "BOOTSTRAP_PEERS"
	envListenAddrs    = "LISTEN_ADDRS"
	envNamespace      = "NAMESPACE"
	envDataDir        = "DATA_DIR"
	envEnableMDNS     = "ENABLE_MDNS"
	envLogFile        = "LOG_FILE"
	envLogLevel       = "LOG_LEVEL"
)

// applyEnvOverrides 应用环境变量覆盖配置
//
// 环境变量优先级高于配置文件，但低于命令行参数。预设在其他字段之前应用。
func applyEnvOverrides(cfg *config.Config) {
	if v := os.Getenv(envPrefix + envPreset); v != "" && *preset == "" {
		if err := config.ApplyPreset(cfg, v); err != nil {
			logger.Warn("忽略无效的预设环境变量", "value", v, "error", err)
		}
	}
	if v := os.Getenv(envPrefix + envBootstrapPeers); v != "" {
		cfg.Bootstrap.Nodes = splitAndTrim(v, ",")
	}
	if v := os.Getenv(envPrefix + envListenAddrs); v != "" {
		cfg.Transport.ListenAddrs = splitAndTrim(v, ",")
	}
	if v := os.Getenv(envPrefix + envNamespace); v != "" {
		cfg.Node.Namespace = v
	}
	if v := os.Getenv(envPrefix + envDataDir); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv(envPrefix + envEnableMDNS); v != "" {
		cfg.Bootstrap.EnableMDNS = parseBool(v)
	}
	if v := os.Getenv(envPrefix + envLogLevel); v != "" {
		cfg.Log.Level = v
	}
}

// ============================================================================
//                              辅助函数
// ============================================================================

// parseBool 解析布尔值字符串
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// splitAndTrim 分割字符串并去除空白
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
