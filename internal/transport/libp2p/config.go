package libp2p

import (
	"errors"
	"time"

	"github.com/dep2p/meshcore/config"
)

const (
	// DefaultProtocolPrefix kad-dht 协议前缀
	DefaultProtocolPrefix = "/meshcore"

	// DefaultGracePeriod 新连接免于裁剪的时间
	DefaultGracePeriod = time.Minute

	// eventQueueSize 连接事件分发队列长度
	eventQueueSize = 256

	// eventBuffer 每个订阅者的缓冲区
	eventBuffer = 64
)

// Config libp2p 传输配置
type Config struct {
	// ListenAddrs 监听的 multiaddr
	ListenAddrs []string

	// DHTMode auto / client / server
	DHTMode string

	// ProtocolPrefix kad-dht 协议前缀，不同前缀的网络互相隔离
	ProtocolPrefix string

	// ConnLowWater / ConnHighWater 连接管理水位，高水位为 0 时不启用裁剪
	ConnLowWater  int
	ConnHighWater int

	// GracePeriod 新连接免于裁剪的时间
	GracePeriod time.Duration
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	tc := config.DefaultTransportConfig()
	return Config{
		ListenAddrs:    tc.ListenAddrs,
		DHTMode:        tc.DHTMode,
		ProtocolPrefix: DefaultProtocolPrefix,
		ConnLowWater:   tc.ConnLowWater,
		ConnHighWater:  tc.ConnHighWater,
		GracePeriod:    DefaultGracePeriod,
	}
}

// ConfigFromUnified 从统一配置创建传输配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	t := cfg.Transport
	if len(t.ListenAddrs) > 0 {
		c.ListenAddrs = append([]string(nil), t.ListenAddrs...)
	}
	if t.DHTMode != "" {
		c.DHTMode = t.DHTMode
	}
	c.ConnLowWater = t.ConnLowWater
	c.ConnHighWater = t.ConnHighWater
	if ns := cfg.Node.Namespace; ns != "" {
		c.ProtocolPrefix = "/" + ns
	}
	return c
}

// Validate 验证配置
func (c Config) Validate() error {
	switch c.DHTMode {
	case "auto", "client", "server":
	default:
		return errors.New("dht mode must be auto, client or server")
	}
	if c.ProtocolPrefix == "" || c.ProtocolPrefix[0] != '/' {
		return errors.New("protocol prefix must start with /")
	}
	if c.ConnLowWater < 0 || c.ConnHighWater < c.ConnLowWater {
		return errors.New("conn water marks are inconsistent")
	}
	return nil
}
