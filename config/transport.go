package config

// 传输类型
const (
	// TransportLibp2p go-libp2p 主机
	TransportLibp2p = "libp2p"
	// TransportMemory 进程内模拟网络
	TransportMemory = "memory"
)

// TransportConfig 传输适配器配置
type TransportConfig struct {
	// Kind 传输类型：libp2p / memory
	// 默认值: "libp2p"
	Kind string `json:"kind"`

	// ListenAddrs 监听地址（multiaddr）
	ListenAddrs []string `json:"listen_addrs"`

	// DHTMode DHT 模式：auto / client / server
	// 默认值: "auto"
	DHTMode string `json:"dht_mode"`

	// ConnLowWater / ConnHighWater 连接管理水位
	ConnLowWater  int `json:"conn_low_water"`
	ConnHighWater int `json:"conn_high_water"`
}

// DefaultTransportConfig 返回默认传输配置
func DefaultTransportConfig() TransportConfig {
	return TransportConfig{
		Kind:          TransportLibp2p,
		ListenAddrs:   []string{"/ip4/0.0.0.0/tcp/4001", "/ip4/0.0.0.0/udp/4001/quic-v1"},
		DHTMode:       "auto",
		ConnLowWater:  32,
		ConnHighWater: 96,
	}
}

// Validate 验证传输配置
func (c TransportConfig) Validate() error {
	switch c.Kind {
	case TransportLibp2p, TransportMemory:
	default:
		return invalid("transport.kind %q is not supported", c.Kind)
	}
	switch c.DHTMode {
	case "auto", "client", "server":
	default:
		return invalid("transport.dht_mode %q is not supported", c.DHTMode)
	}
	if c.ConnLowWater < 0 || c.ConnHighWater < c.ConnLowWater {
		return invalid("transport conn water marks are inconsistent")
	}
	return nil
}
