package types

import "strings"

// ============================================================================
//                              标识类型
// ============================================================================

// PeerID 节点标识
//
// 由传输层定义其编码（libp2p 为 base58 multihash，内存网络为任意字符串），
// 核心层只做相等比较，不做解析。
type PeerID string

// String 返回字符串表示
func (id PeerID) String() string { return string(id) }

// ShortString 返回前 8 个字符，用于日志
func (id PeerID) ShortString() string {
	if len(id) > 8 {
		return string(id[:8])
	}
	return string(id)
}

// IsEmpty 检查是否为空
func (id PeerID) IsEmpty() bool { return id == "" }

// Address 节点地址（multiaddr 字符串或 ws:// URL 等传输相关格式）
type Address string

// String 返回字符串表示
func (a Address) String() string { return string(a) }

// ProtocolID 协议标识
type ProtocolID string

// TopicID 发现主题标识
type TopicID string

// String 返回字符串表示
func (t TopicID) String() string { return string(t) }

// AddrsToStrings 将地址列表转为字符串列表
func AddrsToStrings(addrs []Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if s := strings.TrimSpace(string(a)); s != "" {
			out = append(out, s)
		}
	}
	return out
}
