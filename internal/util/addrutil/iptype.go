package addrutil

import (
	"net"
	"strings"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              IP 类型判断工具
// ============================================================================

// IsLoopbackAddr 判断 multiaddr 字符串是否是回环地址
func IsLoopbackAddr(addr string) bool {
	ip := ExtractIP(addr)
	return ip != nil && ip.IsLoopback()
}

// IsPrivateAddr 判断 multiaddr 字符串是否是私网或链路本地地址
func IsPrivateAddr(addr string) bool {
	ip := ExtractIP(addr)
	return ip != nil && (ip.IsPrivate() || ip.IsLinkLocalUnicast())
}

// IsPublicAddr 判断 multiaddr 字符串是否是公网地址
func IsPublicAddr(addr string) bool {
	ip := ExtractIP(addr)
	return ip != nil && ip.IsGlobalUnicast() && !ip.IsPrivate() && !ip.IsLoopback()
}

// ExtractIP 从地址字符串中提取 IP 地址
//
// 支持 multiaddr（/ip4/..., /ip6/...）、host:port 与纯 IP；
// /dns4/ 等无法直接得到 IP 的地址返回 nil。
func ExtractIP(addr string) net.IP {
	if addr == "" {
		return nil
	}
	if strings.HasPrefix(addr, "/") {
		m, err := ma.NewMultiaddr(addr)
		if err != nil {
			return nil
		}
		if v, err := m.ValueForProtocol(ma.P_IP4); err == nil {
			return net.ParseIP(v)
		}
		if v, err := m.ValueForProtocol(ma.P_IP6); err == nil {
			return net.ParseIP(v)
		}
		return nil
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return net.ParseIP(addr)
	}
	return net.ParseIP(host)
}

// AddrType 返回地址类型描述：relay / dns / loopback / private / public / unknown
func AddrType(addr string) string {
	switch {
	case addr == "":
		return "unknown"
	case strings.Contains(addr, "/p2p-circuit"):
		return "relay"
	case strings.Contains(addr, "/dns4/"), strings.Contains(addr, "/dns6/"), strings.Contains(addr, "/dnsaddr/"):
		return "dns"
	case IsLoopbackAddr(addr):
		return "loopback"
	case IsPrivateAddr(addr):
		return "private"
	case IsPublicAddr(addr):
		return "public"
	}
	return "unknown"
}
