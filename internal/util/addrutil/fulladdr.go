// Package addrutil 提供地址解析工具
//
// 本包解析种子配置、DNS 记录、中继服务返回的地址，支持两种写法：
//
//	<PeerID>@<addr>            任意传输地址（包括模拟网络的 /memory/...）
//	<multiaddr>/p2p/<PeerID>   完整地址
package addrutil

import (
	"errors"
	"fmt"
	"strings"

	ma "github.com/multiformats/go-multiaddr"

	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              错误定义
// ============================================================================

var (
	// ErrInvalidFullAddr 无效的完整地址
	ErrInvalidFullAddr = errors.New("invalid full address: must contain /p2p/<PeerID>")

	// ErrMissingPeerID 缺少 /p2p/<PeerID> 后缀
	ErrMissingPeerID = errors.New("missing /p2p/<PeerID> suffix")

	// ErrInvalidPeerID 无效的 PeerID
	ErrInvalidPeerID = errors.New("invalid peer ID in address")

	// ErrPeerIDNotAtEnd /p2p/<PeerID> 不在地址末尾
	ErrPeerIDNotAtEnd = errors.New("/p2p/<PeerID> must be at the end of address")

	// ErrEmptyAddress 空地址
	ErrEmptyAddress = errors.New("empty address")
)

const p2pPart = "/p2p/"

// ============================================================================
//                              完整地址解析
// ============================================================================

// ParseFullAddr 解析完整地址（含 /p2p/<PeerID>）
//
// 返回节点 ID 与去掉 /p2p/<PeerID> 的可拨号地址；可拨号部分必须是合法 multiaddr。
// 中继电路地址取最后一个 /p2p/ 作为目标：
//
//	/ip4/1.2.3.4/tcp/4001/p2p/<relay>/p2p-circuit/p2p/<target>
//	→ target, /ip4/1.2.3.4/tcp/4001/p2p/<relay>/p2p-circuit
func ParseFullAddr(fullAddr string) (types.PeerID, types.Address, error) {
	fullAddr = strings.TrimSpace(fullAddr)
	if fullAddr == "" {
		return "", "", ErrEmptyAddress
	}

	last := strings.LastIndex(fullAddr, p2pPart)
	if last == -1 {
		return "", "", ErrMissingPeerID
	}
	idStr := fullAddr[last+len(p2pPart):]
	if strings.Contains(idStr, "/") {
		return "", "", ErrPeerIDNotAtEnd
	}
	if idStr == "" {
		return "", "", ErrInvalidPeerID
	}

	dial := fullAddr[:last]
	if dial == "" {
		return "", "", ErrInvalidFullAddr
	}
	if _, err := ma.NewMultiaddr(dial); err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidFullAddr, err)
	}
	return types.PeerID(idStr), types.Address(dial), nil
}

// ParseSeed 解析种子地址
//
// 支持 "<PeerID>@<addr>" 与完整 multiaddr 两种写法。
func ParseSeed(s string) (types.PeerID, types.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", "", ErrEmptyAddress
	}
	if i := strings.Index(s, "@"); i > 0 && !strings.HasPrefix(s, "/") {
		id, addr := strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+1:])
		if addr == "" {
			return "", "", ErrEmptyAddress
		}
		return types.PeerID(id), types.Address(addr), nil
	}
	return ParseFullAddr(s)
}

// BuildFullAddr 构建完整地址（地址 + /p2p/<PeerID>）
//
// 地址已包含相同的 /p2p/<PeerID> 时原样返回，包含不同 ID 时返回错误。
func BuildFullAddr(addr types.Address, id types.PeerID) (string, error) {
	if addr == "" {
		return "", ErrEmptyAddress
	}
	if id.IsEmpty() {
		return "", ErrInvalidPeerID
	}
	s := string(addr)
	if strings.HasSuffix(s, "/p2p-circuit") || !HasPeerID(s) {
		return s + p2pPart + string(id), nil
	}
	existing, _, err := ParseFullAddr(s)
	if err != nil {
		return "", err
	}
	if existing != id {
		return "", errors.New("address already contains different peer ID")
	}
	return s, nil
}

// StripPeerID 移除末尾的 /p2p/<PeerID>，没有时返回原地址
func StripPeerID(addr string) string {
	last := strings.LastIndex(addr, p2pPart)
	if last == -1 || strings.Contains(addr[last+len(p2pPart):], "/") {
		return addr
	}
	return addr[:last]
}

// HasPeerID 检查地址是否以 /p2p/<PeerID> 结尾
func HasPeerID(addr string) bool {
	last := strings.LastIndex(addr, p2pPart)
	if last == -1 {
		return false
	}
	rest := addr[last+len(p2pPart):]
	return rest != "" && !strings.Contains(rest, "/")
}
