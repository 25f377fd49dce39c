package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/hashicorp/golang-lru/v2/expirable"
	mdns "github.com/miekg/dns"

	"github.com/dep2p/meshcore/internal/util/addrutil"
	"github.com/dep2p/meshcore/pkg/types"
)

// ============================================================================
//                              常量定义
// ============================================================================

const (
	// DNSAddrPrefix dnsaddr 前缀
	DNSAddrPrefix = "dnsaddr="

	// DNSAddrDomainPrefix DNS 地址域名前缀
	DNSAddrDomainPrefix = "_dnsaddr."

	resolvConfPath = "/etc/resolv.conf"
)

// ============================================================================
//                              Resolver 实现
// ============================================================================

// Resolver DNS TXT 记录解析器
type Resolver struct {
	cfg     Config
	udp     *mdns.Client
	tcp     *mdns.Client
	servers []string
	cache   *expirable.LRU[string, []types.PeerDescriptor]
}

// NewResolver 创建 DNS 解析器
func NewResolver(cfg Config) *Resolver {
	r := &Resolver{
		cfg: cfg,
		udp: &mdns.Client{Net: "udp", Timeout: cfg.Timeout},
		tcp: &mdns.Client{Net: "tcp", Timeout: cfg.Timeout},
	}

	if cfg.Server != "" {
		r.servers = []string{cfg.Server}
	} else if cc, err := mdns.ClientConfigFromFile(resolvConfPath); err == nil {
		for _, s := range cc.Servers {
			r.servers = append(r.servers, net.JoinHostPort(s, cc.Port))
		}
	}

	if cfg.CacheTTL > 0 {
		size := cfg.CacheSize
		if size <= 0 {
			size = 64
		}
		r.cache = expirable.NewLRU[string, []types.PeerDescriptor](size, nil, cfg.CacheTTL)
	}
	return r
}

// Resolve 解析域名获取节点
func (r *Resolver) Resolve(ctx context.Context, domain string) ([]types.PeerDescriptor, error) {
	return r.ResolveWithDepth(ctx, domain, r.cfg.MaxDepth)
}

// ResolveWithDepth 递归解析域名
func (r *Resolver) ResolveWithDepth(ctx context.Context, domain string, maxDepth int) ([]types.PeerDescriptor, error) {
	if maxDepth < 0 {
		return nil, ErrMaxDepthExceeded
	}
	domain = normalizeDomain(domain)

	if r.cache != nil {
		if peers, ok := r.cache.Get(domain); ok {
			return clonePeers(peers), nil
		}
	}

	records, err := r.lookupTXT(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("resolve TXT records for %s: %w", domain, err)
	}
	if len(records) == 0 {
		return nil, ErrNoRecordsFound
	}

	var peers []types.PeerDescriptor
	seen := make(map[types.PeerID]bool)
	add := func(p types.PeerDescriptor) {
		if !seen[p.ID] {
			seen[p.ID] = true
			peers = append(peers, p)
		}
	}

	for _, record := range records {
		peer, nested, err := ParseDNSAddr(record)
		if err != nil {
			logger.Debug("忽略无效 dnsaddr 记录", "domain", domain, "record", record, "error", err)
			continue
		}
		if nested == "" {
			add(*peer)
			continue
		}
		if maxDepth == 0 {
			continue
		}
		nestedPeers, err := r.ResolveWithDepth(ctx, nested, maxDepth-1)
		if err != nil {
			logger.Debug("嵌套域名解析失败", "domain", nested, "error", err)
			continue
		}
		for _, p := range nestedPeers {
			add(p)
		}
	}

	if r.cache != nil {
		r.cache.Add(domain, clonePeers(peers))
	}
	return peers, nil
}

// lookupTXT 依次询问配置的服务器
func (r *Resolver) lookupTXT(ctx context.Context, domain string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	if len(r.servers) == 0 {
		return systemLookupTXT(ctx, domain)
	}

	var lastErr error
	for _, server := range r.servers {
		records, err := r.exchange(ctx, domain, server)
		if err == nil || errors.Is(err, ErrNoRecordsFound) {
			return records, err
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (r *Resolver) exchange(ctx context.Context, domain, server string) ([]string, error) {
	m := new(mdns.Msg)
	m.SetQuestion(mdns.Fqdn(domain), mdns.TypeTXT)
	m.RecursionDesired = true

	in, _, err := r.udp.ExchangeContext(ctx, m, server)
	if err == nil && in.Truncated {
		in, _, err = r.tcp.ExchangeContext(ctx, m, server)
	}
	if err != nil {
		return nil, err
	}

	switch in.Rcode {
	case mdns.RcodeSuccess:
	case mdns.RcodeNameError:
		return nil, ErrNoRecordsFound
	default:
		return nil, fmt.Errorf("dns server %s answered %s", server, mdns.RcodeToString[in.Rcode])
	}

	var records []string
	for _, rr := range in.Answer {
		if txt, ok := rr.(*mdns.TXT); ok {
			records = append(records, strings.Join(txt.Txt, ""))
		}
	}
	return records, nil
}

// systemLookupTXT 没有可用服务器地址时使用系统解析器
func systemLookupTXT(ctx context.Context, domain string) ([]string, error) {
	records, err := net.DefaultResolver.LookupTXT(ctx, domain)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return nil, ErrNoRecordsFound
		}
		return nil, err
	}
	return records, nil
}

// ClearCache 清除缓存
func (r *Resolver) ClearCache() {
	if r.cache != nil {
		r.cache.Purge()
	}
}

// CacheLen 缓存的域名数
func (r *Resolver) CacheLen() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.Len()
}

// ============================================================================
//                              dnsaddr 解析
// ============================================================================

func normalizeDomain(domain string) string {
	domain = strings.TrimSuffix(strings.TrimSpace(domain), ".")
	if !strings.HasPrefix(domain, DNSAddrDomainPrefix) {
		domain = DNSAddrDomainPrefix + domain
	}
	return domain
}

// ParseDNSAddr 解析 dnsaddr 记录
//
// 支持的格式：
//   - dnsaddr=/ip4/<ip>/tcp/<port>/p2p/<peerID>
//   - dnsaddr=/ip6/<ip>/udp/<port>/quic-v1/p2p/<peerID>
//   - dnsaddr=/dnsaddr/<domain>（嵌套域名，返回 nestedDomain）
func ParseDNSAddr(record string) (peer *types.PeerDescriptor, nestedDomain string, err error) {
	if !strings.HasPrefix(record, DNSAddrPrefix) {
		return nil, "", ErrInvalidDNSAddr
	}
	addr := strings.TrimSpace(strings.TrimPrefix(record, DNSAddrPrefix))
	if addr == "" {
		return nil, "", ErrInvalidDNSAddr
	}

	if strings.HasPrefix(addr, "/dnsaddr/") {
		parts := strings.SplitN(addr, "/", 4)
		if len(parts) < 3 || parts[2] == "" {
			return nil, "", fmt.Errorf("%w: empty nested domain", ErrInvalidDNSAddr)
		}
		return nil, parts[2], nil
	}

	id, dial, err := addrutil.ParseFullAddr(addr)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDNSAddr, err)
	}
	d := types.NewPeerDescriptor(id, []types.Address{dial}, nil).WithMeta(types.MetaSource, "dns")
	return &d, "", nil
}

// ============================================================================
//                              域名验证
// ============================================================================

// ValidateDomain 验证域名格式
func ValidateDomain(domain string) error {
	if domain == "" {
		return ErrInvalidDomain
	}
	domain = strings.TrimSuffix(strings.TrimPrefix(domain, DNSAddrDomainPrefix), ".")

	if len(domain) > 253 {
		return fmt.Errorf("%w: domain too long", ErrInvalidDomain)
	}
	if _, ok := mdns.IsDomainName(domain); !ok {
		return fmt.Errorf("%w: %q", ErrInvalidDomain, domain)
	}
	for _, label := range strings.Split(domain, ".") {
		if len(label) == 0 {
			return fmt.Errorf("%w: empty label", ErrInvalidDomain)
		}
		if !isAlphaNum(label[0]) {
			return fmt.Errorf("%w: label must start with alphanumeric", ErrInvalidDomain)
		}
		if label[len(label)-1] == '-' {
			return fmt.Errorf("%w: label must not end with hyphen", ErrInvalidDomain)
		}
		for _, c := range label {
			if !isAlphaNum(byte(c)) && c != '-' && c != '_' {
				return fmt.Errorf("%w: invalid character in label", ErrInvalidDomain)
			}
		}
	}
	return nil
}

func isAlphaNum(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func clonePeers(in []types.PeerDescriptor) []types.PeerDescriptor {
	out := make([]types.PeerDescriptor, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}
