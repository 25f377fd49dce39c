package dns

import (
	"context"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("discovery/dns")

// MethodName 回退方式名
const MethodName = "dns"

// Priority 在回退链中的顺序
const Priority = 10

// ============================================================================
//                              Discoverer 实现
// ============================================================================

// Discoverer DNS 种子发现器
type Discoverer struct {
	resolver *Resolver

	mu      sync.RWMutex
	domains []string
	counts  map[string]int
}

var _ interfaces.FallbackMethod = (*Discoverer)(nil)

// NewDiscoverer 创建 DNS 发现器
func NewDiscoverer(cfg Config) *Discoverer {
	return &Discoverer{
		resolver: NewResolver(cfg),
		domains:  append([]string(nil), cfg.Domains...),
		counts:   make(map[string]int),
	}
}

// Name 实现 FallbackMethod
func (d *Discoverer) Name() string { return MethodName }

// Priority 实现 FallbackMethod
func (d *Discoverer) Priority() int { return Priority }

// Discover 解析所有配置的域名
//
// 单个域名失败不影响其他域名；只有全部失败时返回合并的错误。
func (d *Discoverer) Discover(ctx context.Context) ([]types.PeerDescriptor, error) {
	domains := d.Domains()
	if len(domains) == 0 {
		return nil, ErrNoDomains
	}

	var (
		out    []types.PeerDescriptor
		errs   error
		failed int
	)
	seen := make(map[types.PeerID]bool)
	for _, domain := range domains {
		if ctx.Err() != nil {
			errs = multierr.Append(errs, ctx.Err())
			failed++
			break
		}
		peers, err := d.resolver.Resolve(ctx, domain)
		if err != nil {
			logger.Debug("DNS 域名解析失败", "domain", domain, "error", err)
			errs = multierr.Append(errs, err)
			failed++
			continue
		}
		d.setCount(domain, len(peers))
		for _, p := range peers {
			if !seen[p.ID] {
				seen[p.ID] = true
				out = append(out, p)
			}
		}
	}

	if failed == len(domains) {
		return nil, errs
	}
	logger.Debug("DNS 发现完成", "domains", len(domains), "peers", len(out))
	return out, nil
}

// Resolve 解析单个域名
func (d *Discoverer) Resolve(ctx context.Context, domain string) ([]types.PeerDescriptor, error) {
	return d.resolver.Resolve(ctx, domain)
}

// ============================================================================
//                              域名管理
// ============================================================================

// Domains 返回配置的域名列表
func (d *Discoverer) Domains() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.domains...)
}

// AddDomain 动态添加域名
func (d *Discoverer) AddDomain(domain string) error {
	if err := ValidateDomain(domain); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, existing := range d.domains {
		if existing == domain {
			return nil
		}
	}
	d.domains = append(d.domains, domain)
	return nil
}

// RemoveDomain 移除域名
func (d *Discoverer) RemoveDomain(domain string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	kept := d.domains[:0]
	for _, existing := range d.domains {
		if existing != domain {
			kept = append(kept, existing)
		}
	}
	d.domains = kept
	delete(d.counts, domain)
}

// Reset 清除缓存，网络变化后新的 DNS 服务器可能给出不同结果
func (d *Discoverer) Reset() {
	d.resolver.ClearCache()
	d.mu.Lock()
	d.counts = make(map[string]int)
	d.mu.Unlock()
}

func (d *Discoverer) setCount(domain string, n int) {
	d.mu.Lock()
	d.counts[domain] = n
	d.mu.Unlock()
}

// ============================================================================
//                              统计
// ============================================================================

// Stats 统计信息
type Stats struct {
	TotalDomains int
	TotalPeers   int
	DomainStats  map[string]int
}

// Stats 返回统计信息
func (d *Discoverer) Stats() Stats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	st := Stats{TotalDomains: len(d.domains), DomainStats: make(map[string]int, len(d.counts))}
	for domain, n := range d.counts {
		st.DomainStats[domain] = n
		st.TotalPeers += n
	}
	return st
}
