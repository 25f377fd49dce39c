package mdns

import (
	"context"
	"fmt"
	"sync"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	lpmdns "github.com/libp2p/go-libp2p/p2p/discovery/mdns"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("discovery/mdns")

// MethodName 回退方式名
const MethodName = "mdns"

// Priority 在回退链中的顺序
const Priority = 30

// MDNS 局域网发现
type MDNS struct {
	cfg   Config
	host  host.Host
	cache *peerCache

	mu      sync.Mutex
	service lpmdns.Service
	started bool
	closed  bool
}

var _ interfaces.FallbackMethod = (*MDNS)(nil)

// New 创建 MDNS
func New(h host.Host, cfg Config) (*MDNS, error) {
	if h == nil {
		return nil, ErrNilHost
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return &MDNS{
		cfg:   cfg,
		host:  h,
		cache: newPeerCache(h.ID(), cfg),
	}, nil
}

// newWithSelf 创建不绑定 host 的实例，只用于收集公告
func newWithSelf(self peer.ID, cfg Config) *MDNS {
	return &MDNS{cfg: cfg, cache: newPeerCache(self, cfg)}
}

// Name 实现 FallbackMethod
func (m *MDNS) Name() string { return MethodName }

// Priority 实现 FallbackMethod
func (m *MDNS) Priority() int { return Priority }

// Start 启动 mDNS 公告与监听
func (m *MDNS) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrAlreadyClosed
	}
	if m.started {
		return ErrAlreadyStarted
	}
	if m.host == nil {
		return ErrNilHost
	}

	svc := lpmdns.NewMdnsService(m.host, m.cfg.ServiceTag, m.cache)
	if err := svc.Start(); err != nil {
		return fmt.Errorf("mdns: start service: %w", err)
	}
	m.service = svc
	m.started = true
	logger.Info("mDNS 已启动", "service", m.cfg.ServiceTag)
	return nil
}

// Discover 实现 FallbackMethod
//
// 缓存非空时立即返回；否则等待第一个公告或 ctx 截止（返回空列表）。
func (m *MDNS) Discover(ctx context.Context) ([]types.PeerDescriptor, error) {
	m.mu.Lock()
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return nil, ErrAlreadyClosed
	}

	for {
		wait := m.cache.changed()
		if peers := m.cache.snapshot(); len(peers) > 0 {
			return peers, nil
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return nil, nil
		}
	}
}

// Peers 返回缓存中的局域网节点
func (m *MDNS) Peers() []types.PeerDescriptor {
	return m.cache.snapshot()
}

// Close 停止服务
func (m *MDNS) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.cache.peers.Purge()
	if m.service != nil {
		return m.service.Close()
	}
	return nil
}
