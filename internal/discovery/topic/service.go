package topic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/internal/core/scheduler"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("discovery/topic")

// seenCacheSize 已发现节点集合的上限，用于只对新节点发事件
const seenCacheSize = 4096

// lookupParallelism 多主题查询的并发数
const lookupParallelism = 4

// membership 已加入主题的状态
type membership struct {
	announced bool
	joinedAt  time.Time
}

// Service 主题发现服务
type Service struct {
	cfg   Config
	dht   interfaces.DHT
	self  types.PeerID
	sched *scheduler.Scheduler

	mu      sync.Mutex
	joined  map[types.TopicID]*membership
	lastErr error
	refresh *scheduler.Token
	closed  bool

	cache *expirable.LRU[types.TopicID, []types.PeerDescriptor]
	seen  *lru.Cache[types.PeerID, struct{}]

	discovered *eventbus.Topic[types.PeerDiscoveredEvent]
}

var _ interfaces.CandidateSource = (*Service)(nil)

// NewService 创建发现服务
//
// dht 可以为 nil：此时所有查询返回 ErrDiscoveryUnreachable。
func NewService(cfg Config, dht interfaces.DHT, self types.PeerID, sched *scheduler.Scheduler) (*Service, error) {
	if sched == nil {
		return nil, errors.New("discovery: scheduler is required")
	}
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultNamespace
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	seen, err := lru.New[types.PeerID, struct{}](seenCacheSize)
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:        cfg,
		dht:        dht,
		self:       self,
		sched:      sched,
		joined:     make(map[types.TopicID]*membership),
		seen:       seen,
		discovered: eventbus.NewTopic[types.PeerDiscoveredEvent]("discovery.peer_discovered"),
	}
	if cfg.CacheTTL > 0 {
		s.cache = expirable.NewLRU[types.TopicID, []types.PeerDescriptor](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s, nil
}

// Name 实现 CandidateSource
func (s *Service) Name() string { return "discovery" }

// Topics 使用服务的命名空间与网格把条件映射为主题
func (s *Service) Topics(c types.SearchCriteria) []types.TopicID {
	if c.Namespace == "" {
		c.Namespace = s.cfg.Namespace
	}
	return GenerateTopics(c, s.cfg.GridDegrees)
}

// DiscoveredEvents 返回 PeerDiscoveredEvent 主题
func (s *Service) DiscoveredEvents() *eventbus.Topic[types.PeerDiscoveredEvent] {
	return s.discovered
}

// ============================================================================
//                              Join / Leave
// ============================================================================

// Join 加入主题
//
// 幂等：已公告的主题不会重复订阅。公告失败的主题仍被记住，由刷新循环重试；
// 返回的错误合并了本次所有失败。
func (s *Service) Join(ctx context.Context, topics []types.TopicID) error {
	var pending []types.TopicID

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServiceClosed
	}
	now := s.sched.Clock().Now()
	for _, t := range topics {
		m, ok := s.joined[t]
		if !ok {
			m = &membership{joinedAt: now}
			s.joined[t] = m
		}
		if !m.announced {
			pending = append(pending, t)
		}
	}
	s.mu.Unlock()

	var errs error
	for _, t := range pending {
		if err := s.announce(ctx, t); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

func (s *Service) announce(ctx context.Context, t types.TopicID) error {
	if s.dht == nil {
		return fmt.Errorf("join %s: %w", t, ErrDiscoveryUnreachable)
	}
	jctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	if err := s.dht.Join(jctx, t); err != nil {
		s.setLastErr(err)
		return fmt.Errorf("join %s: %w: %v", t, ErrDiscoveryUnreachable, err)
	}

	s.mu.Lock()
	if m, ok := s.joined[t]; ok {
		m.announced = true
	}
	s.mu.Unlock()
	logger.Debug("已加入主题", "topic", t)
	return nil
}

// Leave 离开主题，未加入的主题忽略
func (s *Service) Leave(ctx context.Context, topics []types.TopicID) error {
	var announced []types.TopicID

	s.mu.Lock()
	for _, t := range topics {
		m, ok := s.joined[t]
		if !ok {
			continue
		}
		delete(s.joined, t)
		if m.announced {
			announced = append(announced, t)
		}
		if s.cache != nil {
			s.cache.Remove(t)
		}
	}
	s.mu.Unlock()

	var errs error
	for _, t := range announced {
		if s.dht == nil {
			continue
		}
		if err := s.dht.Leave(ctx, t); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("leave %s: %w", t, err))
		}
	}
	return errs
}

// JoinedTopics 返回已加入的主题（排序）
func (s *Service) JoinedTopics() []types.TopicID {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]types.TopicID, 0, len(s.joined))
	for t := range s.joined {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ============================================================================
//                              FindPeers
// ============================================================================

type lookupResult struct {
	peers []types.PeerDescriptor
	err   error
}

// FindPeers 在 LookupTimeout 内查找主题成员
//
// 结果已去除自身并按 ID 去重；命中缓存时不访问基座。
func (s *Service) FindPeers(ctx context.Context, topic types.TopicID) ([]types.PeerDescriptor, error) {
	if s.isClosed() {
		return nil, ErrServiceClosed
	}
	if s.cache != nil {
		if peers, ok := s.cache.Get(topic); ok {
			return clonePeers(peers), nil
		}
	}
	if s.dht == nil || !s.dht.Connected() {
		err := fmt.Errorf("find peers %s: %w", topic, ErrDiscoveryUnreachable)
		s.setLastErr(err)
		return nil, err
	}

	lctx, cancel := context.WithTimeout(ctx, s.cfg.LookupTimeout)
	defer cancel()

	ch := make(chan lookupResult, 1)
	go func() {
		peers, err := s.dht.FindPeers(lctx, topic, s.cfg.LookupLimit)
		ch <- lookupResult{peers: peers, err: err}
	}()

	var res lookupResult
	select {
	case res = <-ch:
	case <-lctx.Done():
		res.err = lctx.Err()
	}

	if res.err != nil {
		err := s.classify(ctx, topic, res.err)
		s.setLastErr(err)
		return nil, err
	}

	peers := s.filter(res.peers)
	if s.cache != nil {
		s.cache.Add(topic, clonePeers(peers))
	}
	s.setLastErr(nil)
	s.notifyDiscovered(topic, peers)
	return peers, nil
}

func (s *Service) classify(parent context.Context, topic types.TopicID, err error) error {
	if perr := parent.Err(); perr != nil {
		return fmt.Errorf("find peers %s: %w", topic, perr)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("find peers %s: %w", topic, ErrDiscoveryTimeout)
	}
	return fmt.Errorf("find peers %s: %w: %v", topic, ErrDiscoveryUnreachable, err)
}

func (s *Service) filter(in []types.PeerDescriptor) []types.PeerDescriptor {
	seen := make(map[types.PeerID]struct{}, len(in))
	out := make([]types.PeerDescriptor, 0, len(in))
	for _, p := range in {
		if p.ID.IsEmpty() || p.ID == s.self {
			continue
		}
		if _, ok := seen[p.ID]; ok {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.WithMeta(types.MetaSource, "discovery"))
	}
	return out
}

func (s *Service) notifyDiscovered(topic types.TopicID, peers []types.PeerDescriptor) {
	now := s.sched.Clock().Now()
	for _, p := range peers {
		if ok, _ := s.seen.ContainsOrAdd(p.ID, struct{}{}); ok {
			continue
		}
		s.discovered.Emit(types.PeerDiscoveredEvent{Topic: topic, Peer: p.Clone(), Time: now})
	}
}

// ============================================================================
//                              组合查询
// ============================================================================

// Discover 加入条件对应的主题并查询
//
// 各主题的结果按节点 ID 去重并截断到 limit。只有当所有主题都查询失败时才返回错误，
// 错误合并了每个主题的失败原因（可用 errors.Is 判断超时/不可达）。
func (s *Service) Discover(ctx context.Context, c types.SearchCriteria, limit int) ([]types.PeerDescriptor, error) {
	topics := s.Topics(c)
	if len(topics) == 0 {
		return []types.PeerDescriptor{}, nil
	}
	if err := s.Join(ctx, topics); err != nil {
		logger.Debug("加入主题部分失败", "error", err)
	}
	return s.lookupAll(ctx, topics, limit, nil)
}

// MinPeers 主发现路径的最少结果数，低于该数量时调用方应转入引导回退链
func (s *Service) MinPeers() int { return s.cfg.MinPeers }

// FindCandidates 实现 CandidateSource：在已加入的主题中查找替换节点
func (s *Service) FindCandidates(ctx context.Context, want int, exclude func(types.PeerID) bool) ([]types.PeerDescriptor, error) {
	topics := s.JoinedTopics()
	if len(topics) == 0 || want <= 0 {
		return nil, nil
	}
	return s.lookupAll(ctx, topics, want, exclude)
}

func (s *Service) lookupAll(ctx context.Context, topics []types.TopicID, limit int, exclude func(types.PeerID) bool) ([]types.PeerDescriptor, error) {
	results := make([][]types.PeerDescriptor, len(topics))
	errs := make([]error, len(topics))

	var g errgroup.Group
	g.SetLimit(lookupParallelism)
	for i, t := range topics {
		i, t := i, t
		g.Go(func() error {
			results[i], errs[i] = s.FindPeers(ctx, t)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	var combined error
	for i := range topics {
		if errs[i] != nil {
			failed++
			combined = multierr.Append(combined, errs[i])
			continue
		}
		if exclude != nil {
			results[i] = excludePeers(results[i], exclude)
		}
	}
	if failed == len(topics) {
		return nil, combined
	}
	if combined != nil {
		logger.Debug("部分主题查询失败", "failed", failed, "total", len(topics), "error", combined)
	}
	return MergeUnique(limit, results...), nil
}

// ============================================================================
//                              刷新循环
// ============================================================================

// Start 启动刷新循环，重复调用安全
func (s *Service) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrServiceClosed
	}
	if s.refresh != nil && !s.refresh.Cancelled() {
		return nil
	}
	tok, err := s.sched.Every("discovery-refresh", s.cfg.Interval, s.refreshOnce)
	if err != nil {
		return err
	}
	s.refresh = tok
	logger.Info("发现服务已启动", "interval", s.cfg.Interval, "namespace", s.cfg.Namespace)
	return nil
}

// Stop 停止刷新循环
func (s *Service) Stop() {
	s.mu.Lock()
	tok := s.refresh
	s.refresh = nil
	s.mu.Unlock()
	tok.Cancel()
}

// RefreshNow 立即执行一次刷新
func (s *Service) RefreshNow(ctx context.Context) {
	s.refreshOnce(ctx)
}

func (s *Service) refreshOnce(ctx context.Context) {
	topics := s.JoinedTopics()
	if len(topics) == 0 {
		return
	}

	for _, t := range topics {
		if err := s.announce(ctx, t); err != nil {
			logger.Debug("重新公告主题失败", "topic", t, "error", err)
		}
	}
	if s.cache != nil {
		for _, t := range topics {
			s.cache.Remove(t)
		}
	}
	for _, t := range topics {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.FindPeers(ctx, t); err != nil {
			logger.Debug("刷新主题失败", "topic", t, "error", err)
		}
	}
}

// ============================================================================
//                              状态 / 关闭
// ============================================================================

// Status 返回发现基座状态
func (s *Service) Status() types.DHTStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := types.DHTStatus{JoinedTopics: len(s.joined)}
	if s.dht != nil && !s.closed {
		st.Connected = s.dht.Connected()
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

// Close 停止刷新、离开所有主题并关闭事件主题
func (s *Service) Close() error {
	s.Stop()
	topics := s.JoinedTopics()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.LookupTimeout)
	defer cancel()
	err := s.Leave(ctx, topics)

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	if s.cache != nil {
		s.cache.Purge()
	}
	s.seen.Purge()
	s.discovered.Close()
	return err
}

func (s *Service) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Service) setLastErr(err error) {
	s.mu.Lock()
	s.lastErr = err
	s.mu.Unlock()
}

func clonePeers(in []types.PeerDescriptor) []types.PeerDescriptor {
	out := make([]types.PeerDescriptor, len(in))
	for i, p := range in {
		out[i] = p.Clone()
	}
	return out
}

func excludePeers(in []types.PeerDescriptor, exclude func(types.PeerID) bool) []types.PeerDescriptor {
	out := in[:0:0]
	for _, p := range in {
		if !exclude(p.ID) {
			out = append(out, p)
		}
	}
	return out
}
