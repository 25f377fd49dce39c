package bootstrap

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/internal/util/addrutil"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("discovery/bootstrap")

// SeedMethodName 回退链第一步（种子节点）的名称
const SeedMethodName = "seeds"

// Engine 引导与推荐引擎
type Engine struct {
	cfg       Config
	transport interfaces.Transport
	self      types.PeerID
	clk       clock.Clock
	store     *seedStore
	methods   []interfaces.FallbackMethod

	mu         sync.RWMutex
	seeds      map[types.PeerID]*types.BootstrapNodeRecord
	seedOrder  []types.PeerID
	peers      *lru.Cache[types.PeerID, *history]
	profile    types.LocalProfile
	reputation ReputationFunc
	lastMethod string
	closed     bool

	fallbackRuns atomic.Int64
	exhaustRuns  atomic.Int64

	exhausted *eventbus.Topic[types.BootstrapExhaustedEvent]
	completed *eventbus.Topic[types.FallbackCompletedEvent]
}

var (
	_ interfaces.CandidateSource = (*Engine)(nil)
	_ interfaces.FallbackTrigger = (*Engine)(nil)
)

// Option 引擎选项
type Option func(*Engine)

// WithClock 设置时钟（测试用 mock）
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clk = clk
		}
	}
}

// WithStorage 设置持久化引擎
func WithStorage(eng interfaces.Engine) Option {
	return func(e *Engine) {
		e.store = newSeedStore(eng)
	}
}

// WithReputation 设置外部信誉来源
func WithReputation(fn ReputationFunc) Option {
	return func(e *Engine) {
		if fn != nil {
			e.reputation = fn
		}
	}
}

// WithFallbackMethods 追加回退方法
func WithFallbackMethods(methods ...interfaces.FallbackMethod) Option {
	return func(e *Engine) {
		for _, m := range methods {
			if m != nil {
				e.methods = append(e.methods, m)
			}
		}
	}
}

// NewEngine 创建引导引擎
//
// 种子地址解析失败时返回包装 ErrInvalidSeed 的错误；与本节点相同的种子被忽略。
func NewEngine(cfg Config, tr interfaces.Transport, opts ...Option) (*Engine, error) {
	if tr == nil {
		return nil, fmt.Errorf("bootstrap: transport cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid config: %w", err)
	}
	peers, err := lru.New[types.PeerID, *history](cfg.MaxTrackedPeers)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:        cfg,
		transport:  tr,
		self:       tr.LocalPeer(),
		clk:        clock.New(),
		seeds:      make(map[types.PeerID]*types.BootstrapNodeRecord),
		peers:      peers,
		profile:    cfg.Profile,
		reputation: func(types.PeerID) float64 { return DefaultReputation },
		exhausted:  eventbus.NewTopic[types.BootstrapExhaustedEvent]("bootstrap.exhausted"),
		completed:  eventbus.NewTopic[types.FallbackCompletedEvent]("bootstrap.fallback_completed"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.sortMethods()

	for i, s := range cfg.Seeds {
		id, addr, err := addrutil.ParseSeed(s)
		if err != nil {
			return nil, &BootstrapError{Op: "parse_seed", Err: fmt.Errorf("%w: nodes[%d] %q: %v", ErrInvalidSeed, i, s, err)}
		}
		if id == e.self {
			logger.Debug("忽略指向本节点的种子", "index", i)
			continue
		}
		if _, dup := e.seeds[id]; dup {
			logger.Debug("忽略重复的种子", "peer", log.TruncateID(string(id), 8))
			continue
		}
		e.seeds[id] = &types.BootstrapNodeRecord{ID: id, Address: addr, Reliability: InitialReliability}
		e.seedOrder = append(e.seedOrder, id)
	}
	logger.Debug("引导引擎已创建", "seeds", len(e.seedOrder), "fallbackMethods", len(e.methods))
	return e, nil
}

// sortMethods 按 Priority 升序排列回退方法，同优先级保持注入顺序
func (e *Engine) sortMethods() {
	sort.SliceStable(e.methods, func(i, j int) bool {
		return e.methods[i].Priority() < e.methods[j].Priority()
	})
}

// AddFallbackMethod 运行时追加回退方法
func (e *Engine) AddFallbackMethod(m interfaces.FallbackMethod) {
	if m == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.methods = append(e.methods, m)
	e.sortMethods()
}

// FallbackMethods 返回回退链中的方法名（按执行顺序，含种子）
func (e *Engine) FallbackMethods() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.methods)+1)
	out = append(out, SeedMethodName)
	for _, m := range e.methods {
		out = append(out, m.Name())
	}
	return out
}

// Restore 从存储恢复种子的可靠性记录
func (e *Engine) Restore() error {
	stored, err := e.store.load()
	if err != nil {
		return fmt.Errorf("bootstrap: restore seeds: %w", err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	restored := 0
	for id, rec := range stored {
		cur, ok := e.seeds[id]
		if !ok {
			continue
		}
		cur.Reliability = clamp01(rec.Reliability)
		cur.LastSeen = rec.LastSeen
		cur.AvgResponseTimeMs = rec.AvgResponseTimeMs
		cur.Attempts = rec.Attempts
		restored++
	}
	if restored > 0 {
		logger.Info("已恢复种子记录", "count", restored)
	}
	return nil
}

// ============================================================================
//                              种子表
// ============================================================================

// Seeds 返回种子记录，按可靠性降序（相同可靠性保持配置顺序）
func (e *Engine) Seeds() []types.BootstrapNodeRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedSeedsLocked()
}

func (e *Engine) sortedSeedsLocked() []types.BootstrapNodeRecord {
	out := make([]types.BootstrapNodeRecord, 0, len(e.seedOrder))
	for _, id := range e.seedOrder {
		out = append(out, *e.seeds[id])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Reliability > out[j].Reliability })
	return out
}

// Seed 返回单个种子记录
func (e *Engine) Seed(id types.PeerID) (types.BootstrapNodeRecord, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.seeds[id]
	if !ok {
		return types.BootstrapNodeRecord{}, false
	}
	return *rec, true
}

// IsSeed 是否为种子节点
func (e *Engine) IsSeed(id types.PeerID) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.seeds[id]
	return ok
}

// ============================================================================
//                              交互记录
// ============================================================================

// Observe 记住节点描述，用于之后的推荐；不产生交互记录
func (e *Engine) Observe(desc types.PeerDescriptor) {
	if desc.ID.IsEmpty() || desc.ID == e.self {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok := e.peers.Peek(desc.ID); ok {
		h.desc = mergeDescriptor(h.desc, desc)
		return
	}
	e.peers.Add(desc.ID, newHistory(desc.Clone(), e.cfg.HistorySize))
}

// RecordInteraction 记录一次交互
//
// 种子节点同时更新可靠性与平均响应时间，并写入存储。
func (e *Engine) RecordInteraction(id types.PeerID, kind types.InteractionKind, success bool, meta types.InteractionMeta) {
	if id.IsEmpty() || id == e.self {
		return
	}
	now := e.clk.Now()
	rec := types.PeerInteractionRecord{
		Timestamp:   now,
		Kind:        kind,
		Success:     success,
		LatencyMs:   meta.LatencyMs,
		ErrorReason: meta.ErrorReason,
		DataSize:    meta.DataSize,
	}

	e.mu.Lock()
	h, ok := e.peers.Get(id)
	if !ok {
		desc := types.PeerDescriptor{ID: id}
		if s, isSeed := e.seeds[id]; isSeed {
			desc = s.Descriptor()
		}
		h = newHistory(desc, e.cfg.HistorySize)
		e.peers.Add(id, h)
	}
	h.add(rec)

	var updated *types.BootstrapNodeRecord
	if s, isSeed := e.seeds[id]; isSeed {
		s.Reliability = UpdateReliability(s.Reliability, success)
		s.AvgResponseTimeMs = UpdateResponseTime(s.AvgResponseTimeMs, meta.LatencyMs)
		s.Attempts++
		if success {
			s.LastSeen = now
		}
		cp := *s
		updated = &cp
	}
	e.mu.Unlock()

	if updated != nil {
		if err := e.store.save(*updated); err != nil {
			logger.Warn("保存种子记录失败", "peer", log.TruncateID(string(id), 8), "error", err)
		}
	}
}

// History 返回节点的交互记录（旧 → 新）
func (e *Engine) History(id types.PeerID) []types.PeerInteractionRecord {
	e.mu.RLock()
	defer e.mu.RUnlock()
	h, ok := e.peers.Peek(id)
	if !ok {
		return nil
	}
	return h.snapshot()
}

// TrackedPeers 保留交互历史的节点数
func (e *Engine) TrackedPeers() int {
	return e.peers.Len()
}

// SetReputation 替换信誉来源
func (e *Engine) SetReputation(fn ReputationFunc) {
	if fn == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reputation = fn
}

// SetProfile 替换本节点的位置与兴趣
func (e *Engine) SetProfile(p types.LocalProfile) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.profile = types.LocalProfile{Location: p.Location, Interests: types.NormalizeInterests(p.Interests)}
}

// ============================================================================
//                              事件与统计
// ============================================================================

// ExhaustedEvents 回退链耗尽事件
func (e *Engine) ExhaustedEvents() *eventbus.Topic[types.BootstrapExhaustedEvent] {
	return e.exhausted
}

// FallbackEvents 回退链完成事件
func (e *Engine) FallbackEvents() *eventbus.Topic[types.FallbackCompletedEvent] {
	return e.completed
}

// Stats 引擎统计
type Stats struct {
	Seeds          int
	TrackedPeers   int
	FallbackRuns   int64
	ExhaustedRuns  int64
	LastMethod     string
	AvgReliability float64
}

// Stats 返回引擎统计
func (e *Engine) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()
	st := Stats{
		Seeds:         len(e.seedOrder),
		TrackedPeers:  e.peers.Len(),
		FallbackRuns:  e.fallbackRuns.Load(),
		ExhaustedRuns: e.exhaustRuns.Load(),
		LastMethod:    e.lastMethod,
	}
	for _, id := range e.seedOrder {
		st.AvgReliability += e.seeds[id].Reliability
	}
	if st.Seeds > 0 {
		st.AvgReliability /= float64(st.Seeds)
	}
	return st
}

// Close 写入所有种子记录并关闭事件主题，多次调用安全
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	seeds := e.sortedSeedsLocked()
	e.mu.Unlock()

	var errs error
	for _, rec := range seeds {
		errs = multierr.Append(errs, e.store.save(rec))
	}
	e.exhausted.Close()
	e.completed.Close()
	return errs
}

func (e *Engine) isClosed() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.closed
}
