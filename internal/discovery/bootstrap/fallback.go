package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

// errCandidatesShort 推荐结果不足时触发回退链的原因
var errCandidatesShort = errors.New("bootstrap: not enough recommended candidates")

// step 回退链中的一步
type step struct {
	name string
	run  func(ctx context.Context) ([]types.PeerDescriptor, error)
}

// ============================================================================
//                              回退链
// ============================================================================

// RunFallback 按顺序执行回退链，返回第一个非空结果及其方法名
//
// 全部为空时返回包装 ErrBootstrapExhausted 的错误并发出 BootstrapExhaustedEvent。
func (e *Engine) RunFallback(ctx context.Context) ([]types.PeerDescriptor, string, error) {
	return e.runChain(ctx, nil)
}

func (e *Engine) runChain(ctx context.Context, cause error) ([]types.PeerDescriptor, string, error) {
	if e.isClosed() {
		return nil, "", ErrAlreadyClosed
	}
	e.fallbackRuns.Add(1)

	e.mu.RLock()
	steps := make([]step, 0, len(e.methods)+1)
	steps = append(steps, step{name: SeedMethodName, run: e.DialSeeds})
	for _, m := range e.methods {
		steps = append(steps, step{name: m.Name(), run: m.Discover})
	}
	e.mu.RUnlock()

	var (
		tried []string
		errs  error
	)
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, err)
			break
		}
		tried = append(tried, st.name)

		peers, err := e.runStep(ctx, st)
		if err != nil {
			logger.Debug("回退方法失败", "method", st.name, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", st.name, err))
		}
		peers = e.filterPeers(peers)
		if len(peers) == 0 {
			continue
		}

		for _, p := range peers {
			e.Observe(p)
		}
		e.mu.Lock()
		e.lastMethod = st.name
		e.mu.Unlock()
		e.completed.Emit(types.FallbackCompletedEvent{Method: st.name, Peers: len(peers), Time: e.clk.Now()})
		logger.Info("回退链产出节点", "method", st.name, "peers", len(peers))
		return peers, st.name, nil
	}

	e.exhaustRuns.Add(1)
	reason := "discovery failed"
	if cause != nil {
		reason = cause.Error()
	}
	e.exhausted.Emit(types.BootstrapExhaustedEvent{Cause: reason, Methods: tried, Time: e.clk.Now()})
	logger.Warn("回退链已耗尽", "methods", tried, "cause", reason)
	if errs != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrBootstrapExhausted, errs)
	}
	return nil, "", ErrBootstrapExhausted
}

// runStep 在 MethodTimeout 内执行一步，方法 panic 视为失败
func (e *Engine) runStep(ctx context.Context, st step) (peers []types.PeerDescriptor, err error) {
	mctx, cancel := context.WithTimeout(ctx, e.cfg.MethodTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("回退方法 panic", "method", st.name, "panic", r)
			peers, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	return st.run(mctx)
}

// filterPeers 去掉本节点、空 ID 和重复项，保持顺序
func (e *Engine) filterPeers(in []types.PeerDescriptor) []types.PeerDescriptor {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[types.PeerID]struct{}, len(in))
	out := make([]types.PeerDescriptor, 0, len(in))
	for _, p := range in {
		if p.ID.IsEmpty() || p.ID == e.self {
			continue
		}
		if _, dup := seen[p.ID]; dup {
			continue
		}
		seen[p.ID] = struct{}{}
		out = append(out, p.Clone())
	}
	return out
}

// HandleDiscoveryFailure 主题发现失败时的入口
//
// 从不返回错误也不会 panic；回退链没有产出时返回 nil。
func (e *Engine) HandleDiscoveryFailure(ctx context.Context, cause error) (peers []types.PeerDescriptor) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("处理发现失败时 panic", "panic", r)
			peers = nil
		}
	}()

	logger.Info("主题发现失败，进入回退链", "cause", cause)
	peers, _, err := e.runChain(ctx, cause)
	if err != nil {
		logger.Debug("回退链未产出节点", "error", err)
		return nil
	}
	return peers
}

// ============================================================================
//                              CandidateSource
// ============================================================================

// Name 来源名称
func (e *Engine) Name() string { return "bootstrap" }

// FindCandidates 替换候选：先取推荐结果，不足时执行回退链
func (e *Engine) FindCandidates(ctx context.Context, want int, exclude func(types.PeerID) bool) ([]types.PeerDescriptor, error) {
	if want <= 0 {
		return nil, nil
	}
	skip := func(id types.PeerID) bool {
		return id == e.self || (exclude != nil && exclude(id))
	}

	out := make([]types.PeerDescriptor, 0, want)
	seen := make(map[types.PeerID]struct{}, want)
	add := func(p types.PeerDescriptor) {
		if len(out) >= want || skip(p.ID) || len(p.Addrs) == 0 {
			return
		}
		if _, dup := seen[p.ID]; dup {
			return
		}
		seen[p.ID] = struct{}{}
		out = append(out, p)
	}

	for _, rec := range e.Recommend(RecommendOptions{Exclude: skip, RequireAddrs: true}) {
		add(rec.Descriptor)
	}
	if len(out) >= want {
		return out, nil
	}

	peers, method, err := e.runChain(ctx, errCandidatesShort)
	for _, p := range peers {
		add(p)
	}
	if len(out) == 0 && err != nil {
		return nil, err
	}
	logger.Debug("引导候选", "count", len(out), "want", want, "method", method,
		"first", firstID(out))
	return out, nil
}

func firstID(peers []types.PeerDescriptor) string {
	if len(peers) == 0 {
		return ""
	}
	return log.TruncateID(string(peers[0].ID), 8)
}

// methodNames 返回方法名列表
func methodNames(ms []interfaces.FallbackMethod) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name())
	}
	return out
}
