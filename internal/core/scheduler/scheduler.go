package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/dep2p/meshcore/pkg/lib/log"
)

var logger = log.Logger("core/scheduler")

// Task 调度任务
//
// ctx 在任务被取消或调度器停止时取消。
type Task func(ctx context.Context)

// TaskOpt 任务选项
type TaskOpt func(*taskSettings)

type taskSettings struct {
	immediate bool
	timeout   time.Duration
}

// RunImmediately 周期任务注册后立即执行一次
func RunImmediately() TaskOpt {
	return func(s *taskSettings) { s.immediate = true }
}

// WithTimeout 每次执行的超时
func WithTimeout(d time.Duration) TaskOpt {
	return func(s *taskSettings) { s.timeout = d }
}

// ============================================================================
//                              Scheduler
// ============================================================================

// Scheduler 协作式调度器
type Scheduler struct {
	clk clock.Clock

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	tokens  map[uint64]*Token
	nextID  uint64
	stopped bool

	wg   sync.WaitGroup
	runs atomic.Int64
}

// New 创建调度器
func New(clk clock.Clock) *Scheduler {
	if clk == nil {
		clk = clock.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clk:    clk,
		ctx:    ctx,
		cancel: cancel,
		tokens: make(map[uint64]*Token),
	}
}

// Clock 返回调度器使用的时钟
func (s *Scheduler) Clock() clock.Clock { return s.clk }

// Every 注册周期任务
func (s *Scheduler) Every(name string, interval time.Duration, task Task, opts ...TaskOpt) (*Token, error) {
	if interval <= 0 {
		return nil, ErrInvalidInterval
	}
	var set taskSettings
	for _, opt := range opts {
		opt(&set)
	}

	tok, err := s.register(name)
	if err != nil {
		return nil, err
	}
	ticker := s.clk.Ticker(interval)

	go func() {
		defer s.finish(tok)
		defer ticker.Stop()

		if set.immediate {
			s.run(tok, task, set.timeout)
		}
		for {
			select {
			case <-tok.ctx.Done():
				return
			case <-ticker.C:
				if tok.ctx.Err() != nil {
					return
				}
				s.run(tok, task, set.timeout)
			}
		}
	}()
	return tok, nil
}

// After 注册一次性延迟任务
func (s *Scheduler) After(name string, delay time.Duration, task Task, opts ...TaskOpt) (*Token, error) {
	var set taskSettings
	for _, opt := range opts {
		opt(&set)
	}

	tok, err := s.register(name)
	if err != nil {
		return nil, err
	}
	if delay < 0 {
		delay = 0
	}
	timer := s.clk.Timer(delay)

	go func() {
		defer s.finish(tok)
		defer timer.Stop()

		select {
		case <-tok.ctx.Done():
			return
		case <-timer.C:
			if tok.ctx.Err() != nil {
				return
			}
			s.run(tok, task, set.timeout)
		}
	}()
	return tok, nil
}

// Active 活跃任务数
func (s *Scheduler) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tokens)
}

// Runs 任务累计执行次数
func (s *Scheduler) Runs() int64 { return s.runs.Load() }

// Stop 取消所有任务并等待其退出
//
// 重复调用安全；Stop 之后注册新任务返回 ErrStopped。
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Debug("调度器已停止", "runs", s.runs.Load())
}

func (s *Scheduler) register(name string) (*Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	s.nextID++
	ctx, cancel := context.WithCancel(s.ctx)
	tok := &Token{
		id:     s.nextID,
		name:   name,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.tokens[tok.id] = tok
	s.wg.Add(1)
	return tok, nil
}

func (s *Scheduler) finish(tok *Token) {
	tok.cancel()
	s.mu.Lock()
	delete(s.tokens, tok.id)
	s.mu.Unlock()
	close(tok.done)
	s.wg.Done()
}

func (s *Scheduler) run(tok *Token, task Task, timeout time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("调度任务 panic", "task", tok.name, "panic", r)
		}
	}()

	ctx := tok.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	s.runs.Add(1)
	tok.runs.Add(1)
	task(ctx)
}

// ============================================================================
//                              Token
// ============================================================================

// Token 任务取消令牌
type Token struct {
	id     uint64
	name   string
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	runs   atomic.Int64
}

// Name 任务名
func (t *Token) Name() string { return t.name }

// Cancel 取消任务，不等待正在执行的任务返回
func (t *Token) Cancel() {
	if t != nil {
		t.cancel()
	}
}

// Done 任务 goroutine 退出后关闭
func (t *Token) Done() <-chan struct{} { return t.done }

// Runs 执行次数
func (t *Token) Runs() int64 { return t.runs.Load() }

// Cancelled 是否已取消
func (t *Token) Cancelled() bool { return t.ctx.Err() != nil }
