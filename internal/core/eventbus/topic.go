package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dep2p/meshcore/pkg/lib/log"
)

var logger = log.Logger("core/eventbus")

// ErrClosed 主题已关闭
var ErrClosed = errors.New("eventbus: topic closed")

// ============================================================================
//                              Topic
// ============================================================================

// Topic 类型化事件主题
type Topic[T any] struct {
	name string

	mu     sync.Mutex
	sinks  []*Subscription[T]
	closed bool

	stateful bool
	last     *T

	dropCount atomic.Int64
	emitted   atomic.Int64
}

// NewTopic 创建事件主题
func NewTopic[T any](name string, opts ...TopicOpt) *Topic[T] {
	var s topicSettings
	for _, opt := range opts {
		opt(&s)
	}
	return &Topic[T]{name: name, stateful: s.stateful}
}

// Name 返回主题名
func (t *Topic[T]) Name() string { return t.name }

// Subscribe 订阅事件
func (t *Topic[T]) Subscribe(opts ...SubscriptionOpt) (*Subscription[T], error) {
	s := subscriptionSettings{buffer: defaultBufSize}
	for _, opt := range opts {
		opt(&s)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, ErrClosed
	}

	sub := &Subscription[T]{topic: t, out: make(chan T, s.buffer)}
	t.sinks = append(t.sinks, sub)

	if t.stateful && t.last != nil {
		sub.out <- *t.last
	}
	return sub, nil
}

// Handle 以回调形式订阅
//
// 回调在独立 goroutine 中按顺序执行；返回的函数取消订阅。
// 主题已关闭时返回空操作的取消函数。
func (t *Topic[T]) Handle(fn func(T), opts ...SubscriptionOpt) (cancel func()) {
	sub, err := t.Subscribe(opts...)
	if err != nil {
		return func() {}
	}
	go func() {
		for ev := range sub.out {
			t.invoke(fn, ev)
		}
	}()
	return func() { _ = sub.Close() }
}

func (t *Topic[T]) invoke(fn func(T), ev T) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("事件回调 panic", "topic", t.name, "panic", r)
		}
	}()
	fn(ev)
}

// Emit 发射事件，返回成功投递的订阅数
func (t *Topic[T]) Emit(ev T) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0
	}
	t.emitted.Add(1)
	if t.stateful {
		v := ev
		t.last = &v
	}

	delivered := 0
	for _, sub := range t.sinks {
		select {
		case sub.out <- ev:
			delivered++
		default:
			dropped := t.dropCount.Add(1)
			// 每丢弃 100 个事件警告一次
			if dropped%100 == 1 {
				logger.Warn("慢消费者检测",
					"topic", t.name,
					"dropped", dropped,
					"reason", "subscriber buffer full")
			}
		}
	}
	return delivered
}

// Subscribers 当前订阅数
func (t *Topic[T]) Subscribers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sinks)
}

// Dropped 丢弃事件计数
func (t *Topic[T]) Dropped() int64 { return t.dropCount.Load() }

// Emitted 已发射事件计数
func (t *Topic[T]) Emitted() int64 { return t.emitted.Load() }

// Close 关闭主题及其所有订阅
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for _, sub := range t.sinks {
		sub.closeOnce.Do(func() { close(sub.out) })
	}
	t.sinks = nil
	t.last = nil
}

func (t *Topic[T]) remove(sub *Subscription[T]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.sinks {
		if s == sub {
			t.sinks = append(t.sinks[:i], t.sinks[i+1:]...)
			break
		}
	}
	sub.closeOnce.Do(func() { close(sub.out) })
}
