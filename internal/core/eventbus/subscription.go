package eventbus

import "sync"

// Subscription 订阅
type Subscription[T any] struct {
	topic     *Topic[T]
	out       chan T
	closeOnce sync.Once
}

// Out 返回事件通道，订阅关闭或主题关闭后通道被关闭
func (s *Subscription[T]) Out() <-chan T {
	return s.out
}

// Close 取消订阅
//
// 并发安全，可以多次调用。移除与关闭在主题锁内完成，
// 因此不会与 Emit 竞争已关闭的通道。
func (s *Subscription[T]) Close() error {
	s.topic.remove(s)
	return nil
}
