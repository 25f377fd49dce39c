package eventbus

// defaultBufSize 默认订阅缓冲区大小
const defaultBufSize = 16

type subscriptionSettings struct {
	buffer int
}

type topicSettings struct {
	stateful bool
}

// SubscriptionOpt 订阅选项
type SubscriptionOpt func(*subscriptionSettings)

// TopicOpt 主题选项
type TopicOpt func(*topicSettings)

// BufSize 设置订阅缓冲区大小
func BufSize(size int) SubscriptionOpt {
	return func(s *subscriptionSettings) {
		if size > 0 {
			s.buffer = size
		}
	}
}

// Stateful 有状态主题：新订阅立即收到最后一个事件
func Stateful() TopicOpt {
	return func(s *topicSettings) {
		s.stateful = true
	}
}
