// Package eventbus 实现组件级类型化事件主题
//
// 每个组件持有自己的 Topic，不存在全局总线：
//
//	type Manager struct {
//	    unhealthy *eventbus.Topic[types.PeerUnhealthyEvent]
//	}
//
//	sub, _ := m.unhealthy.Subscribe(eventbus.BufSize(32))
//	defer sub.Close()
//	for ev := range sub.Out() { ... }
//
//	// 回调形式，返回取消函数
//	cancel := m.unhealthy.Handle(func(ev types.PeerUnhealthyEvent) { ... })
//	defer cancel()
//
// # 投递语义
//
//   - 单个订阅按发射顺序接收事件
//   - Emit 不阻塞：订阅缓冲区满时丢弃并计数
//   - Topic 关闭后所有订阅的通道被关闭，后续 Emit 为空操作
//   - 回调中的 panic 被恢复并记录，不影响后续事件
package eventbus
