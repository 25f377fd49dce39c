package meshcore

import (
	"context"

	"github.com/dep2p/meshcore/internal/core/eventbus"
	"github.com/dep2p/meshcore/pkg/types"
)

// subscriberBuffer 节点事件订阅的缓冲区
const subscriberBuffer = 64

// ════════════════════════════════════════════════════════════════════════════
//                              事件订阅
// ════════════════════════════════════════════════════════════════════════════

// OnPeerConnected 订阅节点连接事件
//
// 回调在独立 goroutine 中按事件顺序执行；返回的函数取消订阅。
// 订阅可以早于 Initialize，销毁后返回空操作的取消函数。
func (n *Node) OnPeerConnected(fn func(types.PeerConnectedEvent)) (cancel func()) {
	return n.connected.Handle(fn, eventbus.BufSize(subscriberBuffer))
}

// OnPeerDisconnected 订阅节点断开事件
func (n *Node) OnPeerDisconnected(fn func(types.PeerDisconnectedEvent)) (cancel func()) {
	return n.disconnected.Handle(fn, eventbus.BufSize(subscriberBuffer))
}

// OnNetworkIssuesDetected 订阅问题检测事件
//
// 问题集合出现或变化时触发；新订阅者立即收到最近一次的问题集合。
func (n *Node) OnNetworkIssuesDetected(fn func(types.IssuesDetectedEvent)) (cancel func()) {
	return n.issues.Handle(fn, eventbus.BufSize(subscriberBuffer))
}

// OnNetworkDiagnosticsUpdate 订阅诊断快照刷新事件
//
// 新订阅者立即收到最近一次的快照。
func (n *Node) OnNetworkDiagnosticsUpdate(fn func(types.DiagnosticsUpdatedEvent)) (cancel func()) {
	return n.updates.Handle(fn, eventbus.BufSize(subscriberBuffer))
}

// OnPartition 订阅网络分区事件，每次分区只触发一次，直到恢复
func (n *Node) OnPartition(fn func(types.PartitionDetectedEvent)) (cancel func()) {
	return n.partitions.Handle(fn, eventbus.BufSize(subscriberBuffer))
}

// ════════════════════════════════════════════════════════════════════════════
//                              组件事件转发
// ════════════════════════════════════════════════════════════════════════════

// registerRelays 把组件事件转发到节点主题，并把引导结果同步给诊断
func (n *Node) registerRelays(sys *subsystems) []func() {
	diag := sys.diagnostics
	return []func(){
		diag.IssuesEvents().Handle(func(ev types.IssuesDetectedEvent) {
			n.issues.Emit(ev)
		}),
		diag.UpdatedEvents().Handle(func(ev types.DiagnosticsUpdatedEvent) {
			n.updates.Emit(ev)
		}),
		sys.recovery.PartitionEvents().Handle(func(ev types.PartitionDetectedEvent) {
			n.partitions.Emit(ev)
		}),
		sys.bootstrap.ExhaustedEvents().Handle(func(ev types.BootstrapExhaustedEvent) {
			diag.MarkBootstrapExhausted(ev.Cause)
		}),
		sys.bootstrap.FallbackEvents().Handle(func(types.FallbackCompletedEvent) {
			diag.ClearBootstrapExhausted()
		}),
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              事件泵
// ════════════════════════════════════════════════════════════════════════════

// startPump 订阅传输事件并启动事件泵，调用方持有 n.mu
//
// 单个 goroutine 按到达顺序处理事件：连接事件处理完成（健康记录已建立）
// 之后才会处理下一个事件。
func (n *Node) startPump(sys *subsystems) {
	events, unsubscribe := sys.transport.SubscribeEvents()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	n.pumpCancel = cancel
	n.pumpDone = done

	go func() {
		defer close(done)
		defer unsubscribe()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					logger.Debug("传输事件流已关闭")
					return
				}
				n.dispatch(sys, ev)
			}
		}
	}()
}

// stopPump 停止事件泵并等待其退出，调用方持有 n.mu
func (n *Node) stopPump() {
	if n.pumpCancel == nil {
		return
	}
	n.pumpCancel()
	<-n.pumpDone
	n.pumpCancel = nil
	n.pumpDone = nil
}

func (n *Node) dispatch(sys *subsystems, ev types.ConnEvent) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("处理传输事件 panic", "event", ev.Kind, "peer", ev.PeerID.ShortString(), "panic", r)
		}
	}()

	switch ev.Kind {
	case types.ConnEventConnected:
		sys.recovery.OnPeerConnected(ev)
		sys.bootstrap.Observe(types.NewPeerDescriptor(ev.PeerID, ev.Addrs, nil))
		sys.diagnostics.ClearBootstrapExhausted()
		n.connected.Emit(types.PeerConnectedEvent{
			PeerID:    ev.PeerID,
			Addrs:     ev.Addrs,
			Direction: ev.Direction,
			Time:      ev.Time,
		})
	case types.ConnEventDisconnected:
		sys.recovery.OnPeerDisconnected(ev.PeerID)
		n.disconnected.Emit(types.PeerDisconnectedEvent{
			PeerID: ev.PeerID,
			Time:   ev.Time,
		})
	}
}
