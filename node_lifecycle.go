package meshcore

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/types"
)

// ════════════════════════════════════════════════════════════════════════════
//                              Initialize
// ════════════════════════════════════════════════════════════════════════════

// Initialize 构建并启动所有组件
//
// 构建 Fx 应用（存储、调度器、传输、四个子系统），启动后一次性填充组件集合。
// 失败时已启动的组件会被停止，节点保持 StateCreated，可以重试。
// 已初始化时直接返回。
func (n *Node) Initialize(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateDestroyed:
		return ErrNodeDestroyed
	case StateCreated:
	default:
		return nil
	}

	logger.Info("正在初始化节点")
	sys := &subsystems{}
	app := buildFxApp(n.cfg, n.opts, sys)
	if err := app.Err(); err != nil {
		logger.Error("构建组件失败", "error", err)
		return fmt.Errorf("initialize failed: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		logger.Error("节点初始化失败", "error", err)
		stopCtx, cancel := context.WithTimeout(context.Background(), n.shutdownTimeout())
		defer cancel()
		_ = app.Stop(stopCtx)
		return fmt.Errorf("initialize failed: %w", err)
	}

	n.app = app
	n.sys = sys
	n.relays = n.registerRelays(sys)
	n.state = StateInitialized
	logger.Info("节点初始化完成", "peer", sys.transport.LocalPeer().ShortString())
	return nil
}

// ════════════════════════════════════════════════════════════════════════════
//                              Connect
// ════════════════════════════════════════════════════════════════════════════

// Connect 接入网络
//
// 启动事件泵与各子系统的周期任务，接管已有连接，然后依次拨号
// 已知节点与引导回退链（种子节点优先）的产出。引导失败只记录日志，
// 之后由诊断与恢复的周期任务继续尝试。
func (n *Node) Connect(ctx context.Context) error {
	n.mu.Lock()
	switch n.state {
	case StateCreated:
		n.mu.Unlock()
		return ErrNotInitialized
	case StateDestroyed:
		n.mu.Unlock()
		return ErrNodeDestroyed
	case StateConnected:
		n.mu.Unlock()
		return ErrAlreadyConnected
	}
	sys := n.sys

	// ════════════════════════════════════════════════════════════════════════
	// Phase 1: 事件泵
	// ════════════════════════════════════════════════════════════════════════
	n.startPump(sys)

	// ════════════════════════════════════════════════════════════════════════
	// Phase 2: 周期任务
	// ════════════════════════════════════════════════════════════════════════
	if err := startLoops(ctx, sys); err != nil {
		n.stopPump()
		stopLoops(sys)
		n.mu.Unlock()
		logger.Error("启动周期任务失败", "error", err)
		return fmt.Errorf("connect failed: %w", err)
	}

	// 接管 Connect 之前已存在的连接
	now := sys.sched.Clock().Now()
	for _, c := range sys.transport.Connections() {
		sys.recovery.OnPeerConnected(types.ConnEvent{
			Kind:      types.ConnEventConnected,
			PeerID:    c.RemotePeer(),
			Addrs:     []types.Address{c.RemoteAddr()},
			Direction: c.Direction(),
			Time:      now,
		})
	}

	n.state = StateConnected
	n.mu.Unlock()
	logger.Info("节点已接入网络", "peer", sys.transport.LocalPeer().ShortString())

	// ════════════════════════════════════════════════════════════════════════
	// Phase 3: 引导
	// ════════════════════════════════════════════════════════════════════════
	n.bootstrapPeers(ctx, sys)
	return nil
}

// bootstrapPeers 拨号已知节点与引导回退链的产出
func (n *Node) bootstrapPeers(ctx context.Context, sys *subsystems) {
	if known := knownPeers(n.cfg.KnownPeers); len(known) > 0 {
		connected := sys.recovery.ConnectPeers(ctx, known)
		logger.Info("已知节点拨号完成", "total", len(known), "connected", connected)
	}

	peers, method, err := sys.bootstrap.RunFallback(ctx)
	if err != nil {
		logger.Warn("引导未产出节点", "error", err)
		return
	}
	connected := sys.recovery.ConnectPeers(ctx, peers)
	logger.Info("引导完成", "method", method, "found", len(peers), "connected", connected)
}

// ════════════════════════════════════════════════════════════════════════════
//                              Disconnect
// ════════════════════════════════════════════════════════════════════════════

// Disconnect 断开网络
//
// 停止事件泵与所有周期任务，取消进行中的重连，关闭跟踪的连接。
// 种子可靠性与交互历史保留，之后可以再次 Connect。未连接时直接返回。
func (n *Node) Disconnect(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch n.state {
	case StateCreated:
		return ErrNotInitialized
	case StateDestroyed:
		return ErrNodeDestroyed
	case StateConnected:
	default:
		return nil
	}
	err := n.disconnectLocked(ctx)
	n.state = StateDisconnected
	return err
}

func (n *Node) disconnectLocked(ctx context.Context) error {
	sys := n.sys
	logger.Info("正在断开网络")

	n.stopPump()
	done := make(chan error, 1)
	go func() {
		stopLoops(sys)
		done <- sys.recovery.CloseConnections()
	}()

	ctx, cancel := context.WithTimeout(ctx, n.shutdownTimeout())
	defer cancel()
	select {
	case err := <-done:
		if err != nil {
			logger.Warn("关闭连接时出错", "error", err)
		}
		return err
	case <-ctx.Done():
		logger.Warn("断开网络超时", "timeout", n.shutdownTimeout())
		return fmt.Errorf("disconnect: %w", ctx.Err())
	}
}

// ════════════════════════════════════════════════════════════════════════════
//                              Destroy
// ════════════════════════════════════════════════════════════════════════════

// Destroy 销毁节点
//
// 已连接时先断开，然后停止 Fx 应用（写回种子记录、关闭存储、停止调度器），
// 取消事件转发并关闭节点事件主题。之后所有状态查询返回空快照，
// 生命周期操作返回 ErrNodeDestroyed。多次调用安全。
func (n *Node) Destroy(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == StateDestroyed {
		return nil
	}
	logger.Info("正在销毁节点")

	var errs error
	if n.state == StateConnected {
		errs = multierr.Append(errs, n.disconnectLocked(ctx))
	}
	for _, cancel := range n.relays {
		cancel()
	}
	n.relays = nil

	if n.app != nil {
		stopCtx, cancel := context.WithTimeout(ctx, n.shutdownTimeout())
		errs = multierr.Append(errs, n.app.Stop(stopCtx))
		cancel()
	}

	n.connected.Close()
	n.disconnected.Close()
	n.issues.Close()
	n.updates.Close()
	n.partitions.Close()

	n.app = nil
	n.sys = nil
	n.state = StateDestroyed
	if errs != nil {
		logger.Warn("销毁节点时出错", "error", errs)
	} else {
		logger.Info("节点已销毁")
	}
	return errs
}

// ════════════════════════════════════════════════════════════════════════════
//                              辅助
// ════════════════════════════════════════════════════════════════════════════

// startLoops 启动恢复、发现、诊断的周期任务
func startLoops(ctx context.Context, sys *subsystems) error {
	if err := sys.recovery.Start(ctx); err != nil {
		return err
	}
	if err := sys.discovery.Start(ctx); err != nil {
		return err
	}
	return sys.diagnostics.Start(ctx)
}

// stopLoops 停止所有周期任务并等待进行中的操作退出
func stopLoops(sys *subsystems) {
	sys.diagnostics.Stop()
	sys.discovery.Stop()
	sys.recovery.Stop()
}

func (n *Node) shutdownTimeout() time.Duration {
	if d := n.cfg.Node.ShutdownTimeout.Duration(); d > 0 {
		return d
	}
	return 10 * time.Second
}

// knownPeers 把配置中的已知节点转换为节点描述
func knownPeers(in []config.KnownPeer) []types.PeerDescriptor {
	out := make([]types.PeerDescriptor, 0, len(in))
	for _, kp := range in {
		addrs := make([]types.Address, 0, len(kp.Addrs))
		for _, a := range kp.Addrs {
			addrs = append(addrs, types.Address(a))
		}
		out = append(out, types.NewPeerDescriptor(types.PeerID(kp.PeerID), addrs, map[string]string{types.MetaSource: "known"}))
	}
	return out
}
