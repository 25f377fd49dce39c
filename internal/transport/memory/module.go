package memory

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/fx"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// Params 模拟传输依赖参数
type Params struct {
	fx.In

	// Network 外部共享的模拟网络，未提供时创建独立网络
	Network *Network `optional:"true"`
}

// Result 模拟传输导出结果
type Result struct {
	fx.Out

	Transport interfaces.Transport
}

// Module 返回模拟传输模块
//
// 提供:
//   - interfaces.Transport：模拟网络上以随机 ID 加入的节点
//
// 生命周期:
//   - OnStop: 关闭节点
func Module() fx.Option {
	return fx.Module("transport/memory",
		fx.Provide(ProvideTransport),
	)
}

// ProvideTransport 在模拟网络上创建节点
func ProvideTransport(lc fx.Lifecycle, p Params) Result {
	n := p.Network
	if n == nil {
		n = NewNetwork()
	}
	t := n.AddPeer(types.PeerID(uuid.NewString()), nil)
	logger.Debug("模拟节点已加入网络", "peer", t.LocalPeer().ShortString())

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return t.Close()
		},
	})
	return Result{Transport: t}
}
