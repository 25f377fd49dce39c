package libp2p

import (
	"time"

	"github.com/libp2p/go-libp2p/core/network"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// conn 包装 network.Conn
type conn struct {
	c network.Conn
}

var _ interfaces.Connection = (*conn)(nil)

func wrapConn(c network.Conn) *conn { return &conn{c: c} }

func (c *conn) RemotePeer() types.PeerID { return types.PeerID(c.c.RemotePeer().String()) }

func (c *conn) RemoteAddr() types.Address { return types.Address(c.c.RemoteMultiaddr().String()) }

func (c *conn) Direction() types.Direction { return direction(c.c.Stat().Direction) }

func (c *conn) Opened() time.Time { return c.c.Stat().Opened }

func (c *conn) Close() error { return c.c.Close() }

func direction(d network.Direction) types.Direction {
	switch d {
	case network.DirInbound:
		return types.DirInbound
	case network.DirOutbound:
		return types.DirOutbound
	default:
		return types.DirUnknown
	}
}

// stream 包装 network.Stream，协议 ID 转为核心类型
type stream struct {
	network.Stream
}

var _ interfaces.Stream = (*stream)(nil)

// Protocol 协议 ID
func (s *stream) Protocol() types.ProtocolID { return types.ProtocolID(s.Stream.Protocol()) }
