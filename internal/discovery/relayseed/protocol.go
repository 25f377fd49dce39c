package relayseed

import (
	"github.com/dep2p/meshcore/pkg/types"
)

// 消息类型
const (
	msgPeers = "peers"
)

// maxMessageSize 单条消息的读取上限
const maxMessageSize = 1 << 20

// request 节点列表请求
type request struct {
	Type      string `json:"type"`
	Namespace string `json:"namespace,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// response 节点列表应答
type response struct {
	Peers []wirePeer `json:"peers"`
	Error string     `json:"error,omitempty"`
}

// wirePeer 线上节点格式
type wirePeer struct {
	ID       string            `json:"id"`
	Addrs    []string          `json:"addrs"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

func toWire(d types.PeerDescriptor) wirePeer {
	return wirePeer{
		ID:       string(d.ID),
		Addrs:    types.AddrsToStrings(d.Addrs),
		Metadata: d.Metadata,
	}
}

func fromWire(w wirePeer) (types.PeerDescriptor, bool) {
	if w.ID == "" || len(w.Addrs) == 0 {
		return types.PeerDescriptor{}, false
	}
	addrs := make([]types.Address, 0, len(w.Addrs))
	for _, a := range w.Addrs {
		if a != "" {
			addrs = append(addrs, types.Address(a))
		}
	}
	if len(addrs) == 0 {
		return types.PeerDescriptor{}, false
	}
	d := types.NewPeerDescriptor(types.PeerID(w.ID), addrs, w.Metadata)
	return d.WithMeta(types.MetaSource, "relay"), true
}
