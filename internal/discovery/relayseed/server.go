package relayseed

import (
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dep2p/meshcore/pkg/types"
)

// maxPeersPerResponse 单次应答的节点数上限
const maxPeersPerResponse = 256

// idleTimeout 连接空闲超时
const idleTimeout = 60 * time.Second

// PeerSource 提供可对外公布的节点
type PeerSource func(limit int) []types.PeerDescriptor

// Handler 种子端点服务
type Handler struct {
	namespace string
	source    PeerSource
	upgrader  websocket.Upgrader
}

// NewHandler 创建种子端点服务，namespace 为空时不校验请求的命名空间
func NewHandler(namespace string, source PeerSource) *Handler {
	return &Handler{
		namespace: namespace,
		source:    source,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// ServeHTTP 实现 http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debug("websocket 升级失败", "remote", r.RemoteAddr, "error", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	for {
		_ = conn.SetReadDeadline(time.Now().Add(idleTimeout))
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debug("读取请求失败", "remote", r.RemoteAddr, "error", err)
			}
			return
		}
		if err := conn.WriteJSON(h.answer(req)); err != nil {
			return
		}
	}
}

func (h *Handler) answer(req request) response {
	if req.Type != msgPeers {
		return response{Error: "unknown request type " + req.Type}
	}
	if h.namespace != "" && req.Namespace != "" && !strings.EqualFold(req.Namespace, h.namespace) {
		return response{Error: "unknown namespace " + req.Namespace}
	}

	limit := req.Limit
	if limit <= 0 || limit > maxPeersPerResponse {
		limit = maxPeersPerResponse
	}
	var peers []types.PeerDescriptor
	if h.source != nil {
		peers = h.source(limit)
	}
	res := response{Peers: make([]wirePeer, 0, len(peers))}
	for _, p := range peers {
		if len(res.Peers) >= limit {
			break
		}
		if p.ID.IsEmpty() || len(p.Addrs) == 0 {
			continue
		}
		res.Peers = append(res.Peers, toWire(p))
	}
	return res
}
