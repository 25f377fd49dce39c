package relayseed

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/multierr"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("discovery/relayseed")

// MethodName 回退方式名
const MethodName = "relay"

// Priority 在回退链中的顺序
const Priority = 20

// Config 种子端点客户端配置
type Config struct {
	// Endpoints ws:// 或 wss:// 端点
	Endpoints []string

	// Namespace 请求的命名空间
	Namespace string

	// Limit 每个端点请求的节点数
	Limit int

	// Timeout 单个端点的超时（握手 + 请求）
	Timeout time.Duration
}

// DefaultConfig 默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "meshcore",
		Limit:     32,
		Timeout:   10 * time.Second,
	}
}

// ConfigFromUnified 从统一配置创建客户端配置
func ConfigFromUnified(cfg *config.Config) Config {
	c := DefaultConfig()
	if cfg == nil {
		return c
	}
	c.Endpoints = append([]string(nil), cfg.Bootstrap.RelaySeeds...)
	c.Namespace = cfg.Node.Namespace
	if t := cfg.Bootstrap.MethodTimeout.Duration(); t > 0 {
		c.Timeout = t
	}
	return c
}

// ============================================================================
//                              Client
// ============================================================================

// Client 种子端点客户端
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

var _ interfaces.FallbackMethod = (*Client)(nil)

// NewClient 创建客户端
func NewClient(cfg Config) *Client {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultConfig().Limit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	return &Client{
		cfg: cfg,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.Timeout,
			ReadBufferSize:   4096,
			WriteBufferSize:  1024,
			Proxy:            http.ProxyFromEnvironment,
		},
	}
}

// Name 实现 FallbackMethod
func (c *Client) Name() string { return MethodName }

// Priority 实现 FallbackMethod
func (c *Client) Priority() int { return Priority }

// Discover 依次询问所有端点并按节点 ID 合并
//
// 只有全部端点失败时返回错误。
func (c *Client) Discover(ctx context.Context) ([]types.PeerDescriptor, error) {
	if len(c.cfg.Endpoints) == 0 {
		return nil, ErrNoEndpoints
	}

	var (
		out    []types.PeerDescriptor
		errs   error
		failed int
	)
	seen := make(map[types.PeerID]bool)
	for _, url := range c.cfg.Endpoints {
		peers, err := c.Query(ctx, url)
		if err != nil {
			logger.Debug("种子端点查询失败", "url", url, "error", err)
			errs = multierr.Append(errs, err)
			failed++
			if ctx.Err() != nil {
				break
			}
			continue
		}
		for _, p := range peers {
			if !seen[p.ID] {
				seen[p.ID] = true
				out = append(out, p)
			}
		}
	}
	if failed == len(c.cfg.Endpoints) {
		return nil, errs
	}
	return out, nil
}

// Query 询问单个端点
func (c *Client) Query(ctx context.Context, url string) ([]types.PeerDescriptor, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	conn, resp, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %s: %w", url, resp.Status, err)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	// ctx 取消时关闭连接，打断阻塞的读写
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetWriteDeadline(deadline)
		_ = conn.SetReadDeadline(deadline)
	}

	req := request{Type: msgPeers, Namespace: c.cfg.Namespace, Limit: c.cfg.Limit}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write request to %s: %w", url, err)
	}

	var res response
	if err := conn.ReadJSON(&res); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("read response from %s: %w", url, ctx.Err())
		}
		return nil, fmt.Errorf("%w from %s: %v", ErrBadResponse, url, err)
	}
	if res.Error != "" {
		return nil, fmt.Errorf("%w from %s: %s", ErrBadResponse, url, res.Error)
	}

	_ = conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	peers := make([]types.PeerDescriptor, 0, len(res.Peers))
	for _, w := range res.Peers {
		if p, ok := fromWire(w); ok {
			peers = append(peers, p)
		}
		if len(peers) >= c.cfg.Limit {
			break
		}
	}
	logger.Debug("种子端点返回节点", "url", url, "peers", len(peers))
	return peers, nil
}
