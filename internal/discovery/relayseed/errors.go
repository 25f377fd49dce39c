package relayseed

import "errors"

var (
	// ErrNoEndpoints 没有配置种子端点
	ErrNoEndpoints = errors.New("relayseed: no endpoints configured")

	// ErrBadResponse 端点返回了无法解析的应答
	ErrBadResponse = errors.New("relayseed: bad response")
)
