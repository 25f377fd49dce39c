// Package relayseed 实现基于 websocket 的种子端点发现
//
// 引导回退链的第三步。种子端点是长期在线的 websocket 服务，
// 返回它已知的节点列表：
//
//	→ {"type":"peers","namespace":"meshcore","limit":32}
//	← {"peers":[{"id":"Qm...","addrs":["/ip4/..."],"metadata":{"region":"eu"}}]}
//
// Client 依次询问配置的端点并合并去重；Handler 把本节点的已连接节点
// 以同样的协议对外提供，节点可以兼任种子端点。
package relayseed
