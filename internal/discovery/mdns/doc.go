// Package mdns 实现局域网节点发现（引导回退链最后一步）
//
// 在 libp2p host 上运行 mDNS 服务：本节点持续在局域网公告自身，
// 同时把收到的公告缓存起来（PeerTTL 内有效）。
// Discover 优先返回缓存中的节点；缓存为空时等待第一个公告或 ctx 截止。
//
// 只有 libp2p 传输提供 host；模拟网络下本方式不启用。
package mdns
