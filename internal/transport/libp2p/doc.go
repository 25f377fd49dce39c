// Package libp2p 把 go-libp2p host 适配为核心使用的传输抽象
//
// Transport 同时实现:
//   - interfaces.Transport: 拨号、枚举连接、打开流、关闭连接、连接事件
//   - interfaces.Pinger: 基于 /ipfs/ping 的往返探测
//   - interfaces.BandwidthReporter: 基于 BandwidthCounter 的速率统计
//   - interfaces.DHTProvider: kad-dht + routing discovery 组成的主题发现基座
//
// 连接事件来自 network.NotifyBundle，经单个分发协程按到达顺序投递给订阅者；
// 同一节点的多条底层连接只产生一次 peer:connect 与一次 peer:disconnect。
//
// Host() 暴露底层 host，供局域网发现使用。
package libp2p
