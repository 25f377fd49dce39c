// Package memory 提供进程内模拟网络
//
// Network 持有所有模拟节点、连接与主题注册表，每个节点的 Transport
// 同时实现 interfaces.Transport、interfaces.Pinger 与 interfaces.DHTProvider。
//
// 故障注入：
//   - SetReachable: 节点不可达（拨号、ping、打开流都失败，已有连接保持“静默”）
//   - Crash: 节点下线并关闭其所有连接（对端收到 peer:disconnect）
//   - SetLatency: 到某节点的往返延迟
//   - SetDHTAvailable / SetDHTLatency: 发现基座故障与慢查询
//
// 测试与 `meshcore --sim` 使用。
package memory
