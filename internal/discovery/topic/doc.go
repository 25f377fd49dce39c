// Package topic 实现基于主题的节点发现服务
//
// 应用层的搜索条件（位置分桶、兴趣标签）被确定性地映射为主题 ID，
// 节点通过发现基座（DHT）公告/订阅这些主题，并按主题查找候选节点。
//
// # 主题格式
//
//	/<namespace>/topic/<hex(sha256(kind "/" value))[:32]>
//
// kind 为 location / region / interest。相同条件总是得到相同（已排序、去重）的主题集合。
//
// # 错误
//
//   - ErrDiscoveryTimeout: 查询超过 LookupTimeout
//   - ErrDiscoveryUnreachable: 基座不可用或返回错误
//
// 空结果且无错误表示“没有找到节点”。
//
// # 周期任务
//
// Start 后每个 Interval 重新公告已加入的主题并刷新结果缓存；
// 刷新失败只记录日志。
package topic
