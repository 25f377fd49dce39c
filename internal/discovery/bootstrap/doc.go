// Package bootstrap 实现引导与推荐引擎
//
// # 种子表
//
// 种子节点来自配置（bootstrap.nodes），每个种子维护一条
// BootstrapNodeRecord：可靠性与平均响应时间都是指数滑动平均，
// 记录持久化到存储（前缀 b/s/），重启后恢复。种子永不删除，
// 只会因可靠性下降排到后面。
//
// # 交互历史与推荐
//
// RecordInteraction 为每个节点追加一条交互记录（定长环形缓冲，
// 节点数由 LRU 限制）。Recommend 按以下公式打分：
//
//	successRate  = 成功连接 / 总连接
//	baseScore    = successRate·0.6 + reputation·0.4
//	decayed      = baseScore · 0.95^daysSinceLastSeen
//	geoBonus     = max(0, (maxDist − dist)/maxDist) · 0.3
//	interestBonus = shared/total · 0.4
//	score        = clamp(decayed + geoBonus + interestBonus, 0, 1)
//
// # 回退链
//
// 主题发现失败时按固定顺序尝试：
//
//  1. 种子节点（并发拨号，按可靠性排序返回可达种子）
//  2. DNS TXT 种子列表（discovery/dns）
//  3. websocket 种子端点（discovery/relayseed）
//  4. 本地网络（discovery/mdns）
//
// 后三者通过 fx group "fallback_methods" 注入并按 Priority 排序。
// 每个方法有独立超时，第一个返回非空结果的方法结束回退链。
// 全部为空时发出 BootstrapExhaustedEvent。HandleDiscoveryFailure 从不返回错误。
package bootstrap
