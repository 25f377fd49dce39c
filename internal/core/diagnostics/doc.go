// Package diagnostics 网络诊断服务
//
// 诊断服务只读：它观察传输层连接、恢复管理器的健康记录、
// 发现基座状态与消息计数，定期汇总成只读快照。
//
// # 健康评分
//
// 总分 0-100，由四部分组成：
//
//	连通性    30  至少有一个连接
//	节点数    30  min(连接数/目标节点数, 1) · 30
//	发现基座  20  基座可用
//	问题预算  20  20 - Σ 严重程度扣分，最低为 0
//
// 更多健康信号不会降低分数，更多或更严重的问题不会提高分数。
//
// # 自动修复
//
// ApplyAutoFix 不阻塞调用方：修复动作在后台执行，委托给 interfaces.Remedies。
// 同一动作在执行中时重复调用直接返回；整体执行频率受令牌桶限制。
//
// # 使用示例
//
//	svc, _ := diagnostics.NewService(cfg, transport, sched,
//	    diagnostics.WithHealthSource(recoveryManager),
//	    diagnostics.WithDiscoveryStatus(discoveryService),
//	    diagnostics.WithRemedies(remedies),
//	)
//	report := svc.RunTroubleshooting()
//	if report.CanAutoFix {
//	    _ = svc.ApplyAutoFix(report.AutoFixActions[0])
//	}
package diagnostics
