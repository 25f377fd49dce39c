// Package recovery 实现连接恢复管理
//
// # 节点状态机
//
//	Connected → Unhealthy → Reconnecting → {Connected | Replaced}
//
// 健康检查按 HealthCheckInterval 周期运行，每个节点的探测受
// HealthCheckTimeout 约束，并发数受信号量限制。连续失败达到
// MaxConsecutiveFailures 后节点变为 Unhealthy 并按退避重连：
//
//	delay(n) = min(InitialReconnectDelay · BackoffMultiplier^n, MaxReconnectDelay)
//
// 同一节点的并发恢复请求通过 singleflight 合并为一次拨号。
// 重连耗尽 MaxReconnectAttempts 后删除健康记录并进入替换流程。
//
// # 分区检测
//
// 每个周期计算 healthyRatio = healthy / total。连续 PartitionConfirmCycles
// 个周期低于阈值时判定分区（只触发一次），改为执行引导回退链而不是逐个重连。
// 比例回到阈值以上时分区解除，进入 PartitionRecoveryTimeout 冷却期，
// 冷却期内不会判定新的分区。没有跟踪节点时不做分区判定。
//
// # 节点替换
//
// 健康节点少于 MinHealthyPeers 时先剔除超出 MaxUnhealthyPeers 的不健康节点，
// 再依次向发现服务、引导引擎请求候选并拨号，跟踪的节点数不超过 MaxPeers。
//
// # 使用示例
//
//	m, err := recovery.NewManager(cfg, transport, sched,
//	    recovery.WithCandidateSources(discoverySvc, bootstrapEngine),
//	    recovery.WithFallbackTrigger(bootstrapEngine),
//	)
//	m.Start(ctx)
//	defer m.Close()
//
//	m.OnPeerConnected(ev)
//	health := m.Health()
package recovery
