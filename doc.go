// Package meshcore 提供 P2P 节点的连接与韧性核心
//
// meshcore 负责找到其他节点、建立并维持直连、检测并从故障中恢复
// （单节点丢失、网络分区、发现基座不可用），并持续评估网络健康，
// 使上层应用不受瞬时网络状况影响。
//
// # 组件
//
//   - 主题发现：按位置与兴趣生成主题，在发现基座上公告与查找节点
//   - 引导与推荐：种子节点可靠性、交互历史打分、引导回退链
//   - 连接恢复：健康检查、指数退避重连、分区检测、节点替换
//   - 网络诊断：计数与指标、健康评分、排障报告、自动修复
//   - Node：拥有以上组件的生命周期并提供统一 API
//
// # 快速开始
//
//	cfg := config.NewConfig()
//	cfg.Bootstrap.Nodes = []string{"/ip4/1.2.3.4/tcp/4001/p2p/12D3KooW..."}
//
//	node, err := meshcore.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := node.Initialize(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer node.Destroy(context.Background())
//
//	if err := node.Connect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	cancel := node.OnNetworkIssuesDetected(func(ev types.IssuesDetectedEvent) {
//	    for _, is := range ev.Issues {
//	        fmt.Println(is.Severity, is.Code, is.Message)
//	    }
//	})
//	defer cancel()
//
//	peers, _ := node.DiscoverPeers(ctx, types.SearchCriteria{Interests: []string{"music"}})
//	node.ConnectPeers(ctx, peers)
//
// # 生命周期
//
//	New ──► Initialize ──► Connect ◄──► Disconnect
//	                          │              │
//	                          └──► Destroy ◄─┘
//
// Initialize 构建 Fx 应用并一次性填充所有组件；Connect 启动事件泵与周期任务并执行引导；
// Disconnect 停止所有周期任务、取消进行中的重连并关闭跟踪的连接，之后可再次 Connect；
// Destroy 是终态，释放存储与调度器。
//
// 状态查询（GetNetworkStatus、GetNetworkDiagnostics 等）在任何状态下都不会失败，
// 初始化之前与销毁之后返回全空（未连接）的快照。
package meshcore
