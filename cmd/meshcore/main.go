// Package main 提供 meshcore 命令行入口
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dep2p/meshcore"
	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/discovery/relayseed"
	"github.com/dep2p/meshcore/internal/util/addrutil"
	"github.com/dep2p/meshcore/pkg/lib/log"
	"github.com/dep2p/meshcore/pkg/types"
)

var logger = log.Logger("meshcore/cmd")

// ═══════════════════════════════════════════════════════════════════════════
// 命令行参数
// ═══════════════════════════════════════════════════════════════════════════
//
//   命令行参数：运行时覆盖 / 快速测试
//   JSON 配置文件：持久化配置 / 长期运行
//   环境变量（MESHCORE_*）：介于两者之间
//
// ═══════════════════════════════════════════════════════════════════════════
var (
	// ─────────────────────────────────────────────────────────────────────
	// 运行时参数
	// ─────────────────────────────────────────────────────────────────────
	configFile = flag.String("config", "", "配置文件路径（JSON）")
	preset     = flag.String("preset", "", "预设配置 (server/mobile/test)")
	listen     = flag.String("listen", "", "监听地址，逗号分隔的 multiaddr")
	bootstrap  = flag.String("bootstrap", "", "种子节点，逗号分隔")
	namespace  = flag.String("namespace", "", "发现主题命名空间")
	interests  = flag.String("interests", "", "本节点兴趣标签，逗号分隔")
	dataDir    = flag.String("data-dir", "", "数据目录")

	// ─────────────────────────────────────────────────────────────────────
	// HTTP 服务
	// ─────────────────────────────────────────────────────────────────────
	httpAddr   = flag.String("http", "", "HTTP 监听地址（/metrics 与 /seeds），为空时不启动")
	serveSeeds = flag.Bool("serve-seeds", false, "在 /seeds 提供种子端点，公布本节点与健康节点")

	// ─────────────────────────────────────────────────────────────────────
	// 运行模式
	// ─────────────────────────────────────────────────────────────────────
	simPeers  = flag.Int("sim", 0, "在进程内模拟网络上运行，指定模拟节点数")
	simChurn  = flag.Duration("sim-churn", 0, "模拟网络中节点崩溃与加入的间隔（0 = 不变化）")
	statusInt = flag.Duration("status-interval", 30*time.Second, "状态输出间隔")

	// ─────────────────────────────────────────────────────────────────────
	// 日志参数
	// ─────────────────────────────────────────────────────────────────────
	logLevel  = flag.String("log-level", "", "日志级别 (debug/info/warn/error)")
	logFormat = flag.String("log-format", "", "日志格式 (text/json)")
	logFile   = flag.String("log", "", "日志文件路径")

	// ─────────────────────────────────────────────────────────────────────
	// 信息显示
	// ─────────────────────────────────────────────────────────────────────
	showVersion = flag.Bool("version", false, "显示版本信息")
	showHelp    = flag.Bool("help", false, "显示帮助信息")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Println(meshcore.VersionInfo())
		return nil
	}
	if *showHelp {
		printHelp()
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return fmt.Errorf("配置错误: %w", err)
	}

	closeLog, err := setupLogging(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "警告: %v\n", err)
		fmt.Fprintln(os.Stderr, "将继续使用控制台输出日志")
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("📦 %s\n", meshcore.VersionInfo())
	logger.Info("启动 meshcore 节点", "version", meshcore.Version, "commit", meshcore.GitCommit, "buildDate", meshcore.BuildDate)

	// ═══════════════════════════════════════════════════════════════════
	// 1. 创建节点
	// ═══════════════════════════════════════════════════════════════════
	var (
		opts []meshcore.Option
		sim  *simulation
	)
	if *simPeers > 0 {
		sim = newSimulation(cfg, *simPeers)
		opts = append(opts, meshcore.WithTransport(sim.self))
	}

	node, err := meshcore.New(cfg, opts...)
	if err != nil {
		return fmt.Errorf("创建节点失败: %w", err)
	}
	defer func() {
		dctx, dcancel := context.WithTimeout(context.Background(), cfg.Node.ShutdownTimeout.Duration())
		defer dcancel()
		if err := node.Destroy(dctx); err != nil {
			logger.Warn("销毁节点出错", "error", err)
		}
	}()

	if err := node.Initialize(ctx); err != nil {
		return fmt.Errorf("初始化失败: %w", err)
	}
	printNodeInfo(node)

	// ═══════════════════════════════════════════════════════════════════
	// 2. HTTP 服务（指标与种子端点）
	// ═══════════════════════════════════════════════════════════════════
	if *httpAddr != "" {
		srv := newHTTPServer(*httpAddr, node, cfg.Node.Namespace)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP 服务退出", "error", err)
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer scancel()
			_ = srv.Shutdown(sctx)
		}()
		fmt.Printf("📈 指标: http://%s/metrics\n", *httpAddr)
		if *serveSeeds {
			fmt.Printf("🌱 种子端点: ws://%s/seeds\n", *httpAddr)
		}
	}

	// ═══════════════════════════════════════════════════════════════════
	// 3. 接入网络
	// ═══════════════════════════════════════════════════════════════════
	cancelIssues := node.OnNetworkIssuesDetected(func(ev types.IssuesDetectedEvent) {
		for _, is := range ev.Issues {
			fmt.Printf("⚠️  [%s] %s: %s\n", is.Severity, is.Code, is.Message)
		}
	})
	defer cancelIssues()
	cancelPartition := node.OnPartition(func(ev types.PartitionDetectedEvent) {
		fmt.Printf("🚨 网络分区: 健康比例 %.2f\n", ev.State.HealthyRatio)
	})
	defer cancelPartition()

	if err := node.Connect(ctx); err != nil {
		return fmt.Errorf("接入网络失败: %w", err)
	}
	if sim != nil && *simChurn > 0 {
		go sim.churn(ctx, *simChurn)
	}

	fmt.Println("节点已启动，按 Ctrl+C 退出")
	reportStatus(ctx, node, *statusInt)

	fmt.Println("\n正在关闭节点...")
	return nil
}

// buildConfig 构建配置
//
// 配置优先级（从高到低）：
//  1. 命令行参数
//  2. 环境变量（MESHCORE_* 前缀）
//  3. 配置文件
//  4. 预设与默认值
func buildConfig() (*config.Config, error) {
	cfg := config.NewConfig()
	if *configFile != "" {
		loaded, err := config.LoadFile(*configFile)
		if err != nil {
			return nil, fmt.Errorf("加载配置文件失败: %w", err)
		}
		cfg = loaded
	}

	presetName := *preset
	if presetName == "" && *simPeers > 0 {
		presetName = "test"
	}
	if presetName != "" {
		if err := config.ApplyPreset(cfg, presetName); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if *listen != "" {
		cfg.Transport.ListenAddrs = splitAndTrim(*listen, ",")
	}
	if *bootstrap != "" {
		cfg.Bootstrap.Nodes = splitAndTrim(*bootstrap, ",")
	}
	if *namespace != "" {
		cfg.Node.Namespace = *namespace
	}
	if *interests != "" {
		cfg.Node.Interests = splitAndTrim(*interests, ",")
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	if *simPeers > 0 {
		cfg.Transport.Kind = config.TransportMemory
		cfg.Storage.InMemory = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging 设置日志输出，返回关闭日志文件的函数
func setupLogging(cfg *config.Config) (func(), error) {
	level, _ := log.ParseLevel(cfg.Log.Level)
	format := log.ParseFormat(cfg.Log.Format)

	path := *logFile
	if path == "" {
		path = os.Getenv(envPrefix + envLogFile)
	}
	if path == "" {
		log.Configure(os.Stderr, level, format)
		return func() {}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600) //nolint:gosec // 用户指定的日志路径
	if err != nil {
		log.Configure(os.Stderr, level, format)
		return func() {}, fmt.Errorf("打开日志文件失败: %w", err)
	}
	log.Configure(f, level, format)
	fmt.Printf("📝 日志文件: %s\n", path)
	return func() { _ = f.Close() }, nil
}

// newHTTPServer 指标与种子端点
func newHTTPServer(addr string, node *meshcore.Node, ns string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(node.Registry(), promhttp.HandlerOpts{}))
	if *serveSeeds {
		mux.Handle("/seeds", relayseed.NewHandler(ns, seedSource(node)))
	}
	return &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
}

// seedSource 公布本节点与当前健康的节点
func seedSource(node *meshcore.Node) relayseed.PeerSource {
	return func(limit int) []types.PeerDescriptor {
		out := []types.PeerDescriptor{types.NewPeerDescriptor(node.ID(), node.Addrs(), nil)}
		for _, rec := range node.GetNetworkHealth().PeerHealth {
			if len(out) >= limit {
				break
			}
			if !rec.IsHealthy {
				continue
			}
			if addrs := routableAddrs(rec.Addrs); len(addrs) > 0 {
				out = append(out, types.NewPeerDescriptor(rec.PeerID, addrs, nil))
			}
		}
		return out
	}
}

// routableAddrs 去掉回环地址，其他节点无法通过它们连接
func routableAddrs(addrs []types.Address) []types.Address {
	out := make([]types.Address, 0, len(addrs))
	for _, a := range addrs {
		if !addrutil.IsLoopbackAddr(string(a)) {
			out = append(out, a)
		}
	}
	return out
}

// reportStatus 定期输出网络状态，直到 ctx 结束
func reportStatus(ctx context.Context, node *meshcore.Node, interval time.Duration) {
	if interval <= 0 {
		<-ctx.Done()
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := node.GetNetworkStatus()
			h := node.GetNetworkHealth()
			rep := node.RunNetworkTroubleshooting()
			fmt.Printf("[状态] 连接=%d 健康=%d/%d DHT=%v 延迟=%.1fms 评分=%d\n",
				st.PeerCount, h.HealthyPeers, h.TotalPeers, st.DHTConnected, st.LatencyMs, rep.HealthScore)
		}
	}
}

// printNodeInfo 打印节点信息
func printNodeInfo(node *meshcore.Node) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════════════════╗")
	fmt.Println("║                    节点信息                           ║")
	fmt.Println("╠══════════════════════════════════════════════════════╣")
	fmt.Printf("║ 节点 ID: %s\n", node.ID())
	fmt.Println("║")
	fmt.Println("║ 地址:")
	for _, addr := range node.Addrs() {
		fmt.Printf("║   • %s [%s]\n", addr, addrutil.AddrType(string(addr)))
	}
	fmt.Println("╚══════════════════════════════════════════════════════╝")
	fmt.Println()
}

// printHelp 打印帮助信息
func printHelp() {
	fmt.Println("meshcore - P2P 连接与韧性核心")
	fmt.Println()
	fmt.Println("用法:")
	fmt.Println("  meshcore [选项]")
	fmt.Println()
	fmt.Println("选项:")
	flag.PrintDefaults()
	fmt.Println()
	fmt.Println("环境变量:")
	for _, line := range []string{
		"MESHCORE_PRESET            预设名称",
		"MESHCORE_BOOTSTRAP_PEERS   种子节点（逗号分隔）",
		"MESHCORE_LISTEN_ADDRS      监听地址（逗号分隔）",
		"MESHCORE_NAMESPACE         发现主题命名空间",
		"MESHCORE_DATA_DIR          数据目录",
		"MESHCORE_ENABLE_MDNS       启用局域网发现 (true/false)",
		"MESHCORE_LOG_FILE          日志文件路径",
		"MESHCORE_LOG_LEVEL         日志级别",
	} {
		fmt.Println("  " + line)
	}
	fmt.Println()
	fmt.Println("示例:")
	fmt.Println("  meshcore -config node.json -http :9100")
	fmt.Println("  meshcore -bootstrap /ip4/1.2.3.4/tcp/4001/p2p/12D3KooW...")
	fmt.Println("  meshcore -sim 20 -sim-churn 10s -status-interval 5s")
}
