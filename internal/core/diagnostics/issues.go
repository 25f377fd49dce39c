package diagnostics

import (
	"fmt"
	"sort"

	"github.com/dep2p/meshcore/pkg/types"
)

// 问题代码
const (
	CodeNoConnections      = "no_connections"
	CodeBootstrapExhausted = "bootstrap_exhausted"
	CodePartition          = "network_partition"
	CodeDHTUnavailable     = "dht_unavailable"
	CodeLowPeerCount       = "low_peer_count"
	CodeUnhealthyPeers     = "unhealthy_peers"
	CodeHighLatency        = "high_latency"
	CodePacketLoss         = "packet_loss"
	CodeLowDeliveryRate    = "low_delivery_rate"
)

// minDeliverySamples 计算投递率问题所需的最少发送数
const minDeliverySamples = 10

// view 一次刷新观察到的原始数据
type view struct {
	status    types.NetworkStatus
	health    types.NetworkHealth
	hasHealth bool
	dht       types.DHTStatus
	hasDHT    bool
	perf      types.Performance
	loss      float64
	exhausted string
}

// rule 问题检测规则
type rule struct {
	code     string
	severity types.Severity
	fix      types.AutoFixAction
	advice   string
	check    func(v view, c Config) (string, bool)
}

var rules = []rule{
	{
		code:     CodeNoConnections,
		severity: types.SeverityCritical,
		fix:      types.AutoFixRetryBootstrap,
		advice:   "检查网络连接与种子节点配置，然后重新执行引导",
		check: func(v view, _ Config) (string, bool) {
			return "节点没有任何连接", !v.status.Connected
		},
	},
	{
		code:     CodeBootstrapExhausted,
		severity: types.SeverityCritical,
		fix:      types.AutoFixRetryBootstrap,
		advice:   "所有引导方式都没有产出节点，检查种子节点、DNS 与中继地址",
		check: func(v view, _ Config) (string, bool) {
			return "引导回退链已耗尽: " + v.exhausted, v.exhausted != ""
		},
	},
	{
		code:     CodePartition,
		severity: types.SeverityCritical,
		fix:      types.AutoFixForceNetworkRecovery,
		advice:   "疑似网络分区，强制执行网络级恢复",
		check: func(v view, _ Config) (string, bool) {
			if !v.hasHealth || v.health.Partition == nil {
				return "", false
			}
			return fmt.Sprintf("检测到网络分区，健康比例 %.2f", v.health.Partition.HealthyRatio), true
		},
	},
	{
		code:     CodeDHTUnavailable,
		severity: types.SeverityError,
		fix:      types.AutoFixRetryBootstrap,
		advice:   "发现基座不可用，重新引导以恢复路由表",
		check: func(v view, _ Config) (string, bool) {
			if !v.hasDHT || v.dht.Connected {
				return "", false
			}
			msg := "发现基座不可用"
			if v.dht.LastError != "" {
				msg += ": " + v.dht.LastError
			}
			return msg, true
		},
	},
	{
		code:     CodeLowPeerCount,
		severity: types.SeverityWarning,
		fix:      types.AutoFixRequestPeers,
		advice:   "连接数偏低，请求补充节点",
		check: func(v view, c Config) (string, bool) {
			n := v.status.PeerCount
			return fmt.Sprintf("连接数 %d 低于目标 %d 的一半", n, c.TargetPeers), n > 0 && n*2 < c.TargetPeers
		},
	},
	{
		code:     CodeUnhealthyPeers,
		severity: types.SeverityWarning,
		fix:      types.AutoFixResetPeerConnections,
		advice:   "存在不健康的连接，重置节点连接",
		check: func(v view, _ Config) (string, bool) {
			if !v.hasHealth {
				return "", false
			}
			return fmt.Sprintf("%d/%d 个节点不健康", v.health.UnhealthyPeers, v.health.TotalPeers), v.health.UnhealthyPeers > 0
		},
	},
	{
		code:     CodeHighLatency,
		severity: types.SeverityWarning,
		advice:   "平均延迟偏高，优先选择地理上更近的节点",
		check: func(v view, c Config) (string, bool) {
			limit := float64(c.HighLatency.Microseconds()) / 1000
			return fmt.Sprintf("平均延迟 %.1fms 超过 %.1fms", v.status.LatencyMs, limit), limit > 0 && v.status.LatencyMs > limit
		},
	},
	{
		code:     CodePacketLoss,
		severity: types.SeverityWarning,
		fix:      types.AutoFixResetPeerConnections,
		advice:   "健康探测丢包率偏高，重置节点连接",
		check: func(v view, c Config) (string, bool) {
			return fmt.Sprintf("丢包率 %.2f 超过 %.2f", v.loss, c.PacketLossThreshold), v.loss > c.PacketLossThreshold
		},
	},
	{
		code:     CodeLowDeliveryRate,
		severity: types.SeverityWarning,
		advice:   "消息投递率偏低，检查上层协议的重试与确认",
		check: func(v view, c Config) (string, bool) {
			if v.perf.MessagesSent < minDeliverySamples {
				return "", false
			}
			return fmt.Sprintf("投递率 %.1f%% 低于 %.1f%%", v.perf.DeliveryRate, c.MinDeliveryRate), v.perf.DeliveryRate < c.MinDeliveryRate
		},
	},
}

// detected 检测到的问题与其规则
type detected struct {
	rule    rule
	message string
}

// detect 按严重程度降序返回所有命中的规则
func detect(v view, c Config) []detected {
	var out []detected
	for _, r := range rules {
		if msg, ok := r.check(v, c); ok {
			out = append(out, detected{rule: r, message: msg})
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].rule.severity > out[j].rule.severity
	})
	return out
}

// buildReport 根据问题列表组装排障报告
func buildReport(issues []types.Issue, score int) types.TroubleshootingReport {
	rep := types.TroubleshootingReport{HealthScore: score, Issues: issues}
	seenAdvice := make(map[string]struct{})
	seenFix := make(map[types.AutoFixAction]struct{})
	for _, is := range issues {
		if adv := adviceFor(is.Code); adv != "" {
			if _, dup := seenAdvice[adv]; !dup {
				seenAdvice[adv] = struct{}{}
				rep.Recommendations = append(rep.Recommendations, adv)
			}
		}
		if !is.AutoFix.Known() {
			continue
		}
		if _, dup := seenFix[is.AutoFix]; !dup {
			seenFix[is.AutoFix] = struct{}{}
			rep.AutoFixActions = append(rep.AutoFixActions, is.AutoFix)
		}
	}
	rep.CanAutoFix = len(rep.AutoFixActions) > 0
	return rep
}

func adviceFor(code string) string {
	for _, r := range rules {
		if r.code == code {
			return r.advice
		}
	}
	return ""
}
