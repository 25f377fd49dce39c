package diagnostics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "meshcore"

// metrics 诊断服务的 Prometheus 指标
//
// 每个服务实例使用独立的 Registry，多个节点可以在同一进程中共存。
type metrics struct {
	reg *prometheus.Registry

	messages     *prometheus.CounterVec
	bytes        *prometheus.CounterVec
	healthScore  prometheus.Gauge
	peers        *prometheus.GaugeVec
	issues       prometheus.Gauge
	autoFix      *prometheus.CounterVec
	refreshTotal prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages observed by the node, by outcome.",
		}, []string{"outcome"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "message_bytes_total",
			Help:      "Message payload bytes, by direction.",
		}, []string{"direction"}),
		healthScore: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_score",
			Help:      "Network health score (0-100) from the last snapshot.",
		}),
		peers: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers",
			Help:      "Tracked peers from the last snapshot, by health.",
		}, []string{"state"}),
		issues: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "issues_open",
			Help:      "Open diagnostic issues.",
		}),
		autoFix: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "autofix_total",
			Help:      "Auto-fix executions, by action and result.",
		}, []string{"action", "result"}),
		refreshTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnostics_refresh_total",
			Help:      "Diagnostics snapshot refreshes.",
		}),
	}
	m.reg.MustRegister(
		m.messages,
		m.bytes,
		m.healthScore,
		m.peers,
		m.issues,
		m.autoFix,
		m.refreshTotal,
		collectors.NewGoCollector(),
	)
	return m
}
