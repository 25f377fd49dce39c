package diagnostics

import (
	"time"

	"github.com/dep2p/meshcore/pkg/types"
)

// peerSamples 单个节点的探测样本窗口
//
// 样本来自恢复管理器的健康检查结果：每个新的检查时间点记录一次，
// 成功记录延迟，失败计入丢包。
type peerSamples struct {
	outcomes  []sample
	next      int
	full      bool
	lastCheck time.Time
}

type sample struct {
	ok      bool
	latency time.Duration
}

func newPeerSamples(window int) *peerSamples {
	return &peerSamples{outcomes: make([]sample, window)}
}

func (p *peerSamples) add(s sample) {
	p.outcomes[p.next] = s
	p.next = (p.next + 1) % len(p.outcomes)
	if p.next == 0 {
		p.full = true
	}
}

func (p *peerSamples) len() int {
	if p.full {
		return len(p.outcomes)
	}
	return p.next
}

// observe 根据健康记录追加样本，同一检查时间点只记录一次
func (p *peerSamples) observe(rec types.PeerHealthRecord) {
	if rec.LastHealthCheck.IsZero() || !rec.LastHealthCheck.After(p.lastCheck) {
		return
	}
	p.lastCheck = rec.LastHealthCheck
	p.add(sample{ok: rec.ConsecutiveFailures == 0, latency: rec.LastLatency})
}

// stats 平均延迟（毫秒，仅成功样本）与丢包率
func (p *peerSamples) stats() (latencyMs, loss float64) {
	n := p.len()
	if n == 0 {
		return 0, 0
	}
	var (
		okCount int
		sum     time.Duration
	)
	for i := 0; i < n; i++ {
		s := p.outcomes[i]
		if s.ok {
			okCount++
			sum += s.latency
		}
	}
	loss = float64(n-okCount) / float64(n)
	if okCount > 0 {
		latencyMs = float64(sum.Microseconds()) / 1000 / float64(okCount)
	}
	return latencyMs, loss
}
