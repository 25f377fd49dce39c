package bootstrap

import "github.com/dep2p/meshcore/pkg/types"

// history 单个节点的交互历史（定长环形缓冲）
type history struct {
	desc    types.PeerDescriptor
	records []types.PeerInteractionRecord
	next    int
	full    bool
}

func newHistory(desc types.PeerDescriptor, capacity int) *history {
	return &history{desc: desc, records: make([]types.PeerInteractionRecord, capacity)}
}

// add 追加记录，满时覆盖最旧的一条
func (h *history) add(r types.PeerInteractionRecord) {
	h.records[h.next] = r
	h.next++
	if h.next == len(h.records) {
		h.next = 0
		h.full = true
	}
}

// len 当前记录数
func (h *history) len() int {
	if h.full {
		return len(h.records)
	}
	return h.next
}

// snapshot 按时间顺序（旧 → 新）复制记录
func (h *history) snapshot() []types.PeerInteractionRecord {
	out := make([]types.PeerInteractionRecord, 0, h.len())
	if h.full {
		out = append(out, h.records[h.next:]...)
	}
	return append(out, h.records[:h.next]...)
}

// last 最近一条记录
func (h *history) last() (types.PeerInteractionRecord, bool) {
	if h.len() == 0 {
		return types.PeerInteractionRecord{}, false
	}
	i := h.next - 1
	if i < 0 {
		i = len(h.records) - 1
	}
	return h.records[i], true
}

// connectionStats 连接类记录的统计
func (h *history) connectionStats() (ok, failed int, avgLatency float64) {
	var sum float64
	var n int
	for _, r := range h.snapshot() {
		if r.Kind != types.InteractionConnection {
			continue
		}
		if r.Success {
			ok++
		} else {
			failed++
		}
		if r.LatencyMs > 0 {
			sum += r.LatencyMs
			n++
		}
	}
	if n > 0 {
		avgLatency = sum / float64(n)
	}
	return ok, failed, avgLatency
}

// mergeDescriptor 用新描述补全地址与元数据
func mergeDescriptor(old, upd types.PeerDescriptor) types.PeerDescriptor {
	out := old.Clone()
	if len(upd.Addrs) > 0 {
		out.Addrs = append([]types.Address(nil), upd.Addrs...)
	}
	if len(upd.Protocols) > 0 {
		out.Protocols = append([]types.ProtocolID(nil), upd.Protocols...)
	}
	for k, v := range upd.Metadata {
		if out.Metadata == nil {
			out.Metadata = make(map[string]string, len(upd.Metadata))
		}
		out.Metadata[k] = v
	}
	return out
}
