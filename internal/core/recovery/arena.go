package recovery

import (
	"sort"

	"github.com/dep2p/meshcore/pkg/types"
)

// peerTable 节点健康记录表
//
// 记录存放在切片中，下标稳定；删除的槽位进入空闲列表复用。
// 调用方持有 Manager.mu。
type peerTable struct {
	slots []slot
	index map[types.PeerID]int
	free  []int
}

type slot struct {
	rec  types.PeerHealthRecord
	used bool
}

func newPeerTable() *peerTable {
	return &peerTable{index: make(map[types.PeerID]int)}
}

// get 返回记录指针，不存在时返回 nil
func (t *peerTable) get(id types.PeerID) *types.PeerHealthRecord {
	i, ok := t.index[id]
	if !ok {
		return nil
	}
	return &t.slots[i].rec
}

// put 插入新记录，已存在时覆盖并返回原下标
func (t *peerTable) put(rec types.PeerHealthRecord) int {
	if i, ok := t.index[rec.PeerID]; ok {
		t.slots[i].rec = rec
		return i
	}
	var i int
	if n := len(t.free); n > 0 {
		i = t.free[n-1]
		t.free = t.free[:n-1]
		t.slots[i] = slot{rec: rec, used: true}
	} else {
		i = len(t.slots)
		t.slots = append(t.slots, slot{rec: rec, used: true})
	}
	t.index[rec.PeerID] = i
	return i
}

// remove 删除记录
func (t *peerTable) remove(id types.PeerID) (types.PeerHealthRecord, bool) {
	i, ok := t.index[id]
	if !ok {
		return types.PeerHealthRecord{}, false
	}
	rec := t.slots[i].rec
	t.slots[i] = slot{}
	delete(t.index, id)
	t.free = append(t.free, i)
	return rec, true
}

// len 记录数
func (t *peerTable) len() int { return len(t.index) }

// each 按下标顺序遍历记录
func (t *peerTable) each(fn func(rec *types.PeerHealthRecord)) {
	for i := range t.slots {
		if t.slots[i].used {
			fn(&t.slots[i].rec)
		}
	}
}

// ids 按 ID 排序返回所有节点
func (t *peerTable) ids() []types.PeerID {
	out := make([]types.PeerID, 0, len(t.index))
	for id := range t.index {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// snapshot 按 ID 排序复制所有记录
func (t *peerTable) snapshot() []types.PeerHealthRecord {
	out := make([]types.PeerHealthRecord, 0, len(t.index))
	for _, id := range t.ids() {
		rec := *t.get(id)
		rec.Addrs = append([]types.Address(nil), rec.Addrs...)
		out = append(out, rec)
	}
	return out
}

// counts 健康与不健康节点数
func (t *peerTable) counts() (healthy, unhealthy int) {
	t.each(func(rec *types.PeerHealthRecord) {
		if rec.IsHealthy {
			healthy++
		} else {
			unhealthy++
		}
	})
	return healthy, unhealthy
}

// clear 清空
func (t *peerTable) clear() {
	t.slots = nil
	t.free = nil
	t.index = make(map[types.PeerID]int)
}
