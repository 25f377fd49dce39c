package diagnostics

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// rateBuckets 滑动窗口的秒级桶数
const rateBuckets = 60

// rateMeter 速率计算器
//
// 使用 60 个 1 秒桶计算最近 60 秒的平均速率，时间取自注入的时钟。
type rateMeter struct {
	clk clock.Clock

	mu       sync.Mutex
	buckets  [rateBuckets]uint64
	lastIdx  int
	lastTime time.Time
}

func newRateMeter(clk clock.Clock) *rateMeter {
	return &rateMeter{clk: clk, lastTime: clk.Now()}
}

// add 累加到当前桶
func (r *rateMeter) add(n uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked()
	r.buckets[r.lastIdx] += n
}

// rate 最近 60 秒的平均速率（每秒）
func (r *rateMeter) rate() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.advanceLocked()
	var total uint64
	for _, v := range r.buckets {
		total += v
	}
	return float64(total) / rateBuckets
}

// advanceLocked 按经过的秒数前移并清空过期的桶
func (r *rateMeter) advanceLocked() {
	now := r.clk.Now()
	elapsed := now.Sub(r.lastTime)
	if elapsed < time.Second {
		return
	}
	seconds := int(elapsed / time.Second)
	if seconds >= rateBuckets {
		r.buckets = [rateBuckets]uint64{}
		r.lastIdx = 0
	} else {
		for i := 0; i < seconds; i++ {
			r.lastIdx = (r.lastIdx + 1) % rateBuckets
			r.buckets[r.lastIdx] = 0
		}
	}
	r.lastTime = r.lastTime.Add(time.Duration(seconds) * time.Second)
}
