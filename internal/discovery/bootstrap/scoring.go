package bootstrap

import (
	"math"
	"time"

	"github.com/dep2p/meshcore/pkg/types"
)

// 打分权重
const (
	// SuccessWeight 成功率在基础分中的权重
	SuccessWeight = 0.6

	// ReputationWeight 信誉在基础分中的权重
	ReputationWeight = 0.4

	// DecayFactor 每天的时间衰减系数
	DecayFactor = 0.95

	// GeographicWeight 地理加分上限
	GeographicWeight = 0.3

	// InterestWeight 兴趣加分上限
	InterestWeight = 0.4

	// ReliabilityAlpha 种子可靠性 EMA 系数
	ReliabilityAlpha = 0.1

	// ResponseTimeWeight 响应时间 EMA 中新样本的权重
	ResponseTimeWeight = 0.2

	// InitialReliability 新种子的初始可靠性
	InitialReliability = 0.5

	// DefaultReputation 未提供信誉函数时的信誉值
	DefaultReputation = 0.5
)

// ReputationFunc 外部信誉来源，返回 [0,1]
type ReputationFunc func(id types.PeerID) float64

// ============================================================================
//                              纯函数
// ============================================================================

// SuccessRate 成功率，没有记录时为 0
func SuccessRate(successes, total int) float64 {
	if total <= 0 {
		return 0
	}
	return clamp01(float64(successes) / float64(total))
}

// HistorySuccessRate 从交互记录计算成功率
func HistorySuccessRate(records []types.PeerInteractionRecord) float64 {
	ok := 0
	for _, r := range records {
		if r.Success {
			ok++
		}
	}
	return SuccessRate(ok, len(records))
}

// BaseScore 基础分
func BaseScore(successRate, reputation float64) float64 {
	return clamp01(successRate)*SuccessWeight + clamp01(reputation)*ReputationWeight
}

// TimeDecay 时间衰减系数 0.95^days，days < 0 视为 0
func TimeDecay(days float64) float64 {
	if days <= 0 {
		return 1
	}
	return math.Pow(DecayFactor, days)
}

// DaysSince 距 last 的天数（小数）
func DaysSince(now, last time.Time) float64 {
	if last.IsZero() || !now.After(last) {
		return 0
	}
	return now.Sub(last).Hours() / 24
}

// GeographicBonus 地理加分
func GeographicBonus(maxDistanceKm, distanceKm float64) float64 {
	if maxDistanceKm <= 0 || distanceKm < 0 {
		return 0
	}
	return math.Max(0, (maxDistanceKm-distanceKm)/maxDistanceKm) * GeographicWeight
}

// InterestBonus 兴趣加分
func InterestBonus(shared, total int) float64 {
	if total <= 0 || shared <= 0 {
		return 0
	}
	if shared > total {
		shared = total
	}
	return float64(shared) / float64(total) * InterestWeight
}

// UpdateReliability 可靠性 EMA：(1-α)·r + α·outcome
func UpdateReliability(current float64, success bool) float64 {
	outcome := 0.0
	if success {
		outcome = 1.0
	}
	return clamp01((1-ReliabilityAlpha)*current + ReliabilityAlpha*outcome)
}

// UpdateResponseTime 响应时间 EMA：0.8·avg + 0.2·ms，首个样本直接采用
func UpdateResponseTime(current, measuredMs float64) float64 {
	if measuredMs <= 0 {
		return current
	}
	if current <= 0 {
		return measuredMs
	}
	return (1-ResponseTimeWeight)*current + ResponseTimeWeight*measuredMs
}

// SharedInterests 计算交集与并集大小，交集按 local 的顺序返回
func SharedInterests(local, remote []string) (shared []string, union int) {
	local = types.NormalizeInterests(local)
	remote = types.NormalizeInterests(remote)
	set := make(map[string]struct{}, len(remote))
	for _, v := range remote {
		set[v] = struct{}{}
	}
	union = len(remote)
	for _, v := range local {
		if _, ok := set[v]; ok {
			shared = append(shared, v)
		} else {
			union++
		}
	}
	return shared, union
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
