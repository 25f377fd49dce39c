package diagnostics

import "github.com/dep2p/meshcore/pkg/types"

// 健康评分权重
const (
	ConnectivityWeight = 30
	PeerCountWeight    = 30
	DiscoveryWeight    = 20
	IssueBudget        = 20
)

// ScoreInput 健康评分输入
type ScoreInput struct {
	Connected    bool
	PeerCount    int
	TargetPeers  int
	DHTConnected bool
	Issues       []types.Issue
}

// HealthScore 计算 0-100 的健康评分
func HealthScore(in ScoreInput) int {
	score := 0
	if in.Connected {
		score += ConnectivityWeight
	}
	if in.TargetPeers > 0 && in.PeerCount > 0 {
		if in.PeerCount >= in.TargetPeers {
			score += PeerCountWeight
		} else {
			score += PeerCountWeight * in.PeerCount / in.TargetPeers
		}
	}
	if in.DHTConnected {
		score += DiscoveryWeight
	}

	budget := IssueBudget
	for _, is := range in.Issues {
		budget -= is.Severity.Penalty()
	}
	if budget > 0 {
		score += budget
	}

	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	}
	return score
}
