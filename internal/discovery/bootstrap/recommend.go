package bootstrap

import (
	"sort"

	"github.com/dep2p/meshcore/pkg/types"
)

// 推荐理由
const (
	ReasonReliable        = "reliable_connections"
	ReasonRecentlySeen    = "recently_seen"
	ReasonNearby          = "nearby"
	ReasonSharedInterests = "shared_interests"
	ReasonBootstrapSeed   = "bootstrap_seed"
)

// RecommendOptions 推荐选项
type RecommendOptions struct {
	// Limit 结果上限，<= 0 时使用 MaxRecommendations
	Limit int

	// Profile 覆盖引擎的本节点画像
	Profile *types.LocalProfile

	// Exclude 返回 true 的节点不参与推荐
	Exclude func(types.PeerID) bool

	// RequireAddrs 只推荐有地址的节点
	RequireAddrs bool
}

// Recommendations 使用默认选项推荐
func (e *Engine) Recommendations() []types.PeerRecommendation {
	return e.Recommend(RecommendOptions{})
}

// Recommend 对有交互历史的节点打分，按分数降序返回
func (e *Engine) Recommend(opts RecommendOptions) []types.PeerRecommendation {
	limit := opts.Limit
	if limit <= 0 || limit > e.cfg.MaxRecommendations {
		limit = e.cfg.MaxRecommendations
	}
	now := e.clk.Now()

	e.mu.RLock()
	profile := e.profile
	if opts.Profile != nil {
		profile = types.LocalProfile{Location: opts.Profile.Location, Interests: types.NormalizeInterests(opts.Profile.Interests)}
	}
	reputation := e.reputation

	out := make([]types.PeerRecommendation, 0, e.peers.Len())
	for _, id := range e.peers.Keys() {
		h, ok := e.peers.Peek(id)
		if !ok || id == e.self {
			continue
		}
		if opts.Exclude != nil && opts.Exclude(id) {
			continue
		}
		desc := h.desc
		seed, isSeed := e.seeds[id]
		if isSeed && len(desc.Addrs) == 0 {
			desc = mergeDescriptor(seed.Descriptor(), desc)
		}
		if opts.RequireAddrs && len(desc.Addrs) == 0 {
			continue
		}

		rec := types.PeerRecommendation{PeerID: id, GeographicDistanceKm: -1, Descriptor: desc.Clone()}
		ok2, failed, avgLatency := h.connectionStats()
		rec.SuccessfulConnections = ok2
		rec.FailedConnections = failed
		rec.AverageLatencyMs = avgLatency
		if last, has := h.last(); has {
			rec.LastInteraction = last.Timestamp
		}
		if isSeed && seed.LastSeen.After(rec.LastInteraction) {
			rec.LastInteraction = seed.LastSeen
		}

		successRate := SuccessRate(ok2, ok2+failed)
		score := BaseScore(successRate, reputation(id))
		decay := TimeDecay(DaysSince(now, rec.LastInteraction))
		score *= decay

		var geo float64
		if local, remote := profile.Location, desc.Location(); local != nil && remote != nil {
			rec.GeographicDistanceKm = local.DistanceKm(*remote)
			geo = GeographicBonus(e.cfg.MaxDistanceKm, rec.GeographicDistanceKm)
		}
		shared, union := SharedInterests(profile.Interests, desc.Interests())
		rec.SharedInterests = shared
		interest := InterestBonus(len(shared), union)

		rec.Score = clamp01(score + geo + interest)

		if ok2+failed > 0 && successRate >= 0.8 {
			rec.Reasons = append(rec.Reasons, ReasonReliable)
		}
		if !rec.LastInteraction.IsZero() && decay >= 0.9 {
			rec.Reasons = append(rec.Reasons, ReasonRecentlySeen)
		}
		if geo > 0 {
			rec.Reasons = append(rec.Reasons, ReasonNearby)
		}
		if len(shared) > 0 {
			rec.Reasons = append(rec.Reasons, ReasonSharedInterests)
		}
		if isSeed {
			rec.Reasons = append(rec.Reasons, ReasonBootstrapSeed)
		}
		out = append(out, rec)
	}
	e.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].PeerID < out[j].PeerID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
