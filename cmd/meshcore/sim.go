package main

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/dep2p/meshcore/config"
	"github.com/dep2p/meshcore/internal/discovery/topic"
	"github.com/dep2p/meshcore/internal/transport/memory"
	"github.com/dep2p/meshcore/pkg/types"
)

// simSeeds 模拟网络中作为种子的节点数
const simSeeds = 3

// ============================================================================
//                              进程内模拟网络
// ============================================================================

// simulation 进程内模拟网络
//
// 所有模拟节点加入本节点命名空间下的发现主题，前 simSeeds 个节点写入种子列表。
type simulation struct {
	net    *memory.Network
	self   *memory.Transport
	topics []types.TopicID
	next   int
}

func newSimulation(cfg *config.Config, peers int) *simulation {
	s := &simulation{
		net: memory.NewNetwork(),
		topics: topic.GenerateTopics(types.SearchCriteria{
			Namespace: cfg.Node.Namespace,
			Interests: cfg.Node.Interests,
		}, cfg.Discovery.LocationGridDegrees),
	}
	s.self = s.net.AddPeer("self", nil)

	seeds := make([]string, 0, simSeeds)
	for i := 0; i < peers; i++ {
		id := s.addPeer()
		if i < simSeeds {
			seeds = append(seeds, fmt.Sprintf("%s@/memory/%s", id, id))
		}
	}
	if len(cfg.Bootstrap.Nodes) == 0 {
		cfg.Bootstrap.Nodes = seeds
	}
	logger.Info("模拟网络就绪", "peers", peers, "seeds", len(seeds), "topics", len(s.topics))
	return s
}

// addPeer 添加模拟节点并加入发现主题
func (s *simulation) addPeer() types.PeerID {
	id := types.PeerID(fmt.Sprintf("sim-%d", s.next))
	s.next++
	t := s.net.AddPeer(id, nil)
	for _, tp := range s.topics {
		_ = t.DHT().Join(context.Background(), tp)
	}
	return id
}

// churn 周期性让一个随机节点崩溃并加入一个新节点
func (s *simulation) churn(ctx context.Context, interval time.Duration) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano())) //nolint:gosec // 模拟用随机数
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var candidates []types.PeerID
			for _, id := range s.net.Peers() {
				if id != s.self.LocalPeer() && s.net.Reachable(id) {
					candidates = append(candidates, id)
				}
			}
			if len(candidates) == 0 {
				continue
			}
			victim := candidates[rng.Intn(len(candidates))]
			s.net.Crash(victim)
			added := s.addPeer()
			fmt.Printf("🔀 模拟变动: %s 崩溃, %s 加入\n", victim, added)
		}
	}
}
