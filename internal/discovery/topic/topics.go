package topic

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dep2p/meshcore/pkg/types"
)

// 主题种类
const (
	kindLocation = "location"
	kindRegion   = "region"
	kindInterest = "interest"
)

// GenerateTopics 将搜索条件映射为主题集合
//
// 纯函数：结果已排序、去重；Namespace 为空时使用 DefaultNamespace，
// gridDegrees <= 0 时使用 1 度网格。
func GenerateTopics(c types.SearchCriteria, gridDegrees float64) []types.TopicID {
	ns := strings.Trim(strings.TrimSpace(c.Namespace), "/")
	if ns == "" {
		ns = DefaultNamespace
	}
	if gridDegrees <= 0 {
		gridDegrees = 1
	}

	set := make(map[types.TopicID]struct{})
	if c.Location != nil && c.Location.Valid() {
		set[topicID(ns, kindLocation, LocationBucket(*c.Location, gridDegrees))] = struct{}{}
	}
	if b := strings.ToLower(strings.TrimSpace(c.LocationBucket)); b != "" {
		set[topicID(ns, kindRegion, b)] = struct{}{}
	}
	for _, tag := range types.NormalizeInterests(c.Interests) {
		set[topicID(ns, kindInterest, tag)] = struct{}{}
	}

	out := make([]types.TopicID, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LocationBucket 返回坐标所在网格的标识
func LocationBucket(p types.GeoPoint, gridDegrees float64) string {
	lat := math.Floor(p.Lat/gridDegrees) * gridDegrees
	lon := math.Floor(p.Lon/gridDegrees) * gridDegrees
	return fmt.Sprintf("%.4f,%.4f", lat, lon)
}

func topicID(ns, kind, value string) types.TopicID {
	sum := sha256.Sum256([]byte(kind + "/" + value))
	return types.TopicID("/" + ns + "/topic/" + hex.EncodeToString(sum[:])[:32])
}

// MergeUnique 按节点 ID 去重合并多个结果列表
//
// 保留首次出现的顺序；limit > 0 时截断。
func MergeUnique(limit int, lists ...[]types.PeerDescriptor) []types.PeerDescriptor {
	seen := make(map[types.PeerID]struct{})
	out := make([]types.PeerDescriptor, 0)
	for _, list := range lists {
		for _, p := range list {
			if p.ID.IsEmpty() {
				continue
			}
			if _, ok := seen[p.ID]; ok {
				continue
			}
			seen[p.ID] = struct{}{}
			out = append(out, p)
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}
