package types

// SearchCriteria 应用层发现条件
//
// 同一条件总是映射到同一组主题（见 discovery/topic.GenerateTopics）。
type SearchCriteria struct {
	// Namespace 主题命名空间，为空时使用配置的默认命名空间
	Namespace string

	// Location 当前坐标，按网格分桶
	Location *GeoPoint

	// LocationBucket 显式位置桶（如城市编码），与 Location 可同时使用
	LocationBucket string

	// Interests 兴趣标签
	Interests []string
}

// IsEmpty 条件是否为空
func (c SearchCriteria) IsEmpty() bool {
	return c.Location == nil && c.LocationBucket == "" && len(NormalizeInterests(c.Interests)) == 0
}

// LocalProfile 本节点的位置与兴趣，用于推荐打分
type LocalProfile struct {
	Location  *GeoPoint
	Interests []string
}
