package types

import (
	"math"
	"strconv"
	"strings"
)

// 已知的元数据键
const (
	// MetaInterests 兴趣标签，逗号分隔
	MetaInterests = "interests"
	// MetaLatitude 纬度
	MetaLatitude = "lat"
	// MetaLongitude 经度
	MetaLongitude = "lon"
	// MetaRegion 区域
	MetaRegion = "region"
	// MetaSource 候选来源（discovery / bootstrap / dns / relay / mdns）
	MetaSource = "source"
)

// ============================================================================
//                              PeerDescriptor
// ============================================================================

// PeerDescriptor 候选节点描述
//
// 由 Discovery / Bootstrap 产生，返回后不可变；需要修改时先 Clone。
type PeerDescriptor struct {
	ID        PeerID
	Addrs     []Address
	Protocols []ProtocolID
	Metadata  map[string]string
}

// NewPeerDescriptor 创建描述（复制入参切片）
func NewPeerDescriptor(id PeerID, addrs []Address, meta map[string]string) PeerDescriptor {
	d := PeerDescriptor{ID: id}
	if len(addrs) > 0 {
		d.Addrs = append([]Address(nil), addrs...)
	}
	if len(meta) > 0 {
		d.Metadata = make(map[string]string, len(meta))
		for k, v := range meta {
			d.Metadata[k] = v
		}
	}
	return d
}

// Clone 深拷贝
func (d PeerDescriptor) Clone() PeerDescriptor {
	c := NewPeerDescriptor(d.ID, d.Addrs, d.Metadata)
	if len(d.Protocols) > 0 {
		c.Protocols = append([]ProtocolID(nil), d.Protocols...)
	}
	return c
}

// Meta 读取元数据
func (d PeerDescriptor) Meta(key string) string {
	if d.Metadata == nil {
		return ""
	}
	return d.Metadata[key]
}

// WithMeta 返回附加了一个元数据键的副本
func (d PeerDescriptor) WithMeta(key, value string) PeerDescriptor {
	c := d.Clone()
	if c.Metadata == nil {
		c.Metadata = make(map[string]string, 1)
	}
	c.Metadata[key] = value
	return c
}

// Interests 解析兴趣标签
func (d PeerDescriptor) Interests() []string {
	return SplitInterests(d.Meta(MetaInterests))
}

// Location 解析坐标，缺失或非法时返回 nil
func (d PeerDescriptor) Location() *GeoPoint {
	lat, err1 := strconv.ParseFloat(d.Meta(MetaLatitude), 64)
	lon, err2 := strconv.ParseFloat(d.Meta(MetaLongitude), 64)
	if err1 != nil || err2 != nil {
		return nil
	}
	p := GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return nil
	}
	return &p
}

// SplitInterests 解析逗号分隔的兴趣标签（小写、去重、去空）
func SplitInterests(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return NormalizeInterests(strings.Split(s, ","))
}

// NormalizeInterests 规范化兴趣标签
func NormalizeInterests(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// ============================================================================
//                              GeoPoint
// ============================================================================

// earthRadiusKm 地球平均半径
const earthRadiusKm = 6371.0

// GeoPoint 地理坐标
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid 检查坐标范围
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// DistanceKm 计算两点间大圆距离（haversine）
func (p GeoPoint) DistanceKm(o GeoPoint) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(o.Lat - p.Lat)
	dLon := toRad(o.Lon - p.Lon)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(p.Lat))*math.Cos(toRad(o.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
