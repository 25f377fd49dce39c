package storage

import (
	"encoding/json"

	"github.com/dep2p/meshcore/pkg/interfaces"
)

// Store 带前缀隔离的 KV 存储
//
// 为所有键自动添加前缀，实现组件间的数据命名空间隔离。
type Store struct {
	engine interfaces.Engine
	prefix []byte
}

// NewStore 创建带前缀的 Store
func NewStore(eng interfaces.Engine, prefix string) *Store {
	return &Store{engine: eng, prefix: []byte(prefix)}
}

func (s *Store) key(k string) []byte {
	out := make([]byte, 0, len(s.prefix)+len(k))
	out = append(out, s.prefix...)
	return append(out, k...)
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key string, v any) error {
	data, err := s.engine.Get(s.key(key))
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// PutJSON 序列化并存储 JSON 值
func (s *Store) PutJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.engine.Put(s.key(key), data)
}

// Delete 删除键
func (s *Store) Delete(key string) error {
	return s.engine.Delete(s.key(key))
}

// ForEach 遍历本前缀下的所有键值对，传入的 key 已去掉前缀
func (s *Store) ForEach(fn func(key string, value []byte) error) error {
	return s.engine.ForEach(s.prefix, func(k, v []byte) error {
		return fn(string(k[len(s.prefix):]), v)
	})
}
