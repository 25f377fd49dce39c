package bootstrap

import (
	"encoding/json"

	"github.com/dep2p/meshcore/internal/core/storage"
	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/types"
)

// seedKeyPrefix 种子记录的存储前缀
const seedKeyPrefix = "b/s/"

// seedStore 种子记录持久化
//
// 只保存由引擎更新的字段，种子本身始终以配置为准。
type seedStore struct {
	store *storage.Store
}

func newSeedStore(eng interfaces.Engine) *seedStore {
	if eng == nil {
		return nil
	}
	return &seedStore{store: storage.NewStore(eng, seedKeyPrefix)}
}

// save 保存一条种子记录
func (s *seedStore) save(rec types.BootstrapNodeRecord) error {
	if s == nil {
		return nil
	}
	return s.store.PutJSON(string(rec.ID), rec)
}

// load 加载所有种子记录
func (s *seedStore) load() (map[types.PeerID]types.BootstrapNodeRecord, error) {
	out := make(map[types.PeerID]types.BootstrapNodeRecord)
	if s == nil {
		return out, nil
	}
	err := s.store.ForEach(func(key string, value []byte) error {
		var rec types.BootstrapNodeRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			logger.Debug("跳过无法解析的种子记录", "key", key, "error", err)
			return nil
		}
		out[types.PeerID(key)] = rec
		return nil
	})
	return out, err
}
