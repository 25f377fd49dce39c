package storage

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/meshcore/pkg/interfaces"
	"github.com/dep2p/meshcore/pkg/lib/log"
)

var logger = log.Logger("core/storage")

// Engine BadgerDB 存储引擎
type Engine struct {
	db  *badger.DB
	cfg Config

	closed atomic.Bool

	gcCtx    context.Context
	gcCancel context.CancelFunc
	gcWg     sync.WaitGroup
	gcOnce   sync.Once

	reads  atomic.Int64
	writes atomic.Int64
}

var _ interfaces.Engine = (*Engine)(nil)

// Open 打开存储引擎
func Open(cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o755); err != nil {
			return nil, err
		}
		opts = badger.DefaultOptions(cfg.Path).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{db: db, cfg: cfg, gcCtx: ctx, gcCancel: cancel}, nil
}

// Start 启动后台垃圾回收
func (e *Engine) Start() error {
	if e.closed.Load() {
		return ErrClosed
	}
	if e.cfg.GCInterval <= 0 {
		return nil
	}
	e.gcOnce.Do(func() {
		e.gcWg.Add(1)
		go e.gcLoop()
	})
	return nil
}

func (e *Engine) gcLoop() {
	defer e.gcWg.Done()

	ticker := time.NewTicker(e.cfg.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.gcCtx.Done():
			return
		case <-ticker.C:
			// 运行 GC 直到没有更多可回收的空间
			for !e.closed.Load() {
				if err := e.db.RunValueLogGC(e.cfg.GCDiscardRatio); err != nil {
					break
				}
			}
		}
	}
}

// Get 获取指定键的值
func (e *Engine) Get(key []byte) ([]byte, error) {
	if e.closed.Load() {
		return nil, ErrClosed
	}
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}

	var value []byte
	err := e.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	e.reads.Add(1)
	if err != nil {
		return nil, convertError(err)
	}
	return value, nil
}

// Put 设置键值对
func (e *Engine) Put(key, value []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	err := e.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err == nil {
		e.writes.Add(1)
	}
	return convertError(err)
}

// Delete 删除指定键
func (e *Engine) Delete(key []byte) error {
	if e.closed.Load() {
		return ErrClosed
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}
	return convertError(e.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	}))
}

// Has 检查键是否存在
func (e *Engine) Has(key []byte) (bool, error) {
	_, err := e.Get(key)
	if err == nil {
		return true, nil
	}
	if IsNotFound(err) {
		return false, nil
	}
	return false, err
}

// ForEach 遍历前缀下的键值对
func (e *Engine) ForEach(prefix []byte, fn func(key, value []byte) error) error {
	if e.closed.Load() {
		return ErrClosed
	}
	return e.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(item.KeyCopy(nil), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Stats 读写计数
func (e *Engine) Stats() (reads, writes int64) {
	return e.reads.Load(), e.writes.Load()
}

// Close 关闭存储引擎
func (e *Engine) Close() error {
	if e.closed.Swap(true) {
		return nil
	}
	e.gcCancel()
	e.gcWg.Wait()
	if err := e.db.Close(); err != nil {
		logger.Warn("关闭 BadgerDB 失败", "error", err)
		return err
	}
	return nil
}

// convertError 转换 BadgerDB 错误
func convertError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return ErrNotFound
	case errors.Is(err, badger.ErrEmptyKey):
		return ErrEmptyKey
	case errors.Is(err, badger.ErrDBClosed):
		return ErrClosed
	default:
		return err
	}
}
