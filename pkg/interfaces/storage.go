package interfaces

import "errors"

// ErrNotFound 键不存在
var ErrNotFound = errors.New("storage: key not found")

// Engine 存储引擎基础接口
//
// meshcore 内部使用 BadgerDB 实现（internal/core/storage），
// 调用方可以提供自定义实现来替换默认存储后端。
//
// 线程安全：实现必须保证所有方法的线程安全性。
type Engine interface {
	// Get 获取指定键的值，键不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 设置键值对，覆盖旧值
	Put(key, value []byte) error

	// Delete 删除指定键，键不存在时不返回错误
	Delete(key []byte) error

	// Has 检查键是否存在
	Has(key []byte) (bool, error)

	// ForEach 按键序遍历指定前缀下的键值对，fn 返回错误时停止遍历并返回该错误
	ForEach(prefix []byte, fn func(key, value []byte) error) error

	// Close 关闭存储引擎，多次调用安全
	Close() error
}
