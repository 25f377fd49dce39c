// Package interfaces 定义 meshcore 的公共接口
//
// # 外部协作者（由传输适配器实现）
//
//   - transport.go - Transport / Connection / Stream / Pinger
//   - dht.go       - 主题发现基座（join / leave / find）
//   - storage.go   - 存储引擎
//
// # 组件间契约
//
//   - recovery.go  - CandidateSource / FallbackTrigger / Remedies
//
// 组件之间只通过这些接口调用，不共享内部状态。
package interfaces
