// Package dns 实现基于 DNS TXT 记录的种子发现
//
// 引导回退链的第二步：种子节点全部失败后，查询配置域名的
// _dnsaddr.<domain> TXT 记录，解析出节点地址。
//
// # 记录格式
//
//	_dnsaddr.boot.example.com.  300  IN  TXT  "dnsaddr=/ip4/1.2.3.4/tcp/4001/p2p/QmYwAPJzv..."
//	_dnsaddr.boot.example.com.  300  IN  TXT  "dnsaddr=/dnsaddr/eu.boot.example.com"
//
// 嵌套 /dnsaddr/ 引用按 MaxDepth 递归解析，结果按节点 ID 去重。
//
// # 查询
//
// 使用 miekg/dns 直接向配置的 DNS 服务器发 TXT 查询（应答被截断时改用 TCP 重试）；
// 未配置服务器时读取 /etc/resolv.conf，仍不可用时退回系统解析器。
// 结果按 CacheTTL 缓存在过期 LRU 中。
package dns
