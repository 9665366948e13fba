// 此文件不含代码。llm 包及其子包中没有响应缓存实现（模块中没有 llm/cache/
// 子包）；唯一的请求级存储是 llm/idempotency 中的进程内幂等管理器。
package llm
