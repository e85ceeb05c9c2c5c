// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 server 管理后台指标服务的生命周期。

[Manager] 封装 net/http.Server：Start 非阻塞启动，Shutdown 在超时内
优雅关闭且可重复调用，Errors 返回异步错误。[MetricsHandler] 暴露
Prometheus 的 /metrics 与 /healthz。
*/
package server
