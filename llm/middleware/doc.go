// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 middleware 提供补全请求的中间件链与请求改写器链。

# 核心接口

  - Handler：func(ctx, *ChatRequest) (*ChatResponse, error)
  - Middleware：func(Handler) Handler
  - Chain：中间件链，Use / Then 组合，第一个中间件位于最外层
  - RequestRewriter / RewriterChain：请求发送前的参数清理

# 内置中间件

  - RecoveryMiddleware：捕获 panic 并转为 *PanicError
  - LoggingMiddleware：zap 记录模型、消息数、工具数、耗时与 token
  - MetricsMiddleware：按 provider/model/status 记录 Prometheus 指标
  - TracingMiddleware：为每次补全创建 OpenTelemetry span
  - TimeoutMiddleware：为请求添加 context 超时
  - EmptyToolsCleaner：未声明工具时去掉 tool_choice
*/
package middleware
