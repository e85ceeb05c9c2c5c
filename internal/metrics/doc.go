// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 metrics 提供基于 Prometheus 的会话运行时指标采集能力，覆盖
补全请求、工具调用与对话轮次三个维度。

# 概述

Collector 通过 promauto.With 在调用方注入的 Registerer 上注册指标，
测试可以为每个用例使用独立的 prometheus.NewRegistry()。nil Collector
是合法值，所有记录方法均为空操作。

# 主要能力

  - LLM 指标：请求总数、请求耗时、Token 用量（prompt/completion），
    按 provider/model/status 分组。
  - 工具指标：调用次数与耗时，按 tool/outcome 分组。
  - 会话指标：对话轮次结果计数，以及 function calling 降级次数。
*/
package metrics
