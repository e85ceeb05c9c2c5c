// Copyright 2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

包 providers 提供 OpenAI 兼容补全端点的公共基础层：线路格式结构体、
请求/响应转换、错误映射、重试包装以及请求日志 RoundTripper。
具体的 HTTP 客户端实现位于 openaicompat 子包。

# 核心类型

  - OpenAICompat* 系列 — 请求/响应/工具调用的线路结构体，
    工具调用参数在线路上是 JSON 文本字符串
  - RetryableProvider — 只重试 Retryable 错误的 Provider 包装器
  - LoggingTransport — 以 debug 级别记录方法、URL、Content-Type、
    请求体前 800 个字符与响应状态

# 核心函数

  - MapHTTPError — 将 HTTP 状态码映射为 llm.Error（400 保留原状态码，供能力降级判断）
  - ConvertMessagesToOpenAI / ConvertToolsToOpenAI / ConvertToolCallsFromOpenAI
  - ToLLMChatResponse — 线路响应到 llm.ChatResponse 的转换
  - ChooseModel — 按优先级选择模型（请求 > 默认 > 兜底）
*/
package providers
