// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 llm 提供与 OpenAI 兼容聊天补全端点交互所需的统一类型。

# 概述

本包定义会话层与 Provider 之间的契约：消息、工具声明、工具调用、
同步响应与流式分片，以及带 HTTP 状态和可重试标记的 [Error]。

# 核心接口

  - [Provider]：Completion / Stream / HealthCheck / Name /
    SupportsNativeFunctionCalling

# 核心类型

  - [ChatRequest] / [ChatResponse]：聊天请求与响应
  - [StreamChunk]：流式输出分片，中途失败通过 Err 字段传递
  - [ToolSchema] / [ToolCall]：工具声明与模型发起的调用
  - [Error]：统一错误，[IsBadRequest] 用于能力降级判断，
    [IsRetryable] 用于瞬时失败重试

具体实现见 llm/providers/openaicompat。
*/
package llm
