// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
包 conversation 提供单会话的对话编排：历史管理、模型请求、工具调用分发
以及 function calling 的运行时降级。

# 概述

[Orchestrator] 一次处理一轮输入。每轮先追加用户消息，再按窗口选取历史
发给模型；模型返回工具调用时经 tools.Executor 执行，结果按请求顺序写回
历史并继续请求，直到得到文本回复或达到 MaxToolSteps。

# 能力降级

[Capability] 随每轮传入与返回。端点以 HTTP 400 拒绝带工具的请求时，
本会话关闭 function calling，并在不带工具的情况下重试同一步一次；
流式请求在建立阶段被拒绝时同样处理。

# 流式输出

文本增量按到达顺序交给 [TokenSink]，工具调用片段按 index 拼装。
中途失败时已收到的文本作为回复写入历史，错误通过
TurnResult.Err 返回并包装 [ErrStreamInterrupted]。

# 历史

[History] 默认不截断；[Window] 只决定发送哪些消息，
[LastNWindow] 为可选的滑动窗口。失败的一轮回滚到用户消息之后。

# 控制台

[Console] 为行式 REPL，exit 或 EOF 结束会话。
*/
package conversation
