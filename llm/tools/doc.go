/*
包 tools 提供工具注册中心与执行器。

本地函数与远程操作工具共用一个命名空间，按注册顺序向模型广播。
Executor 负责按名称解析、超时控制、可选限流与 panic 恢复，
同一批调用的结果始终按请求顺序返回。
*/
package tools
