// 版权所有 2024 AgentFlow Authors. 版权所有。
// 此源代码的使用由 MIT 许可规范,该许可可以是
// 在LICENSE文件中找到。

/*
twinchat 是控制台对话客户端。

启动时加载 .env 与环境变量（可选 TWINCHAT_CONFIG 指定 YAML），
缺少 LOCAL_LLM_BASE_URL、LOCAL_LLM_API_KEY、LOCAL_LLM_MODEL 时以
退出码 1 结束。随后注册本地 get_weather 工具与远程对象查询工具
（由 OPENAPI_PATH 指定的文档生成，或使用内置的两个查询工具），
打印已注册的函数并进入 REPL，输入 exit 或 EOF 结束。

配置 METRICS_ADDR 时在该地址暴露 Prometheus /metrics。

用法:

	twinchat
	twinchat version
*/
package main
