// Package config 提供 twinchat 的配置管理功能。
//
// 配置来源依次为默认值、可选的 YAML 文件（TWINCHAT_CONFIG）和环境变量。
// 环境变量键名由结构体 env tag 拼接而成，例如 LOCAL_LLM_MODEL、
// VMTP_API_OAUTH_TOKEN_URL、OPENAPI_OPERATIONS。
package config
