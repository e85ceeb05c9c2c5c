// Package tlsutil 提供集中式出站 HTTP 客户端构建，
// 为补全端点、远程对象查询接口与 OAuth 令牌端点共享连接池（TLS 1.2+，仅 AEAD 密码套件）。
package tlsutil
