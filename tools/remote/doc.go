/*
Package remote 执行远程对象查询 API 的 GET 操作。

参数 JSON 被展开为查询串（键序与数组顺序保持不变），
结果无论成功、上游错误还是本地失败都归一化为 Envelope。
调用器不重试；令牌通过 golang.org/x/oauth2 的 TokenSource 提供。
*/
package remote
