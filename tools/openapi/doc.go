// Copyright 2025-2026 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by the project license.

/*
# 概述

Package openapi 把 OpenAPI 3.x JSON 文档缩减、清理并转换为远程工具清单。

所有变换都作用于 jsontree.Value，返回新树而不修改输入，
成员顺序保持原文档顺序，输出可确定复现。

# 核心接口/类型

  - Reduce / SelectOperations — 按 METHOD /path 选择操作，其余 path 与方法丢弃
  - SanitizeSchemas / SanitizeDocument — schema 名称清理与全文档 $ref 改写
  - ReferenceMap — 原名到新名的有序双射
  - PruneUnreachableSchemas — 可选的可达性裁剪，默认关闭
  - Generator — 加载文档（文件或 URL，带缓存）并生成 GeneratedTool

# 主要能力

  - 冲突处理：重名按 _2、_3… 追加后缀，名称不超过 128 个字符
  - 回退：选择器无匹配时使用完整文档，仍然执行清理
  - 参数映射：query / path 参数展开为工具参数 Schema，$ref 最多内联 4 层
  - 安全传输：URL 加载使用 tlsutil.SecureHTTPClient
*/
package openapi
