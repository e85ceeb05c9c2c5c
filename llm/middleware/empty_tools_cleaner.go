package middleware

import (
	"context"

	"github.com/BaSui01/twinchat/llm"
)

// EmptyToolsCleaner 在没有声明任何工具时去掉 tool_choice。
// 函数调用被降级后请求不再携带 tools，部分端点对孤立的 tool_choice 返回 400。
type EmptyToolsCleaner struct{}

// NewEmptyToolsCleaner 创建空工具清理器
func NewEmptyToolsCleaner() *EmptyToolsCleaner {
	return &EmptyToolsCleaner{}
}

// Name 返回改写器名称
func (r *EmptyToolsCleaner) Name() string {
	return "empty_tools_cleaner"
}

// Rewrite 执行改写；需要改动时返回浅拷贝
func (r *EmptyToolsCleaner) Rewrite(_ context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if req == nil || len(req.Tools) > 0 || req.ToolChoice == "" {
		return req, nil
	}
	out := *req
	out.Tools = nil
	out.ToolChoice = ""
	return &out, nil
}
