package middleware

import (
	"context"
	"fmt"

	"github.com/BaSui01/twinchat/llm"
)

// RequestRewriter 请求改写器接口
// 在请求发送到上游端点之前进行参数清理和转换。实现不得修改传入的请求，
// 需要改动时返回副本。
type RequestRewriter interface {
	Rewrite(ctx context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error)

	// Name 返回改写器名称（用于日志和错误信息）
	Name() string
}

// RewriterChain 按顺序执行多个改写器
type RewriterChain struct {
	rewriters []RequestRewriter
}

// NewRewriterChain 创建改写器链
func NewRewriterChain(rewriters ...RequestRewriter) *RewriterChain {
	return &RewriterChain{rewriters: rewriters}
}

// Execute 执行改写器链，任何一个失败则中断并返回错误
func (c *RewriterChain) Execute(ctx context.Context, req *llm.ChatRequest) (*llm.ChatRequest, error) {
	if c == nil || len(c.rewriters) == 0 {
		return req, nil
	}

	var err error
	for _, rewriter := range c.rewriters {
		req, err = rewriter.Rewrite(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("rewriter [%s] failed: %w", rewriter.Name(), err)
		}
	}

	return req, nil
}

// AddRewriter 动态添加改写器
func (c *RewriterChain) AddRewriter(rewriter RequestRewriter) {
	c.rewriters = append(c.rewriters, rewriter)
}

// Len 返回改写器数量
func (c *RewriterChain) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rewriters)
}
