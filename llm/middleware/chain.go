package middleware

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Handler 处理一个请求并返回一个响应.
type Handler func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)

// Middleware 将处理器包裹并添加额外功能.
type Middleware func(next Handler) Handler

// Chain 表示中间件链.
type Chain struct {
	middlewares []Middleware
	mu          sync.RWMutex
}

// NewChain 创建新的中间件链.
func NewChain(middlewares ...Middleware) *Chain {
	return &Chain{middlewares: middlewares}
}

// Use 将中间件添加到链尾.
func (c *Chain) Use(m Middleware) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, m)
	return c
}

// Then 用链中的所有中间件包裹一个处理器，第一个中间件位于最外层.
func (c *Chain) Then(h Handler) Handler {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := len(c.middlewares) - 1; i >= 0; i-- {
		h = c.middlewares[i](h)
	}
	return h
}

// Len 返回链中的中间件数量.
func (c *Chain) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.middlewares)
}

// ====== 内置中间件 ======

// LoggingMiddleware 记录请求模型、消息数、工具数、耗时与 token 用量.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "llm"))
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			start := time.Now()
			logger.Debug("completion request",
				zap.String("model", req.Model),
				zap.Int("messages", len(req.Messages)),
				zap.Int("tools", len(req.Tools)))

			resp, err := next(ctx, req)

			if err != nil {
				logger.Debug("completion failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
			} else {
				logger.Debug("completion done",
					zap.Duration("duration", time.Since(start)),
					zap.Int("total_tokens", resp.Usage.TotalTokens))
			}
			return resp, err
		}
	}
}

// TimeoutMiddleware 对请求添加超时. timeout<=0 时不做处理.
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next Handler) Handler {
		if timeout <= 0 {
			return next
		}
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return next(ctx, req)
		}
	}
}

// MetricsCollector 定义指标收集接口，由 internal/metrics.Collector 实现.
type MetricsCollector interface {
	RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int)
}

// MetricsMiddleware 收集请求耗时、状态与 token 用量.
func MetricsMiddleware(provider string, collector MetricsCollector) Middleware {
	return func(next Handler) Handler {
		if collector == nil {
			return next
		}
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			start := time.Now()
			resp, err := next(ctx, req)

			status := "success"
			var prompt, completion int
			if err != nil {
				status = "error"
			} else if resp != nil {
				prompt, completion = resp.Usage.PromptTokens, resp.Usage.CompletionTokens
			}
			collector.RecordLLMRequest(provider, req.Model, status, time.Since(start), prompt, completion)
			return resp, err
		}
	}
}

// TracingMiddleware 为每个请求创建 span.
func TracingMiddleware(tracer trace.Tracer) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
			ctx, span := tracer.Start(ctx, "llm.completion",
				trace.WithAttributes(
					attribute.String("llm.model", req.Model),
					attribute.Int("llm.messages", len(req.Messages)),
					attribute.Int("llm.tools", len(req.Tools)),
				))
			defer span.End()

			resp, err := next(ctx, req)
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			} else if resp != nil {
				span.SetAttributes(attribute.Int("llm.total_tokens", resp.Usage.TotalTokens))
			}
			return resp, err
		}
	}
}

// RecoveryMiddleware 从 panic 中恢复并转为 *PanicError.
func RecoveryMiddleware(onPanic func(any)) Middleware {
	return func(next Handler) Handler {
		return func(ctx context.Context, req *llm.ChatRequest) (resp *llm.ChatResponse, err error) {
			defer func() {
				if r := recover(); r != nil {
					if onPanic != nil {
						onPanic(r)
					}
					resp, err = nil, &PanicError{Value: r}
				}
			}()
			return next(ctx, req)
		}
	}
}

// PanicError 表示已恢复的 panic.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic recovered: %v", e.Value)
}
