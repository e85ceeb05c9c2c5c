package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultToolTimeout 单次工具调用的默认超时
const DefaultToolTimeout = 60 * time.Second

// ToolResult 表示一次工具调用的结果
type ToolResult struct {
	ToolCallID string        `json:"tool_call_id"`
	Name       string        `json:"name"`
	Content    string        `json:"content,omitempty"`
	Error      string        `json:"error,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// Failed 报告调用是否失败
func (r ToolResult) Failed() bool { return r.Error != "" }

// ToMessage 转为以 tool_call_id 关联的 tool 角色消息。
// 失败时内容为 {"error":"..."}，让模型能看到原因。
func (r ToolResult) ToMessage() llm.Message {
	content := r.Content
	if r.Failed() {
		b, _ := json.Marshal(map[string]string{"error": r.Error})
		content = string(b)
	}
	return llm.Message{
		Role:       llm.RoleTool,
		Name:       r.Name,
		Content:    content,
		ToolCallID: r.ToolCallID,
	}
}

// Observer 接收每次调用的结果，internal/metrics.Collector 满足该接口
type Observer interface {
	RecordToolCall(tool, outcome string, duration time.Duration)
}

// Executor 按注册表解析并执行工具调用
type Executor struct {
	registry *Registry
	logger   *zap.Logger

	// MaxConcurrency 同一批调用的最大并发数，<=1 时顺序执行
	MaxConcurrency int
	// DefaultTimeout 工具未声明 Timeout 时使用
	DefaultTimeout time.Duration
	// Observer 可选
	Observer Observer
}

// NewExecutor 创建执行器，默认顺序执行、60s 超时
func NewExecutor(registry *Registry, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry:       registry,
		logger:         logger.With(zap.String("component", "tool_executor")),
		MaxConcurrency: 1,
		DefaultTimeout: DefaultToolTimeout,
	}
}

// Execute 执行一批调用，结果顺序与请求顺序一致。单个调用失败不影响其他调用。
func (e *Executor) Execute(ctx context.Context, calls []llm.ToolCall) []ToolResult {
	results := make([]ToolResult, len(calls))
	if len(calls) == 0 {
		return results
	}

	limit := e.MaxConcurrency
	if limit < 1 {
		limit = 1
	}

	var g errgroup.Group
	g.SetLimit(limit)
	for i, call := range calls {
		g.Go(func() error {
			results[i] = e.ExecuteOne(ctx, call)
			return nil // 失败记录在结果里，不中断其他调用
		})
	}
	_ = g.Wait()

	return results
}

// ExecuteOne 执行单个调用
func (e *Executor) ExecuteOne(ctx context.Context, call llm.ToolCall) (result ToolResult) {
	start := time.Now()
	result = ToolResult{ToolCallID: call.ID, Name: call.Name}

	defer func() {
		if r := recover(); r != nil {
			result.Content = ""
			result.Error = fmt.Sprintf("tool panicked: %v", r)
			e.logger.Error("tool panicked", zap.String("name", call.Name), zap.Any("panic", r))
		}
		result.Duration = time.Since(start)
		if e.Observer != nil {
			outcome := "success"
			if result.Failed() {
				outcome = "error"
			}
			e.Observer.RecordToolCall(call.Name, outcome, result.Duration)
		}
	}()

	def, err := e.registry.Resolve(call.Name)
	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("tool not found", zap.String("name", call.Name))
		return result
	}

	if def.Limiter != nil {
		if err := def.Limiter.Wait(ctx); err != nil {
			result.Error = fmt.Sprintf("rate limit wait: %s", err)
			return result
		}
	}

	timeout := def.Timeout
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	out, err := def.Func(execCtx, call.Arguments)
	if err != nil {
		result.Error = err.Error()
		e.logger.Warn("tool execution failed",
			zap.String("name", call.Name),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return result
	}

	result.Content = out
	e.logger.Debug("tool executed",
		zap.String("name", call.Name),
		zap.Stringer("kind", def.Kind),
		zap.Duration("duration", time.Since(start)))
	return result
}
