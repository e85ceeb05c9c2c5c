package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/twinchat/internal/telemetry"
	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/middleware"
	"github.com/BaSui01/twinchat/llm/tools"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultMaxToolSteps 单轮最多的模型往返次数
const DefaultMaxToolSteps = 8

var (
	// ErrStepLimit 工具往返次数超过上限
	ErrStepLimit = errors.New("conversation: tool step limit reached")
	// ErrSessionClosed 会话已关闭
	ErrSessionClosed = errors.New("conversation: session closed")
	// ErrStreamInterrupted 流式输出中途失败，已收到的文本保留为回复
	ErrStreamInterrupted = errors.New("conversation: stream interrupted")
)

// Capability 会话的能力状态，随每轮传入并返回。
// FunctionCalling 在会话内只会从 true 变为 false。
type Capability struct {
	FunctionCalling bool
}

// TokenSink 按到达顺序接收流式文本增量
type TokenSink func(delta string)

// TurnResult 一轮对话的结果
type TurnResult struct {
	// Content 最终回复（已去除首尾空白）
	Content string
	// NoResponse 模型没有返回可显示的文本
	NoResponse bool
	// ToolCalls 本轮执行的工具调用数
	ToolCalls int
	// Steps 本轮的模型请求次数（不含降级重试）
	Steps int
	// FellBack 本轮发生了 function calling 降级
	FellBack bool
	// Err 本轮失败或流式中断的原因
	Err error
}

// State 编排器状态
type State int32

const (
	StateIdle State = iota
	StateAwaitingModel
	StateStreaming
	StateToolDispatch
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingModel:
		return "awaiting_model"
	case StateStreaming:
		return "streaming"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Observer 接收会话级指标，internal/metrics.Collector 满足该接口
type Observer interface {
	RecordTurn(outcome string)
	RecordCapabilityFallback()
}

// Config 编排器配置
type Config struct {
	Model        string
	SystemPrompt string
	MaxToolSteps int
	Stream       bool
	Temperature  float32
	MaxTokens    int
	Window       Window
}

// Option 编排器可选项
type Option func(*Orchestrator)

// WithMiddleware 在默认的 recovery/logging 之后追加补全中间件（metrics、tracing 等）
func WithMiddleware(m ...middleware.Middleware) Option {
	return func(o *Orchestrator) { o.extra = append(o.extra, m...) }
}

// WithTracer 设置 tracer，默认使用全局 tracer
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) { o.tracer = t }
}

// WithObserver 设置指标观察者
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithSessionID 指定会话 ID，默认随机生成
func WithSessionID(id string) Option {
	return func(o *Orchestrator) { o.sessionID = id }
}

// Orchestrator 驱动一个会话：维护历史、请求模型、分发工具调用并处理能力降级。
// 同一时刻只处理一轮。
type Orchestrator struct {
	provider llm.Provider
	registry *tools.Registry
	executor *tools.Executor
	cfg      Config
	logger   *zap.Logger
	tracer   trace.Tracer
	observer Observer
	extra    []middleware.Middleware

	handler   middleware.Handler
	history   *History
	sessionID string

	turnMu sync.Mutex
	mu     sync.RWMutex
	state  State
}

// NewOrchestrator 创建编排器。registry 与 executor 可以为 nil，此时不声明任何工具。
func NewOrchestrator(provider llm.Provider, registry *tools.Registry, executor *tools.Executor, cfg Config, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxToolSteps <= 0 {
		cfg.MaxToolSteps = DefaultMaxToolSteps
	}
	if cfg.Window == nil {
		cfg.Window = UnboundedWindow{}
	}
	if executor == nil && registry != nil {
		executor = tools.NewExecutor(registry, logger)
	}

	o := &Orchestrator{
		provider: provider,
		registry: registry,
		executor: executor,
		cfg:      cfg,
		history:  NewHistory(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.sessionID == "" {
		o.sessionID = uuid.NewString()
	}
	if o.tracer == nil {
		o.tracer = telemetry.Tracer()
	}
	o.logger = logger.With(zap.String("component", "conversation"), zap.String("session_id", o.sessionID))

	chain := middleware.NewChain(
		middleware.RecoveryMiddleware(func(r any) {
			o.logger.Error("completion panicked", zap.Any("panic", r))
		}),
		middleware.LoggingMiddleware(logger),
	)
	for _, m := range o.extra {
		chain.Use(m)
	}
	o.handler = chain.Then(provider.Completion)
	return o
}

// SessionID 返回会话 ID
func (o *Orchestrator) SessionID() string { return o.sessionID }

// History 返回会话历史
func (o *Orchestrator) History() *History { return o.history }

// State 返回当前状态
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateClosed {
		o.state = s
	}
}

// Close 结束会话，之后的 RunTurn 返回 ErrSessionClosed
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.state = StateClosed
}

// InitialCapability 根据 provider 声明与配置给出初始能力
func (o *Orchestrator) InitialCapability(disableTools bool) Capability {
	return Capability{FunctionCalling: !disableTools && o.provider.SupportsNativeFunctionCalling()}
}

// RunTurn 处理一轮用户输入。失败时历史回滚到用户消息之后；
// 返回的 Capability 供下一轮使用。
func (o *Orchestrator) RunTurn(ctx context.Context, capability Capability, input string, sink TokenSink) (TurnResult, Capability) {
	o.turnMu.Lock()
	defer o.turnMu.Unlock()

	if o.State() == StateClosed {
		return TurnResult{Err: ErrSessionClosed}, capability
	}

	ctx, span := o.tracer.Start(ctx, "conversation.turn",
		trace.WithAttributes(
			attribute.String("session.id", o.sessionID),
			attribute.Bool("llm.function_calling", capability.FunctionCalling),
		))
	defer span.End()

	start := time.Now()
	o.history.Append(llm.Message{Role: llm.RoleUser, Content: input})
	mark := o.history.Len()

	result := o.runSteps(ctx, &capability, sink, mark)
	o.setState(StateIdle)

	outcome := turnOutcome(result)
	if o.observer != nil {
		o.observer.RecordTurn(outcome)
	}
	span.SetAttributes(
		attribute.String("turn.outcome", outcome),
		attribute.Int("turn.tool_calls", result.ToolCalls),
	)
	if result.Err != nil {
		span.RecordError(result.Err)
		span.SetStatus(codes.Error, result.Err.Error())
		o.logger.Warn("turn failed",
			zap.String("outcome", outcome),
			zap.Duration("duration", time.Since(start)),
			zap.Error(result.Err))
	} else {
		o.logger.Debug("turn completed",
			zap.String("outcome", outcome),
			zap.Int("steps", result.Steps),
			zap.Int("tool_calls", result.ToolCalls),
			zap.Duration("duration", time.Since(start)))
	}
	return result, capability
}

func turnOutcome(r TurnResult) string {
	switch {
	case errors.Is(r.Err, ErrStreamInterrupted):
		return "interrupted"
	case errors.Is(r.Err, ErrStepLimit):
		return "step_limit"
	case r.Err != nil:
		return "error"
	case r.NoResponse:
		return "no_response"
	default:
		return "success"
	}
}

func (o *Orchestrator) runSteps(ctx context.Context, capability *Capability, sink TokenSink, mark int) TurnResult {
	var result TurnResult
	fail := func(err error) TurnResult {
		o.history.Truncate(mark)
		result.Err = err
		return result
	}

	for {
		if result.Steps >= o.cfg.MaxToolSteps {
			return fail(fmt.Errorf("%w (%d)", ErrStepLimit, o.cfg.MaxToolSteps))
		}
		result.Steps++

		msg, fellBack, err := o.requestStep(ctx, capability, sink)
		if fellBack {
			result.FellBack = true
		}
		if err != nil {
			if errors.Is(err, ErrStreamInterrupted) {
				if text := strings.TrimSpace(msg.Content); text != "" {
					o.history.Append(llm.Message{Role: llm.RoleAssistant, Content: text})
					result.Content = text
					result.Err = err
					return result
				}
			}
			return fail(err)
		}

		if len(msg.ToolCalls) > 0 && capability.FunctionCalling && o.executor != nil {
			calls := ensureCallIDs(msg.ToolCalls)
			o.history.Append(llm.Message{Role: llm.RoleAssistant, Content: msg.Content, ToolCalls: calls})
			for _, res := range o.dispatch(ctx, calls) {
				o.history.Append(res.ToMessage())
			}
			result.ToolCalls += len(calls)
			continue
		}

		text := strings.TrimSpace(msg.Content)
		if text == "" {
			result.NoResponse = true
			return result
		}
		o.history.Append(llm.Message{Role: llm.RoleAssistant, Content: text})
		result.Content = text
		return result
	}
}

// requestStep 发起一次模型请求；function calling 被 400 拒绝时降级并重试一次。
func (o *Orchestrator) requestStep(ctx context.Context, capability *Capability, sink TokenSink) (llm.Message, bool, error) {
	msg, err := o.request(ctx, *capability, sink)
	if err == nil || !capability.FunctionCalling || !llm.IsBadRequest(err) || errors.Is(err, ErrStreamInterrupted) {
		return msg, false, err
	}

	o.logger.Warn("endpoint rejected function calling, disabling tools for this session", zap.Error(err))
	capability.FunctionCalling = false
	if o.observer != nil {
		o.observer.RecordCapabilityFallback()
	}
	trace.SpanFromContext(ctx).AddEvent("function_calling.disabled")

	msg, err = o.request(ctx, *capability, sink)
	return msg, true, err
}

func (o *Orchestrator) request(ctx context.Context, capability Capability, sink TokenSink) (llm.Message, error) {
	if err := ctx.Err(); err != nil {
		return llm.Message{}, err
	}
	req := o.buildRequest(capability)
	o.setState(StateAwaitingModel)
	if o.cfg.Stream {
		return o.stream(ctx, req, sink)
	}

	resp, err := o.handler(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	if resp == nil || len(resp.Choices) == 0 {
		return llm.Message{Role: llm.RoleAssistant}, nil
	}
	return resp.Choices[0].Message, nil
}

func (o *Orchestrator) buildRequest(capability Capability) *llm.ChatRequest {
	history := o.cfg.Window.Select(o.history.Messages())
	messages := make([]llm.Message, 0, len(history)+1)
	if strings.TrimSpace(o.cfg.SystemPrompt) != "" {
		messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: o.cfg.SystemPrompt})
	}
	messages = append(messages, history...)

	req := &llm.ChatRequest{
		TraceID:     o.sessionID,
		Model:       o.cfg.Model,
		Messages:    messages,
		MaxTokens:   o.cfg.MaxTokens,
		Temperature: o.cfg.Temperature,
	}
	if capability.FunctionCalling && o.registry != nil && o.registry.Len() > 0 {
		req.Tools = o.registry.Schemas()
		req.ToolChoice = "auto"
	}
	return req
}

// stream 消费流式输出：文本增量依序交给 sink 并累积，工具调用增量按 index 拼装。
func (o *Orchestrator) stream(ctx context.Context, req *llm.ChatRequest, sink TokenSink) (llm.Message, error) {
	ch, err := o.provider.Stream(ctx, req)
	if err != nil {
		return llm.Message{}, err
	}
	o.setState(StateStreaming)

	var content strings.Builder
	calls := newToolCallAssembler()
	for {
		select {
		case <-ctx.Done():
			go drain(ch)
			return llm.Message{Role: llm.RoleAssistant, Content: content.String()},
				fmt.Errorf("%w: %w", ErrStreamInterrupted, ctx.Err())
		case chunk, ok := <-ch:
			if !ok {
				return llm.Message{
					Role:      llm.RoleAssistant,
					Content:   content.String(),
					ToolCalls: calls.calls(),
				}, nil
			}
			if chunk.Err != nil {
				go drain(ch)
				return llm.Message{Role: llm.RoleAssistant, Content: content.String()},
					fmt.Errorf("%w: %w", ErrStreamInterrupted, chunk.Err)
			}
			if d := chunk.Delta.Content; d != "" {
				content.WriteString(d)
				if sink != nil {
					sink(d)
				}
			}
			calls.add(chunk.Delta.ToolCalls)
		}
	}
}

func drain(ch <-chan llm.StreamChunk) {
	for range ch {
	}
}

func (o *Orchestrator) dispatch(ctx context.Context, calls []llm.ToolCall) []tools.ToolResult {
	o.setState(StateToolDispatch)
	names := make([]string, len(calls))
	for i, c := range calls {
		names[i] = c.Name
	}
	ctx, span := o.tracer.Start(ctx, "tool.invoke",
		trace.WithAttributes(
			attribute.StringSlice("tool.names", names),
			attribute.Int("tool.count", len(calls)),
		))
	defer span.End()

	results := o.executor.Execute(ctx, calls)
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}
	span.SetAttributes(attribute.Int("tool.failed", failed))
	o.logger.Debug("tool calls dispatched", zap.Strings("tools", names), zap.Int("failed", failed))
	return results
}

// ensureCallIDs 为缺少 ID 的调用补上合成 ID，tool 消息需要据此关联
func ensureCallIDs(calls []llm.ToolCall) []llm.ToolCall {
	out := make([]llm.ToolCall, len(calls))
	for i, c := range calls {
		if strings.TrimSpace(c.ID) == "" {
			c.ID = "call_" + uuid.NewString()
		}
		out[i] = c
	}
	return out
}

// toolCallAssembler 按 index 拼装流式工具调用片段
type toolCallAssembler struct {
	byIndex map[int]*partialCall
}

type partialCall struct {
	id   string
	name string
	args strings.Builder
}

func newToolCallAssembler() *toolCallAssembler {
	return &toolCallAssembler{byIndex: make(map[int]*partialCall)}
}

func (a *toolCallAssembler) add(deltas []llm.ToolCall) {
	for _, d := range deltas {
		p, ok := a.byIndex[d.Index]
		if !ok {
			p = &partialCall{}
			a.byIndex[d.Index] = p
		}
		if p.id == "" {
			p.id = d.ID
		}
		if p.name == "" {
			p.name = d.Name
		}
		p.args.Write(d.Arguments)
	}
}

func (a *toolCallAssembler) calls() []llm.ToolCall {
	if len(a.byIndex) == 0 {
		return nil
	}
	indexes := make([]int, 0, len(a.byIndex))
	for idx := range a.byIndex {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)

	out := make([]llm.ToolCall, 0, len(indexes))
	for _, idx := range indexes {
		p := a.byIndex[idx]
		args := p.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out = append(out, llm.ToolCall{
			Index:     idx,
			ID:        p.id,
			Name:      p.name,
			Arguments: []byte(args),
		})
	}
	return out
}
