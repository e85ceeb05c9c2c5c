package middleware

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func okHandler(_ context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{
		Model: req.Model,
		Usage: llm.ChatUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil
}

func TestChain_Order(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next Handler) Handler {
			return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
				order = append(order, name)
				return next(ctx, req)
			}
		}
	}

	chain := NewChain(mark("a")).Use(mark("b"))
	assert.Equal(t, 2, chain.Len())

	_, err := chain.Then(okHandler)(context.Background(), &llm.ChatRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, order)
}

func TestRecoveryMiddleware(t *testing.T) {
	var recovered any
	h := RecoveryMiddleware(func(v any) { recovered = v })(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		panic("kaboom")
	})

	resp, err := h(context.Background(), &llm.ChatRequest{})
	assert.Nil(t, resp)
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "kaboom", pe.Value)
	assert.Equal(t, "kaboom", recovered)
	assert.Equal(t, "panic recovered: kaboom", err.Error())
}

func TestTimeoutMiddleware(t *testing.T) {
	h := TimeoutMiddleware(20 * time.Millisecond)(func(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	_, err := h(context.Background(), &llm.ChatRequest{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var sawDeadline bool
	passthrough := TimeoutMiddleware(0)(func(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
		_, sawDeadline = ctx.Deadline()
		return nil, nil
	})
	_, _ = passthrough(context.Background(), &llm.ChatRequest{})
	assert.False(t, sawDeadline)
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	h := LoggingMiddleware(zap.New(core))(okHandler)

	_, err := h(context.Background(), &llm.ChatRequest{Model: "qwen", Messages: []llm.Message{{Role: llm.RoleUser}}})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, "completion request", entries[0].Message)
	assert.Equal(t, "qwen", entries[0].ContextMap()["model"])
	assert.Equal(t, "completion done", entries[1].Message)
	assert.EqualValues(t, 5, entries[1].ContextMap()["total_tokens"])
}

type recordedRequest struct {
	provider, model, status string
	prompt, completion      int
}

type fakeCollector struct{ calls []recordedRequest }

func (f *fakeCollector) RecordLLMRequest(provider, model, status string, _ time.Duration, prompt, completion int) {
	f.calls = append(f.calls, recordedRequest{provider, model, status, prompt, completion})
}

func TestMetricsMiddleware(t *testing.T) {
	c := &fakeCollector{}
	ok := MetricsMiddleware("local", c)(okHandler)
	failing := MetricsMiddleware("local", c)(func(context.Context, *llm.ChatRequest) (*llm.ChatResponse, error) {
		return nil, errors.New("down")
	})

	_, _ = ok(context.Background(), &llm.ChatRequest{Model: "m"})
	_, _ = failing(context.Background(), &llm.ChatRequest{Model: "m"})

	assert.Equal(t, []recordedRequest{
		{"local", "m", "success", 3, 2},
		{"local", "m", "error", 0, 0},
	}, c.calls)
}

func TestTracingMiddleware(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	h := TracingMiddleware(tp.Tracer("test"))(okHandler)

	_, err := h(context.Background(), &llm.ChatRequest{Model: "m"})
	require.NoError(t, err)

	spans := rec.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "llm.completion", spans[0].Name())
}
