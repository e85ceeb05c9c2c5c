package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/twinchat/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func rawTool(name string, fn ToolFunc) ToolDefinition {
	return ToolDefinition{Schema: llm.ToolSchema{Name: name}, Func: fn}
}

func TestExecutor_ResultsInRequestOrder(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(rawTool("slow", func(context.Context, json.RawMessage) (string, error) {
		time.Sleep(30 * time.Millisecond)
		return "slow", nil
	}))
	r.MustRegister(rawTool("fast", func(context.Context, json.RawMessage) (string, error) {
		return "fast", nil
	}))

	e := NewExecutor(r, zap.NewNop())
	e.MaxConcurrency = 4

	results := e.Execute(context.Background(), []llm.ToolCall{
		{ID: "1", Name: "slow"},
		{ID: "2", Name: "fast"},
		{ID: "3", Name: "slow"},
	})

	require.Len(t, results, 3)
	assert.Equal(t, []string{"1", "2", "3"}, []string{results[0].ToolCallID, results[1].ToolCallID, results[2].ToolCallID})
	assert.Equal(t, "slow", results[0].Content)
	assert.Equal(t, "fast", results[1].Content)
}

func TestExecutor_SequentialByDefault(t *testing.T) {
	var inFlight, peak atomic.Int32
	r := NewRegistry(nil)
	r.MustRegister(rawTool("t", func(context.Context, json.RawMessage) (string, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return "ok", nil
	}))

	e := NewExecutor(r, nil)
	e.Execute(context.Background(), []llm.ToolCall{{ID: "1", Name: "t"}, {ID: "2", Name: "t"}, {ID: "3", Name: "t"}})
	assert.Equal(t, int32(1), peak.Load())
}

func TestExecutor_Failures(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(rawTool("boom", func(context.Context, json.RawMessage) (string, error) {
		return "", errors.New("upstream down")
	}))
	r.MustRegister(rawTool("panics", func(context.Context, json.RawMessage) (string, error) {
		panic("bad tool")
	}))
	r.MustRegister(rawTool("ok", func(context.Context, json.RawMessage) (string, error) {
		return "fine", nil
	}))

	results := NewExecutor(r, nil).Execute(context.Background(), []llm.ToolCall{
		{ID: "a", Name: "missing"},
		{ID: "b", Name: "boom"},
		{ID: "c", Name: "panics"},
		{ID: "d", Name: "ok"},
	})

	assert.Contains(t, results[0].Error, "tool not found")
	assert.Equal(t, "upstream down", results[1].Error)
	assert.Contains(t, results[2].Error, "tool panicked: bad tool")
	assert.False(t, results[3].Failed())
	assert.Equal(t, "fine", results[3].Content)
}

func TestExecutor_Timeout(t *testing.T) {
	r := NewRegistry(nil)
	def := rawTool("hang", func(ctx context.Context, _ json.RawMessage) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	def.Timeout = 20 * time.Millisecond
	r.MustRegister(def)

	res := NewExecutor(r, nil).ExecuteOne(context.Background(), llm.ToolCall{ID: "x", Name: "hang"})
	assert.Equal(t, context.DeadlineExceeded.Error(), res.Error)
}

type toolObservation struct {
	tool, outcome string
}

type fakeObserver struct {
	mu  sync.Mutex
	obs []toolObservation
}

func (f *fakeObserver) RecordToolCall(tool, outcome string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.obs = append(f.obs, toolObservation{tool, outcome})
}

func TestExecutor_Observer(t *testing.T) {
	r := NewRegistry(nil)
	r.MustRegister(rawTool("ok", func(context.Context, json.RawMessage) (string, error) { return "", nil }))

	obs := &fakeObserver{}
	e := NewExecutor(r, nil)
	e.Observer = obs
	e.Execute(context.Background(), []llm.ToolCall{{ID: "1", Name: "ok"}, {ID: "2", Name: "nope"}})

	assert.Equal(t, []toolObservation{{"ok", "success"}, {"nope", "error"}}, obs.obs)
}

func TestToolResult_ToMessage(t *testing.T) {
	ok := ToolResult{ToolCallID: "c1", Name: "get_weather", Content: "Moscow: +5°C, cloudy"}.ToMessage()
	assert.Equal(t, llm.RoleTool, ok.Role)
	assert.Equal(t, "c1", ok.ToolCallID)
	assert.Equal(t, "Moscow: +5°C, cloudy", ok.Content)

	failed := ToolResult{ToolCallID: "c2", Name: "x", Error: `bad "input"`}.ToMessage()
	assert.JSONEq(t, `{"error":"bad \"input\""}`, failed.Content)
}
