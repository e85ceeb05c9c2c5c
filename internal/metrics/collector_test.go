package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestCollector(t *testing.T) *Collector {
	t.Helper()
	return NewCollector("test", prometheus.NewRegistry(), zap.NewNop())
}

func TestCollector_RecordLLMRequest(t *testing.T) {
	c := newTestCollector(t)

	c.RecordLLMRequest("local", "qwen", "success", 500*time.Millisecond, 100, 50)
	c.RecordLLMRequest("local", "qwen", "success", 200*time.Millisecond, 10, 5)
	c.RecordLLMRequest("local", "qwen", "error", 10*time.Millisecond, 0, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("local", "qwen", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.llmRequestsTotal.WithLabelValues("local", "qwen", "error")))
	assert.Equal(t, 110.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("local", "qwen", "prompt")))
	assert.Equal(t, 55.0, testutil.ToFloat64(c.llmTokensUsed.WithLabelValues("local", "qwen", "completion")))
	assert.Equal(t, 1, testutil.CollectAndCount(c.llmRequestDuration))
}

func TestCollector_RecordToolCall(t *testing.T) {
	c := newTestCollector(t)

	c.RecordToolCall("get_weather", "ok", time.Millisecond)
	c.RecordToolCall("get_weather", "error", time.Millisecond)
	c.RecordToolCall("getBaseObjectValuesByFilter", "ok", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.toolCallsTotal.WithLabelValues("get_weather", "ok")))
	assert.Equal(t, 3, testutil.CollectAndCount(c.toolCallsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(c.toolCallDuration))
}

func TestCollector_TurnsAndFallbacks(t *testing.T) {
	c := newTestCollector(t)

	c.RecordTurn("completed")
	c.RecordTurn("completed")
	c.RecordTurn("failed")
	c.RecordCapabilityFallback()

	assert.Equal(t, 2.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.turnsTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.capabilityFallbacks))
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector
	assert.NotPanics(t, func() {
		c.RecordLLMRequest("p", "m", "success", time.Second, 1, 1)
		c.RecordToolCall("t", "ok", time.Second)
		c.RecordTurn("completed")
		c.RecordCapabilityFallback()
	})
}

func TestCollector_SeparateRegistries(t *testing.T) {
	assert.NotPanics(t, func() {
		newTestCollector(t)
		newTestCollector(t)
	})
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{404, "4xx"},
		{500, "5xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusLabel(tt.code))
	}
}
