// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。nil *Collector 的所有记录方法都是空操作。
type Collector struct {
	// LLM 指标
	llmRequestsTotal   *prometheus.CounterVec
	llmRequestDuration *prometheus.HistogramVec
	llmTokensUsed      *prometheus.CounterVec

	// 工具指标
	toolCallsTotal   *prometheus.CounterVec
	toolCallDuration *prometheus.HistogramVec

	// 会话指标
	turnsTotal          *prometheus.CounterVec
	capabilityFallbacks prometheus.Counter

	logger *zap.Logger
}

// NewCollector 创建指标收集器，指标注册到 reg（nil 时使用默认注册表）。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	c.llmRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of completion requests",
		},
		[]string{"provider", "model", "status"},
	)

	c.llmRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_request_duration_seconds",
			Help:      "Completion request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	c.llmTokensUsed = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_tokens_used_total",
			Help:      "Total number of tokens reported by the endpoint",
		},
		[]string{"provider", "model", "type"}, // type: prompt, completion
	)

	c.toolCallsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_calls_total",
			Help:      "Total number of tool invocations",
		},
		[]string{"tool", "outcome"},
	)

	c.toolCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tool_call_duration_seconds",
			Help:      "Tool invocation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	c.turnsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Total number of conversation turns by outcome",
		},
		[]string{"outcome"},
	)

	c.capabilityFallbacks = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "function_calling_fallbacks_total",
			Help:      "Times function calling was disabled after the endpoint rejected tools",
		},
	)

	c.logger.Debug("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🤖 LLM 指标记录
// =============================================================================

// RecordLLMRequest 记录一次补全请求
func (c *Collector) RecordLLMRequest(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if c == nil {
		return
	}
	c.llmRequestsTotal.WithLabelValues(provider, model, status).Inc()
	c.llmRequestDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	c.llmTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	c.llmTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🔧 工具与会话指标记录
// =============================================================================

// RecordToolCall 记录一次工具调用
func (c *Collector) RecordToolCall(tool, outcome string, duration time.Duration) {
	if c == nil {
		return
	}
	c.toolCallsTotal.WithLabelValues(tool, outcome).Inc()
	c.toolCallDuration.WithLabelValues(tool).Observe(duration.Seconds())
}

// RecordTurn 记录一轮对话的结果
func (c *Collector) RecordTurn(outcome string) {
	if c == nil {
		return
	}
	c.turnsTotal.WithLabelValues(outcome).Inc()
}

// RecordCapabilityFallback 记录 function calling 被降级
func (c *Collector) RecordCapabilityFallback() {
	if c == nil {
		return
	}
	c.capabilityFallbacks.Inc()
	c.logger.Debug("function calling fallback recorded")
}

// StatusLabel 将 HTTP 状态码归类为 2xx/4xx/5xx 标签
func StatusLabel(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
