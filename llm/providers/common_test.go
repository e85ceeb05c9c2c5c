package providers

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/twinchat/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		msg       string
		wantCode  llm.ErrorCode
		retryable bool
	}{
		{"401", http.StatusUnauthorized, "Invalid API key", llm.ErrUnauthorized, false},
		{"403", http.StatusForbidden, "denied", llm.ErrForbidden, false},
		{"429", http.StatusTooManyRequests, "slow", llm.ErrRateLimited, true},
		{"400 plain", http.StatusBadRequest, "tools not supported", llm.ErrInvalidRequest, false},
		{"400 quota", http.StatusBadRequest, "Quota exceeded", llm.ErrQuotaExceeded, false},
		{"400 credit", http.StatusBadRequest, "insufficient credit", llm.ErrQuotaExceeded, false},
		{"408", http.StatusRequestTimeout, "", llm.ErrUpstreamTimeout, true},
		{"504", http.StatusGatewayTimeout, "", llm.ErrUpstreamTimeout, true},
		{"502", http.StatusBadGateway, "", llm.ErrUpstreamError, true},
		{"503", http.StatusServiceUnavailable, "", llm.ErrUpstreamError, true},
		{"529", 529, "overloaded", llm.ErrModelOverloaded, true},
		{"500", http.StatusInternalServerError, "", llm.ErrUpstreamError, true},
		{"404", http.StatusNotFound, "no route", llm.ErrUpstreamError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapHTTPError(tt.status, tt.msg, "local")
			assert.Equal(t, tt.wantCode, err.Code)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, "local", err.Provider)
			assert.Equal(t, tt.msg, err.Message)
		})
	}
}

func TestMapHTTPError_AllBadRequestsAreBadRequests(t *testing.T) {
	for _, msg := range []string{"", "quota", "credit", "tool_choice is not supported"} {
		assert.True(t, llm.IsBadRequest(MapHTTPError(http.StatusBadRequest, msg, "p")), msg)
	}
	assert.False(t, llm.IsBadRequest(MapHTTPError(http.StatusUnprocessableEntity, "", "p")))
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "bad tools (type: invalid_request_error)",
		ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad tools","type":"invalid_request_error"}}`)))
	assert.Equal(t, "plain", ReadErrorMessage(strings.NewReader(`{"error":{"message":"plain"}}`)))
	assert.Equal(t, "Bad Request", ReadErrorMessage(strings.NewReader("  Bad Request\n")))
}

func TestConvertMessagesToOpenAI(t *testing.T) {
	msgs := []llm.Message{
		{Role: llm.RoleUser, Content: "Какая погода?"},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "call_1", Name: "get_weather", Arguments: json.RawMessage(`{"city":"Москва"}`)},
			{ID: "call_2", Name: "noargs"},
		}},
		{Role: llm.RoleTool, ToolCallID: "call_1", Content: "Moscow: +5°C, cloudy"},
	}

	out := ConvertMessagesToOpenAI(msgs)
	require.Len(t, out, 3)
	assert.Equal(t, "user", out[0].Role)
	assert.Equal(t, "Какая погода?", out[0].Content)

	require.Len(t, out[1].ToolCalls, 2)
	assert.Equal(t, "function", out[1].ToolCalls[0].Type)
	assert.Equal(t, `{"city":"Москва"}`, out[1].ToolCalls[0].Function.Arguments)
	assert.Equal(t, "{}", out[1].ToolCalls[1].Function.Arguments)
	assert.Nil(t, out[1].ToolCalls[0].Index)

	assert.Equal(t, "tool", out[2].Role)
	assert.Equal(t, "call_1", out[2].ToolCallID)
}

func TestConvertToolsToOpenAI(t *testing.T) {
	assert.Nil(t, ConvertToolsToOpenAI(nil))

	out := ConvertToolsToOpenAI([]llm.ToolSchema{{
		Name:        "getBaseObjectValuesByFilter",
		Description: "GET /api/VMTPBaseObjectValue/GetByFilter",
		Parameters:  json.RawMessage(`{"type":"object"}`),
	}})
	require.Len(t, out, 1)

	data, err := json.Marshal(out[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"function","function":{
		"name":"getBaseObjectValuesByFilter",
		"description":"GET /api/VMTPBaseObjectValue/GetByFilter",
		"parameters":{"type":"object"}}}`, string(data))
}

func TestConvertToolCallsFromOpenAI_Index(t *testing.T) {
	two := 2
	calls := ConvertToolCallsFromOpenAI([]OpenAICompatToolCall{
		{ID: "a", Function: OpenAICompatFunction{Name: "x", Arguments: `{}`}},
		{Index: &two, Function: OpenAICompatFunction{Arguments: `"frag`}},
	})
	require.Len(t, calls, 2)
	assert.Equal(t, 0, calls[0].Index)
	assert.Equal(t, 2, calls[1].Index)
	assert.Equal(t, `"frag`, string(calls[1].Arguments))
	assert.Nil(t, ConvertToolCallsFromOpenAI(nil))
}

func TestToLLMChatResponse(t *testing.T) {
	var oa OpenAICompatResponse
	require.NoError(t, json.Unmarshal([]byte(`{"id":"x","model":"m",
		"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"hi"}}],
		"usage":{"prompt_tokens":1,"completion_tokens":2,"total_tokens":3}}`), &oa))

	resp := ToLLMChatResponse(oa, "local")
	assert.Equal(t, "x", resp.ID)
	assert.Equal(t, "local", resp.Provider)
	require.Len(t, resp.Choices, 1)
	assert.Equal(t, llm.RoleAssistant, resp.Choices[0].Message.Role)
	assert.Equal(t, "hi", resp.Choices[0].Message.Content)
	assert.Equal(t, 3, resp.Usage.TotalTokens)
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel(&llm.ChatRequest{Model: "req"}, "def", "fb"))
	assert.Equal(t, "def", ChooseModel(&llm.ChatRequest{}, "def", "fb"))
	assert.Equal(t, "fb", ChooseModel(nil, "", "fb"))
}
