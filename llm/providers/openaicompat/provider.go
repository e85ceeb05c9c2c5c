// =============================================================================
// twinchat OpenAI-Compatible Provider
// =============================================================================
// HTTP client for a chat-completions endpoint speaking the OpenAI wire format,
// typically a locally hosted model server. Non-streaming and SSE streaming.
// =============================================================================

package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/twinchat/internal/tlsutil"
	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/middleware"
	"github.com/BaSui01/twinchat/llm/providers"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the identifier used in logs, metrics and errors.
	ProviderName string

	// APIKey is sent as a bearer token.
	APIKey string

	// BaseURL is the endpoint root, e.g. "http://localhost:1234/v1".
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// FallbackModel is used when both request and DefaultModel are empty.
	FallbackModel string

	// Timeout is the HTTP client timeout. Defaults to 120s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions path. Defaults to "/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list path used by HealthCheck. Defaults to "/models".
	ModelsEndpoint string

	// SupportsTools declares native function calling. Defaults to true.
	SupportsTools *bool

	// HTTPClient overrides the pooled client, e.g. one wrapped in a
	// providers.LoggingTransport.
	HTTPClient *http.Client
}

// Provider implements llm.Provider over HTTP.
type Provider struct {
	Cfg           Config
	Client        *http.Client
	Logger        *zap.Logger
	RewriterChain *middleware.RewriterChain
}

// Compile-time interface check.
var _ llm.Provider = (*Provider)(nil)

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/models"
	}
	if cfg.ProviderName == "" {
		cfg.ProviderName = "openai-compatible"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.HTTPClient
	if client == nil {
		client = tlsutil.SecureHTTPClient(cfg.Timeout)
	}
	return &Provider{
		Cfg:    cfg,
		Client: client,
		Logger: logger.With(zap.String("component", "provider"), zap.String("provider", cfg.ProviderName)),
		RewriterChain: middleware.NewRewriterChain(
			middleware.NewEmptyToolsCleaner(),
		),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// SupportsNativeFunctionCalling returns whether this provider declares tool calling.
func (p *Provider) SupportsNativeFunctionCalling() bool {
	if p.Cfg.SupportsTools != nil {
		return *p.Cfg.SupportsTools
	}
	return true
}

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + path
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerTokenHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, err
	}
	defer providers.SafeCloseBody(resp.Body)

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Cfg.ProviderName, resp.StatusCode, msg)
	}

	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// buildBody rewrites req and converts it to the wire request.
func (p *Provider) buildBody(ctx context.Context, req *llm.ChatRequest, stream bool) ([]byte, error) {
	rewritten, err := p.RewriterChain.Execute(ctx, req)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrInvalidRequest,
			Message:    fmt.Sprintf("request rewrite failed: %v", err),
			HTTPStatus: http.StatusBadRequest,
			Provider:   p.Name(),
		}
	}

	body := providers.OpenAICompatRequest{
		Model:       providers.ChooseModel(rewritten, p.Cfg.DefaultModel, p.Cfg.FallbackModel),
		Messages:    providers.ConvertMessagesToOpenAI(rewritten.Messages),
		Tools:       providers.ConvertToolsToOpenAI(rewritten.Tools),
		MaxTokens:   rewritten.MaxTokens,
		Temperature: rewritten.Temperature,
		TopP:        rewritten.TopP,
		Stop:        rewritten.Stop,
		Stream:      stream,
	}
	if rewritten.ToolChoice != "" {
		body.ToolChoice = rewritten.ToolChoice
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	return payload, nil
}

// send posts payload and maps transport and HTTP failures to *llm.Error.
// On success the caller owns resp.Body.
func (p *Provider) send(ctx context.Context, payload []byte, stream bool) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	providers.BearerTokenHeaders(httpReq, p.Cfg.APIKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, providers.TransportError(err, p.Name())
	}
	if resp.StatusCode >= 400 {
		defer providers.SafeCloseBody(resp.Body)
		msg := providers.ReadErrorMessage(resp.Body)
		p.Logger.Debug("completion endpoint rejected request",
			zap.Int("status", resp.StatusCode),
			zap.String("message", msg))
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}
	return resp, nil
}

// Completion performs a non-streaming chat completion.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	payload, err := p.buildBody(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, payload, false)
	if err != nil {
		return nil, err
	}
	defer providers.SafeCloseBody(resp.Body)

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: fmt.Sprintf("decode response: %v", err),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}

// Stream performs a streaming chat completion via SSE. Rejections at stream
// open are returned as errors; failures after the first byte arrive as a
// chunk with Err set, after which the channel is closed.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	payload, err := p.buildBody(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := p.send(ctx, payload, true)
	if err != nil {
		return nil, err
	}

	return StreamSSE(ctx, resp.Body, p.Name()), nil
}

// sseEvent is one decoded "data:" payload. Some servers report failures
// inside the stream as {"error":{...}}.
type sseEvent struct {
	providers.OpenAICompatResponse
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// StreamSSE parses an SSE stream from an OpenAI-compatible API and returns a
// channel of StreamChunks. The caller must have checked the response status.
func StreamSSE(ctx context.Context, body io.ReadCloser, providerName string) <-chan llm.StreamChunk {
	ch := make(chan llm.StreamChunk)
	go func() {
		defer body.Close()
		defer close(ch)

		emit := func(chunk llm.StreamChunk) bool {
			select {
			case <-ctx.Done():
				return false
			case ch <- chunk:
				return true
			}
		}
		fail := func(msg string) {
			emit(llm.StreamChunk{Provider: providerName, Err: &llm.Error{
				Code: llm.ErrUpstreamError, Message: msg,
				HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: providerName,
			}})
		}

		reader := bufio.NewReader(body)
		for {
			line, err := reader.ReadString('\n')
			if err != nil && (err != io.EOF || line == "") {
				if err != io.EOF && ctx.Err() == nil {
					fail(err.Error())
				}
				return
			}
			line = strings.TrimSpace(line)
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if data == "[DONE]" {
				return
			}

			var ev sseEvent
			if jerr := json.Unmarshal([]byte(data), &ev); jerr != nil {
				fail(fmt.Sprintf("malformed stream event: %v", jerr))
				return
			}
			if ev.Error != nil {
				fail(ev.Error.Message)
				return
			}

			for _, choice := range ev.Choices {
				chunk := llm.StreamChunk{
					ID:           ev.ID,
					Provider:     providerName,
					Model:        ev.Model,
					Index:        choice.Index,
					FinishReason: choice.FinishReason,
					Delta:        llm.Message{Role: llm.RoleAssistant},
				}
				if choice.Delta != nil {
					chunk.Delta.Content = choice.Delta.Content
					chunk.Delta.ToolCalls = providers.ConvertToolCallsFromOpenAI(choice.Delta.ToolCalls)
				}
				if ev.Usage != nil {
					chunk.Usage = &llm.ChatUsage{
						PromptTokens:     ev.Usage.PromptTokens,
						CompletionTokens: ev.Usage.CompletionTokens,
						TotalTokens:      ev.Usage.TotalTokens,
					}
				}
				if !emit(chunk) {
					return
				}
			}

			if err == io.EOF {
				return
			}
		}
	}()
	return ch
}
