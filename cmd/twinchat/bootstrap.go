package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/BaSui01/twinchat/agent/conversation"
	"github.com/BaSui01/twinchat/config"
	"github.com/BaSui01/twinchat/internal/metrics"
	"github.com/BaSui01/twinchat/internal/telemetry"
	"github.com/BaSui01/twinchat/internal/tlsutil"
	"github.com/BaSui01/twinchat/llm"
	"github.com/BaSui01/twinchat/llm/middleware"
	"github.com/BaSui01/twinchat/llm/providers"
	"github.com/BaSui01/twinchat/llm/providers/openaicompat"
	"github.com/BaSui01/twinchat/llm/tools"
	"github.com/BaSui01/twinchat/tools/openapi"
	"github.com/BaSui01/twinchat/tools/remote"
)

const providerName = "local-llm"

// app 是装配好的运行时
type app struct {
	orchestrator *conversation.Orchestrator
	registry     *tools.Registry
	capability   conversation.Capability
}

func buildApp(ctx context.Context, cfg *config.Config, collector *metrics.Collector, logger *zap.Logger) (*app, error) {
	provider := newProvider(cfg.LLM, logger)

	remoteClient := tlsutil.NewClient(tlsutil.Options{InsecureSkipVerify: cfg.Remote.InsecureSkipVerify})
	tokens := newTokenSource(ctx, cfg.Remote, remoteClient, logger)

	invoker := remote.NewInvoker(remote.Config{
		BaseURL:     cfg.Remote.BaseURL,
		Tokens:      tokens,
		Timeout:     cfg.Remote.Timeout,
		TotalHeader: cfg.Remote.TotalHeader,
		HTTPClient:  remoteClient,
		Limiter:     newLimiter(cfg.Remote.RateLimitRPS),
	}, logger)

	registry, err := newRegistry(ctx, cfg.OpenAPI, invoker, logger)
	if err != nil {
		return nil, err
	}

	executor := tools.NewExecutor(registry, logger)
	executor.MaxConcurrency = cfg.Agent.ToolConcurrency
	executor.DefaultTimeout = cfg.Agent.ToolTimeout
	executor.Observer = collector

	orch := conversation.NewOrchestrator(provider, registry, executor, conversation.Config{
		Model:        cfg.LLM.Model,
		SystemPrompt: cfg.Agent.SystemPrompt,
		MaxToolSteps: cfg.Agent.MaxToolSteps,
		Stream:       cfg.Agent.Stream,
		Temperature:  float32(cfg.Agent.Temperature),
		MaxTokens:    cfg.Agent.MaxTokens,
		Window:       conversation.NewWindow(cfg.Agent.HistoryWindow),
	}, logger,
		conversation.WithObserver(collector),
		conversation.WithMiddleware(
			// 覆盖全部重试的总时限
			middleware.TimeoutMiddleware(cfg.LLM.Timeout*time.Duration(cfg.LLM.MaxRetries+1)),
			middleware.MetricsMiddleware(provider.Name(), collector),
			middleware.TracingMiddleware(telemetry.Tracer()),
		),
	)

	return &app{
		orchestrator: orch,
		registry:     registry,
		capability:   orch.InitialCapability(cfg.LLM.DisableTools),
	}, nil
}

// newProvider 构造补全端点客户端：连接池 + 请求日志 + 瞬时失败重试
func newProvider(cfg config.LLMConfig, logger *zap.Logger) llm.Provider {
	client := tlsutil.NewClient(tlsutil.Options{
		Timeout: cfg.Timeout,
		Wrap: func(next http.RoundTripper) http.RoundTripper {
			return providers.NewLoggingTransport(next, logger, cfg.LogBodyLimit)
		},
	})
	base := openaicompat.New(openaicompat.Config{
		ProviderName: providerName,
		APIKey:       cfg.APIKey,
		BaseURL:      cfg.BaseURL,
		DefaultModel: cfg.Model,
		Timeout:      cfg.Timeout,
		EndpointPath: cfg.EndpointPath,
		HTTPClient:   client,
	}, logger)

	retryCfg := providers.DefaultRetryConfig()
	retryCfg.MaxRetries = cfg.MaxRetries
	return providers.NewRetryableProvider(base, retryCfg, logger)
}

// newTokenSource 优先使用密码授权，失败或未配置时退回预签发 token
func newTokenSource(ctx context.Context, cfg config.RemoteConfig, client *http.Client, logger *zap.Logger) oauth2.TokenSource {
	if cfg.OAuth.Enabled() {
		ts, err := remote.PasswordGrant(ctx, remote.TokenConfig{
			TokenURL: cfg.OAuth.TokenURL,
			Username: cfg.OAuth.Username,
			Password: cfg.OAuth.Password,
			ClientID: cfg.OAuth.ClientID,
			Scopes:   cfg.OAuth.Scopes,
		}, client)
		if err == nil {
			logger.Info("remote API token acquired", zap.String("token_url", cfg.OAuth.TokenURL))
			return ts
		}
		logger.Warn("remote API token acquisition failed, continuing with static token", zap.Error(err))
	}
	return remote.StaticToken(cfg.Token)
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	burst := int(math.Ceil(rps))
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// newRegistry 注册本地天气工具与远程工具。配置了 OpenAPI 文档时由清单生成远程工具，
// 文档不可用时退回内置的两个查询工具。
func newRegistry(ctx context.Context, cfg config.OpenAPIConfig, invoker *remote.Invoker, logger *zap.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger)
	if err := registry.Register(weatherTool()); err != nil {
		return nil, err
	}

	generated, err := manifestTools(ctx, cfg, logger)
	if err != nil {
		logger.Warn("openapi manifest unavailable, using built-in remote tools", zap.Error(err))
	}
	if len(generated) == 0 {
		for _, def := range []tools.ToolDefinition{remote.GetByFilterTool(invoker), remote.SearchObjectsTool(invoker)} {
			if err := registry.Register(def); err != nil {
				return nil, err
			}
		}
		return registry, nil
	}

	for _, gen := range generated {
		if err := registry.Register(remote.NewTool(gen, invoker)); err != nil {
			if errors.Is(err, tools.ErrDuplicateTool) {
				logger.Warn("skipping generated tool", zap.String("name", gen.Name), zap.Error(err))
				continue
			}
			return nil, err
		}
	}
	return registry, nil
}

func manifestTools(ctx context.Context, cfg config.OpenAPIConfig, logger *zap.Logger) ([]*openapi.GeneratedTool, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	keys, err := openapi.ParseOperationKeys(cfg.Operations)
	if err != nil {
		return nil, err
	}

	gen := openapi.NewGenerator(openapi.GeneratorConfig{}, logger)
	doc, err := gen.LoadDocument(ctx, cfg.Path)
	if err != nil {
		return nil, err
	}
	manifest, err := gen.BuildManifest(ctx, doc, openapi.GenerateOptions{
		Operations:   keys,
		PruneSchemas: cfg.PruneSchemas,
		IncludeTags:  cfg.IncludeTags,
		ExcludeTags:  cfg.ExcludeTags,
		Prefix:       cfg.ToolPrefix,
	})
	if err != nil {
		return nil, err
	}
	if cfg.DumpPath != "" {
		if err := openapi.WriteDocument(cfg.DumpPath, manifest.Document); err != nil {
			return nil, fmt.Errorf("dump reduced document: %w", err)
		}
		logger.Info("reduced document written", zap.String("path", cfg.DumpPath))
	}
	return manifest.Tools, nil
}
