package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/BaSui01/twinchat/internal/telemetry"
	"github.com/BaSui01/twinchat/internal/tlsutil"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	// DefaultTimeout 单次远程调用超时
	DefaultTimeout = 60 * time.Second
	// DefaultTotalHeader 携带总条数的响应头
	DefaultTotalHeader = "X-Total-Count"
)

// Operation 是一个远程 GET 操作
type Operation struct {
	Name string
	Path string // 可以包含 {param} 模板
}

// Config 配置调用器
type Config struct {
	BaseURL     string
	Tokens      oauth2.TokenSource // nil 表示不发送 Authorization
	Timeout     time.Duration
	TotalHeader string
	HTTPClient  *http.Client  // nil 时使用共享连接池客户端
	Limiter     *rate.Limiter // 由 NewTool 挂到工具定义上
	Tracer      trace.Tracer
}

// Invoker 执行远程 GET 操作并把结果归一化为 Envelope。
// 不重试，不 panic，总是返回 Envelope。
type Invoker struct {
	baseURL     string
	tokens      oauth2.TokenSource
	timeout     time.Duration
	totalHeader string
	client      *http.Client
	limiter     *rate.Limiter
	tracer      trace.Tracer
	logger      *zap.Logger
}

// NewInvoker 创建调用器
func NewInvoker(cfg Config, logger *zap.Logger) *Invoker {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	header := cfg.TotalHeader
	if header == "" {
		header = DefaultTotalHeader
	}
	client := cfg.HTTPClient
	if client == nil {
		// 超时由每次调用的 context 控制
		client = tlsutil.NewClient(tlsutil.Options{})
	}
	tracer := cfg.Tracer
	if tracer == nil {
		tracer = telemetry.Tracer()
	}
	return &Invoker{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		tokens:      cfg.Tokens,
		timeout:     timeout,
		totalHeader: header,
		client:      client,
		limiter:     cfg.Limiter,
		tracer:      tracer,
		logger:      logger.With(zap.String("component", "remote_invoker")),
	}
}

// Timeout 返回单次调用超时
func (inv *Invoker) Timeout() time.Duration { return inv.timeout }

// Invoke 执行一次调用
func (inv *Invoker) Invoke(ctx context.Context, op Operation, argsJSON string) (env Envelope) {
	ctx, span := inv.tracer.Start(ctx, "remote.invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("tool.name", op.Name),
			attribute.String("http.route", op.Path),
		))
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			env = failureEnvelope(Unhandled, "Unhandled error", fmt.Errorf("%v", r))
			inv.logger.Error("remote call panicked", zap.String("tool", op.Name), zap.Any("panic", r))
		}
		if env.Failed() {
			span.SetStatus(codes.Error, string(env.Error))
		}
		if env.Status != 0 {
			span.SetAttributes(attribute.Int("http.status_code", env.Status))
		}
		span.End()
		inv.logger.Debug("remote call",
			zap.String("tool", op.Name),
			zap.String("url", env.URL),
			zap.Int("status", env.Status),
			zap.String("error", string(env.Error)),
			zap.Duration("duration", time.Since(start)))
	}()

	params, err := FlattenQuery(argsJSON)
	if err != nil {
		return failureEnvelope(InvalidArguments, "Invalid arguments", err)
	}
	path, params, err := FillPath(op.Path, params)
	if err != nil {
		return failureEnvelope(InvalidArguments, "Invalid arguments", err)
	}

	target := inv.baseURL + path
	if q := EncodeQuery(params); q != "" {
		target += "?" + q
	}

	callCtx, cancel := context.WithTimeout(ctx, inv.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, target, nil)
	if err != nil {
		return failureEnvelope(Unhandled, "Unhandled error", err)
	}
	req.Header.Set("Accept", "application/json")
	if inv.tokens != nil {
		tok, err := inv.tokens.Token()
		if err != nil {
			return failureEnvelope(TransportFailure, "Token acquisition failed", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := inv.client.Do(req)
	if err != nil {
		return inv.classify(ctx, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return inv.classify(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return upstreamErrorEnvelope(target, resp.StatusCode, reasonPhrase(resp), body)
	}
	return successEnvelope(target, resp.StatusCode, resp.Header.Get(inv.totalHeader), body, gjson.ValidBytes(body))
}

// classify 区分调用方取消、超时与其他传输错误。
// 只有调用方的 context 被取消才算 TransportCanceled。
func (inv *Invoker) classify(caller context.Context, err error) Envelope {
	if errors.Is(caller.Err(), context.Canceled) {
		return failureEnvelope(TransportCanceled, "Request canceled", err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return failureEnvelope(TransportTimeout, "Request timeout", err)
	}
	return failureEnvelope(TransportFailure, "HTTP request failed", err)
}

func reasonPhrase(resp *http.Response) string {
	if reason, ok := strings.CutPrefix(resp.Status, strconv.Itoa(resp.StatusCode)+" "); ok {
		return reason
	}
	return http.StatusText(resp.StatusCode)
}
