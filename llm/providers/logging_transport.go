package providers

import (
	"bytes"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/BaSui01/twinchat/internal/textutil"
)

// LoggingTransport logs outgoing completion requests and their response
// status at debug level. The request body is logged up to BodyLimit runes so
// non-ASCII prompts can be checked on the wire.
type LoggingTransport struct {
	Next      http.RoundTripper
	Logger    *zap.Logger
	BodyLimit int
}

// NewLoggingTransport wraps next. A nil next uses http.DefaultTransport.
func NewLoggingTransport(next http.RoundTripper, logger *zap.Logger, bodyLimit int) *LoggingTransport {
	if next == nil {
		next = http.DefaultTransport
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if bodyLimit <= 0 {
		bodyLimit = 800
	}
	return &LoggingTransport{
		Next:      next,
		Logger:    logger.With(zap.String("component", "llm_http")),
		BodyLimit: bodyLimit,
	}
}

// RoundTrip implements http.RoundTripper.
func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if ce := t.Logger.Check(zap.DebugLevel, "llm request"); ce != nil {
		fields := []zap.Field{
			zap.String("method", req.Method),
			zap.String("url", req.URL.String()),
		}
		if req.Body != nil && req.GetBody != nil {
			contentType := req.Header.Get("Content-Type")
			if contentType == "" {
				contentType = "(none)"
			}
			fields = append(fields, zap.String("content_type", contentType))
			if body, err := req.GetBody(); err == nil {
				data, readErr := io.ReadAll(body)
				_ = body.Close()
				if readErr == nil {
					fields = append(fields, zap.String("body", textutil.TruncateRunes(string(data), t.BodyLimit, "...")))
				}
			}
		} else if req.Body != nil {
			data, err := io.ReadAll(req.Body)
			_ = req.Body.Close()
			req.Body = io.NopCloser(bytes.NewReader(data))
			if err == nil {
				fields = append(fields, zap.String("body", textutil.TruncateRunes(string(data), t.BodyLimit, "...")))
			}
		}
		ce.Write(fields...)
	}

	resp, err := t.Next.RoundTrip(req)
	if err != nil {
		t.Logger.Debug("llm request failed", zap.String("url", req.URL.String()), zap.Error(err))
		return nil, err
	}
	t.Logger.Debug("llm response", zap.String("status", resp.Status))
	return resp, nil
}
