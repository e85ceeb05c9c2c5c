// Package openaicompat implements llm.Provider for chat-completions endpoints
// that speak the OpenAI wire format, such as locally hosted model servers.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "local",
//	    APIKey:       cfg.LLM.APIKey,
//	    BaseURL:      cfg.LLM.BaseURL,
//	    DefaultModel: cfg.LLM.Model,
//	    HTTPClient:   client, // optional, e.g. with providers.LoggingTransport
//	}, logger)
//
// HTTP 400 responses keep their status in the returned *llm.Error so the
// conversation layer can tell a rejected tools declaration apart from other
// failures.
package openaicompat
