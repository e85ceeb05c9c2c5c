// =============================================================================
// 📦 twinchat 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		LLM:       DefaultLLMConfig(),
		Remote:    DefaultRemoteConfig(),
		OpenAPI:   OpenAPIConfig{},
		Agent:     DefaultAgentConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
		Metrics:   DefaultMetricsConfig(),
	}
}

// DefaultLLMConfig 返回默认补全端点配置；BaseURL/APIKey/Model 必须由环境提供
func DefaultLLMConfig() LLMConfig {
	return LLMConfig{
		EndpointPath: "/chat/completions",
		Timeout:      120 * time.Second,
		MaxRetries:   2,
		LogBodyLimit: 800,
	}
}

// DefaultRemoteConfig 返回默认远程接口配置
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		BaseURL:     "http://10.61.16.12:3083",
		Timeout:     60 * time.Second,
		TotalHeader: "X-Total-Count",
		OAuth: OAuthConfig{
			Scopes: []string{"full"},
		},
	}
}

// DefaultAgentConfig 返回默认会话配置
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxToolSteps:    8,
		Stream:          true,
		ToolConcurrency: 1,
		ToolTimeout:     60 * time.Second,
	}
}

// DefaultLogConfig 返回默认日志配置；输出到 stderr，避免干扰控制台对话
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "warn",
		Format:      "console",
		OutputPaths: []string{"stderr"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "twinchat",
		SampleRate:   0.1,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "twinchat",
	}
}
