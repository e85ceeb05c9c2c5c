// =============================================================================
// 📦 twinchat 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath(os.Getenv("TWINCHAT_CONFIG")).
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// 默认没有环境变量前缀，键名直接由 env tag 拼接，例如 LOCAL_LLM_BASE_URL。
// =============================================================================
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrConfigurationMissing is returned by Validate when a required setting is blank.
var ErrConfigurationMissing = errors.New("required configuration is missing")

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 twinchat 的完整配置结构
type Config struct {
	// LLM 补全端点配置
	LLM LLMConfig `yaml:"llm" env:"LOCAL_LLM"`

	// Remote 远程对象查询接口配置
	Remote RemoteConfig `yaml:"remote" env:"VMTP_API"`

	// OpenAPI 工具清单生成配置
	OpenAPI OpenAPIConfig `yaml:"openapi" env:"OPENAPI"`

	// Agent 会话配置
	Agent AgentConfig `yaml:"agent" env:"AGENT"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Metrics Prometheus 暴露配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`
}

// LLMConfig OpenAI 兼容补全端点配置
type LLMConfig struct {
	// 基础 URL，例如 http://localhost:1234/v1
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// API Key
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 模型名称
	Model string `yaml:"model" env:"MODEL"`
	// 补全路径
	EndpointPath string `yaml:"endpoint_path" env:"ENDPOINT_PATH"`
	// 启动时即关闭 function calling
	DisableTools bool `yaml:"disable_tools" env:"DISABLE_TOOLS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 瞬时失败最大重试次数
	MaxRetries int `yaml:"max_retries" env:"MAX_RETRIES"`
	// 请求体日志截断长度
	LogBodyLimit int `yaml:"log_body_limit" env:"LOG_BODY_LIMIT"`
}

// RemoteConfig 远程对象查询接口配置
type RemoteConfig struct {
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 预签发的 Bearer token（可选）
	Token string `yaml:"token" env:"TOKEN"`
	// 单次调用超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
	// 总数响应头
	TotalHeader string `yaml:"total_header" env:"TOTAL_HEADER"`
	// 每秒请求上限，0 表示不限流
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 跳过证书校验（实验环境自签名证书）
	InsecureSkipVerify bool `yaml:"insecure_skip_verify" env:"INSECURE_SKIP_VERIFY"`
	// OAuth 密码授权（可选，配置 TokenURL 后启用）
	OAuth OAuthConfig `yaml:"oauth" env:"OAUTH"`
}

// OAuthConfig 密码授权配置
type OAuthConfig struct {
	TokenURL string   `yaml:"token_url" env:"TOKEN_URL"`
	Username string   `yaml:"username" env:"USERNAME"`
	Password string   `yaml:"password" env:"PASSWORD"`
	ClientID string   `yaml:"client_id" env:"CLIENT_ID"`
	Scopes   []string `yaml:"scopes" env:"SCOPES"`
}

// Enabled reports whether a password grant should be performed.
func (o OAuthConfig) Enabled() bool { return strings.TrimSpace(o.TokenURL) != "" }

// OpenAPIConfig 工具清单生成配置
type OpenAPIConfig struct {
	// 文档来源：文件路径或 http(s) URL；为空时只注册内置远程工具
	Path string `yaml:"path" env:"PATH"`
	// 选中的操作，形如 "GET /api/x"
	Operations []string `yaml:"operations" env:"OPERATIONS"`
	// 裁剪不可达的 schema
	PruneSchemas bool `yaml:"prune_schemas" env:"PRUNE_SCHEMAS"`
	// 精简后文档的导出路径（可选）
	DumpPath string `yaml:"dump_path" env:"DUMP_PATH"`
	// 工具名前缀
	ToolPrefix string `yaml:"tool_prefix" env:"TOOL_PREFIX"`
	// 只为带有这些标签的操作生成工具
	IncludeTags []string `yaml:"include_tags" env:"INCLUDE_TAGS"`
	// 跳过带有这些标签的操作
	ExcludeTags []string `yaml:"exclude_tags" env:"EXCLUDE_TAGS"`
}

// AgentConfig 会话配置
type AgentConfig struct {
	// 系统提示词（不写入历史）
	SystemPrompt string `yaml:"system_prompt" env:"SYSTEM_PROMPT"`
	// 单轮最多的工具往返次数
	MaxToolSteps int `yaml:"max_tool_steps" env:"MAX_TOOL_STEPS"`
	// 是否启用流式输出
	Stream bool `yaml:"stream" env:"STREAM"`
	// 发送给模型的历史窗口，0 表示不限
	HistoryWindow int `yaml:"history_window" env:"HISTORY_WINDOW"`
	// 同一批工具调用的并发度
	ToolConcurrency int `yaml:"tool_concurrency" env:"TOOL_CONCURRENCY"`
	// 单次工具调用超时
	ToolTimeout time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	// 模型温度
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	// 最大 Token 数
	MaxTokens int `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// MetricsConfig Prometheus 暴露配置
type MetricsConfig struct {
	// 监听地址，为空时不启动 /metrics
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookup     func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		lookup:     os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookup 替换环境变量来源（测试用）
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookup = lookup
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	cfg.normalize()

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

func envKey(prefix, tag string) string {
	if prefix == "" {
		return tag
	}
	return prefix + "_" + tag
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		key := envKey(prefix, envTag)

		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, key); err != nil {
				return err
			}
			continue
		}

		value, ok := l.lookup(key)
		if !ok || value == "" {
			continue
		}

		if err := setFieldValue(field, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", key, err)
		}
	}

	return nil
}

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 逗号分隔；OPENAPI_OPERATIONS 也允许用分号分隔
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.FieldsFunc(value, func(r rune) bool { return r == ',' || r == ';' })
			out := make([]string, 0, len(parts))
			for _, p := range parts {
				if p = strings.TrimSpace(p); p != "" {
					out = append(out, p)
				}
			}
			field.Set(reflect.ValueOf(out))
		}
	}

	return nil
}

// normalize 去除 URL 结尾的斜杠并补齐被清空的默认值
func (c *Config) normalize() {
	c.LLM.BaseURL = strings.TrimRight(strings.TrimSpace(c.LLM.BaseURL), "/")
	c.Remote.BaseURL = strings.TrimRight(strings.TrimSpace(c.Remote.BaseURL), "/")
	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = DefaultRemoteConfig().BaseURL
	}
	if c.Agent.MaxToolSteps <= 0 {
		c.Agent.MaxToolSteps = DefaultAgentConfig().MaxToolSteps
	}
	if c.Agent.ToolConcurrency <= 0 {
		c.Agent.ToolConcurrency = 1
	}
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// Validate 验证配置。缺少补全端点的三个必填项时返回 ErrConfigurationMissing，
// 错误信息列出缺少的变量名。
func (c *Config) Validate() error {
	var missing []string
	if strings.TrimSpace(c.LLM.BaseURL) == "" {
		missing = append(missing, "LOCAL_LLM_BASE_URL")
	}
	if strings.TrimSpace(c.LLM.APIKey) == "" {
		missing = append(missing, "LOCAL_LLM_API_KEY")
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		missing = append(missing, "LOCAL_LLM_MODEL")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrConfigurationMissing, strings.Join(missing, ", "))
	}

	var errs []string
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		errs = append(errs, "temperature must be between 0 and 2")
	}
	if c.Remote.RateLimitRPS < 0 {
		errs = append(errs, "rate_limit_rps must not be negative")
	}
	if c.Agent.HistoryWindow < 0 {
		errs = append(errs, "history_window must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
