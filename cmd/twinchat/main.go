// =============================================================================
// twinchat 主入口
// =============================================================================
// 控制台对话客户端：连接 OpenAI 兼容的补全端点，把本地函数与远程对象
// 查询接口作为工具提供给模型。
//
// 使用方法:
//
//	twinchat            # 启动控制台对话
//	twinchat version    # 显示版本信息
//
// 配置来自环境变量（工作目录下的 .env 会被加载并覆盖已有变量），
// 可选 YAML 文件由 TWINCHAT_CONFIG 指定。
// =============================================================================

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/twinchat/agent/conversation"
	"github.com/BaSui01/twinchat/config"
	"github.com/BaSui01/twinchat/internal/metrics"
	"github.com/BaSui01/twinchat/internal/server"
	"github.com/BaSui01/twinchat/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const missingConfigMessage = "LLM environment variables are not set (LOCAL_LLM_BASE_URL, LOCAL_LLM_API_KEY, LOCAL_LLM_MODEL)"

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			printVersion(os.Stdout)
			return
		case "help", "-h", "--help":
			printUsage(os.Stdout)
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
			printUsage(os.Stderr)
			os.Exit(1)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// run 加载配置、装配组件并运行控制台，返回进程退出码
func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) int {
	// .env 不存在时忽略
	dotenvErr := godotenv.Overload()

	cfg, err := config.NewLoader().
		WithConfigPath(os.Getenv("TWINCHAT_CONFIG")).
		Load()
	if err != nil {
		fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		if errors.Is(err, config.ErrConfigurationMissing) {
			fmt.Fprintln(stderr, missingConfigMessage)
		} else {
			fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		}
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()
	if dotenvErr != nil && !errors.Is(dotenvErr, os.ErrNotExist) {
		logger.Warn("failed to load .env", zap.Error(dotenvErr))
	}

	logger.Info("starting twinchat",
		zap.String("version", Version),
		zap.String("model", cfg.LLM.Model),
		zap.String("base_url", cfg.LLM.BaseURL))

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := otelProviders.Shutdown(shutdownCtx); err != nil {
				logger.Warn("telemetry shutdown failed", zap.Error(err))
			}
		}()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(cfg.Metrics.Namespace, registry, logger)
	if cfg.Metrics.Addr != "" {
		metricsServer := server.NewManager(server.MetricsHandler(registry), server.DefaultConfig(cfg.Metrics.Addr), logger)
		if err := metricsServer.Start(); err != nil {
			logger.Warn("metrics endpoint disabled", zap.Error(err))
		} else {
			defer func() { _ = metricsServer.Shutdown(context.Background()) }()
		}
	}

	app, err := buildApp(ctx, cfg, collector, logger)
	if err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}

	fmt.Fprintln(stdout, "Registered functions:")
	for _, def := range app.registry.ListForAdvertisement() {
		fmt.Fprintf(stdout, "  - %s (%s)\n", def.Name(), def.Kind)
	}
	if !app.capability.FunctionCalling {
		fmt.Fprintln(stdout, "Function calling is disabled.")
	}

	console := conversation.NewConsole(app.orchestrator, stdin, stdout, app.capability, logger)
	if err := console.Run(ctx); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "twinchat %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `twinchat - console chat with tool calling

Usage:
  twinchat            Start an interactive chat session
  twinchat version    Show version information
  twinchat help       Show this help message

Environment:
  LOCAL_LLM_BASE_URL, LOCAL_LLM_API_KEY, LOCAL_LLM_MODEL   required
  LOCAL_LLM_DISABLE_TOOLS                                  start with function calling off
  VMTP_API_BASE_URL, VMTP_API_TOKEN                        remote object API
  VMTP_API_OAUTH_TOKEN_URL, ..._USERNAME, ..._PASSWORD     password grant
  OPENAPI_PATH, OPENAPI_OPERATIONS, OPENAPI_DUMP_PATH      tool manifest
  TWINCHAT_CONFIG                                          optional YAML file`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.WarnLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		encoding = "console"
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		// stdout 留给对话
		outputs = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      false,
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}
