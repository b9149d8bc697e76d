package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/kmachat/config"
	"github.com/BaSui01/kmachat/providers/ollama"
)

// 构建时注入。
var (
	Version   = "dev"
	GitCommit = "unknown"
)

func main() {
	// .env 缺失不算错误,本地开发便利
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		runChat(nil)
		return
	}

	switch os.Args[1] {
	case "chat":
		runChat(os.Args[2:])
	case "reindex":
		runReindex(os.Args[2:])
	case "usage":
		runUsage(os.Args[2:])
	case "health":
		runHealth(os.Args[2:])
	case "version":
		fmt.Printf("kmachat %s (%s)\n", Version, GitCommit)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`Usage: kmachat <command> [flags]

Commands:
  chat      Interactive chat session (default)
  reindex   Rebuild the retrieval index from the data directory
  usage     Show or reset per-user rate limit counters (requires MongoDB)
  health    Check LLM service availability
  version   Print version information
`)
}

// loadConfig 解析 --config 并加载配置。
func loadConfig(name string, args []string) *config.Config {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "Path to config file")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// buildLogger 按配置级别创建 zap logger。
func buildLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(lvl)
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runHealth(args []string) {
	cfg := loadConfig("health", args)

	provider := ollama.NewOllamaProvider(ollama.Config{
		BaseURL: cfg.LLM.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
	}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, err := provider.HealthCheck(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "LLM service unhealthy: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("LLM service healthy (latency %s)\n", status.Latency)
}
