// =============================================================================
// hounfour CLI entrypoint
// =============================================================================
// A single short-lived process dispatching one agent-name + prompt request
// at a time to a remote LLM provider (spec §6): no HTTP server, no database,
// no background daemon. Subcommands: invoke, config print-effective,
// credentials status, trace analyze.
// =============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hounfour/gateway/config"
	"github.com/hounfour/gateway/types"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	configPath     string
	logLevelFlag   string
	budgetOverride int64
)

func main() {
	root := newRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(types.ExitCode(err))
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "hounfour",
		Short:         "Unified model-invocation gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       fmt.Sprintf("%s (build %s, commit %s)", Version, BuildTime, GitCommit),
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to hounfour config file (YAML)")
	root.PersistentFlags().StringVar(&logLevelFlag, "log-level", "", "Override configured log level")
	root.PersistentFlags().Int64Var(&budgetOverride, "budget-daily-micro-usd", 0, "Override configured daily budget (micro-USD)")

	root.AddCommand(
		newInvokeCommand(),
		newConfigCommand(),
		newCredentialsCommand(),
		newTraceCommand(),
	)
	return root
}

// loadConfig runs the four-layer merge (defaults -> file -> env -> CLI
// flags) and validates the result.
func loadConfig() (*config.Config, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	config.ApplyFlagOverrides(cfg, config.FlagOverrides{
		LogLevel:       logLevelFlag,
		BudgetOverride: budgetOverride,
	})

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// initLogger builds a zap logger from the merged config's log section,
// falling back to a bare production logger if the zap.Config fails to build.
func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stderr"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         cfg.Format,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputPaths,
		ErrorOutputPaths: []string{"stderr"},
	}
	if zapConfig.Encoding != "console" {
		zapConfig.Encoding = "json"
	}

	logger, err := zapConfig.Build(zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
