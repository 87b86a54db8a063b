// Package main is the entry point for the avaguard authorization service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/vyrodovalexey/avaguard/internal/config"
	"github.com/vyrodovalexey/avaguard/internal/observability"
)

// Version information (set at build time).
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// cliFlags holds command line flags.
type cliFlags struct {
	configPath  string
	logLevel    string
	logFormat   string
	showVersion bool
}

func main() {
	flags, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(2)
	}

	if flags.showVersion {
		printVersion()
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(ctx, flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting avaguard",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("sessionBackend", cfg.Session.Backend),
		observability.String("authority", cfg.Authority.Type),
		observability.Bool("cacheEnabled", cfg.Cache.Enabled),
	)

	app, err := newApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize application", observability.Error(err))
	}

	if err := app.run(ctx); err != nil {
		logger.Error("avaguard exited with error", observability.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

// parseFlags parses command line flags. Environment variables supply defaults.
func parseFlags(args []string) (cliFlags, error) {
	fs := pflag.NewFlagSet("avaguard", pflag.ContinueOnError)

	var flags cliFlags
	fs.StringVarP(&flags.configPath, "config", "c",
		getEnvOrDefault("AVAGUARD_CONFIG_PATH", "configs/avaguard.yaml"), "Path to configuration file")
	fs.StringVar(&flags.logLevel, "log-level", os.Getenv("AVAGUARD_LOG_LEVEL"),
		"Log level override (debug, info, warn, error)")
	fs.StringVar(&flags.logFormat, "log-format", os.Getenv("AVAGUARD_LOG_FORMAT"),
		"Log format override (json, console)")
	fs.BoolVarP(&flags.showVersion, "version", "v", false, "Show version information")

	if err := fs.Parse(args); err != nil {
		return cliFlags{}, err
	}
	return flags, nil
}

// loadConfig loads the file, applies flag overrides, resolves secrets and validates.
func loadConfig(ctx context.Context, flags cliFlags) (*config.Config, error) {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return nil, err
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Logging.Format = flags.logFormat
	}

	if err := resolveSecrets(ctx, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("avaguard version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
