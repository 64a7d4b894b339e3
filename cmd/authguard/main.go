// Package main is the entry point for authguard.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/vyrodovalexey/authguard/internal/config"
	"github.com/vyrodovalexey/authguard/internal/observability"
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
	flags := parseFlags()

	if flags.showVersion {
		printVersion()
		return
	}

	cfg, err := loadConfig(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("starting authguard",
		observability.String("version", version),
		observability.String("config", flags.configPath),
		observability.String("address", cfg.Server.Address),
		observability.Bool("static_key", cfg.APIKey.Enabled),
		observability.Bool("signed_token", cfg.JWT.Enabled),
		observability.String("cache", cfg.Cache.Type),
	)

	if !cfg.Auth.Enabled {
		logger.Warn("authentication is disabled, admin endpoints are unprotected")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initApplication(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize", observability.Error(err))
	}

	run(ctx, app, logger)
}

// parseFlags parses command line flags. Empty log flags keep the
// configured values.
func parseFlags() cliFlags {
	configPath := flag.String("config", getEnvOrDefault("AUTHGUARD_CONFIG", ""),
		"Path to configuration file (defaults apply when empty)")
	logLevel := flag.String("log-level", getEnvOrDefault("AUTHGUARD_LOG_LEVEL", ""),
		"Log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", getEnvOrDefault("AUTHGUARD_LOG_FORMAT", ""),
		"Log format (json, console)")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	return cliFlags{
		configPath:  *configPath,
		logLevel:    *logLevel,
		logFormat:   *logFormat,
		showVersion: *showVersion,
	}
}

// printVersion prints version information.
func printVersion() {
	fmt.Printf("authguard version %s\n", version)
	fmt.Printf("  Build time: %s\n", buildTime)
	fmt.Printf("  Git commit: %s\n", gitCommit)
}

// loadConfig reads the config file, or the defaults when none is given,
// and applies the log flags on top.
func loadConfig(flags cliFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath == "" {
		cfg, err = config.Parse(nil)
	} else {
		cfg, err = config.Load(flags.configPath)
	}
	if err != nil {
		return nil, err
	}

	if flags.logLevel != "" {
		cfg.Log.Level = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Log.Format = flags.logFormat
	}
	return cfg, nil
}

// initLogger initializes the logger.
func initLogger(cfg observability.LogConfig) observability.Logger {
	logger, err := observability.NewLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	observability.SetGlobalLogger(logger)
	return logger
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
