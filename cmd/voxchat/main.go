package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ent0n29/voxchat/internal/app"
	"github.com/ent0n29/voxchat/internal/config"
)

func main() {
	configPath := flag.String("config", os.Getenv("VOXCHAT_CONFIG"), "path to a TOML config file")
	logLevel := flag.String("log-level", "", "override log level (debug|info|warn|error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// The console carries the conversation, so logs go to stderr.
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	res, err := app.Build(ctx, cfg, app.IO{Stdin: os.Stdin, Stdout: os.Stdout}, nil, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Warn("cleanup failed", "error", err)
		}
	}()

	logger.Info("voxchat starting",
		"input", cfg.InputMode,
		"output", cfg.OutputMode,
		"backend", res.Backend,
		"voice_provider", res.Voice.Detail,
		"bind_addr", cfg.BindAddr,
	)

	if err := res.Coordinator.Run(ctx); err != nil {
		logger.Error("session ended with error", "error", err)
		return
	}
	logger.Info("shutdown complete")
}

func parseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
