package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/target/mmk-gatekeeper/config"
	"github.com/target/mmk-gatekeeper/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger(slog.LevelInfo)
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	if cfg.LogLevel != slog.LevelInfo {
		logger = bootstrap.InitLogger(cfg.LogLevel)
	}

	logStartupInfo(ctx, logger, &cfg)
	return bootstrap.Run(ctx, cfg, logger)
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	strategies := make([]string, 0, len(cfg.Auth.Strategies))
	for _, s := range cfg.Auth.Strategies {
		strategies = append(strategies, string(s))
	}
	logger.InfoContext(ctx, "starting gatekeeper",
		"addr", cfg.HTTP.Addr,
		"strategies", strategies,
		"auth_mode", cfg.Auth.Mode,
		"route_overrides", cfg.Auth.RouteOverrides.Prefixes(),
		"dev", cfg.IsDev,
	)
}
