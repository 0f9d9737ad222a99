package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os/signal"
	"syscall"

	"github.com/target/mmk-gatekeeper/config"
	"github.com/target/mmk-gatekeeper/internal/adapters/postgres"
	redisadapter "github.com/target/mmk-gatekeeper/internal/adapters/redis"
	httpx "github.com/target/mmk-gatekeeper/internal/http"
	"github.com/target/mmk-gatekeeper/internal/observability/statsd"
	"github.com/target/mmk-gatekeeper/internal/ports"
)

// Run connects the stores, builds the chain and serves HTTP until SIGINT or SIGTERM.
func Run(ctx context.Context, cfg config.AppConfig, logger *slog.Logger) (err error) {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := buildMetrics(cfg.Observability.Metrics, logger)
	defer closeWith(&err, metrics.Close, "close metrics client")

	redisClient, err := ConnectRedis(ctx, cfg.Redis, logger)
	if err != nil {
		return err
	}
	defer closeWith(&err, redisClient.Close, "close redis client")

	flowStore := redisadapter.NewFlowStoreWithPrefix(redisClient, cfg.Redis.KeyPrefix+"flow:")
	checks := map[string]httpx.HealthCheck{"redis": flowStore.Health}

	var credentials ports.CredentialStore
	if cfg.NeedsPostgres() {
		db, dbErr := openCredentialDB(ctx, cfg.Postgres, logger)
		if dbErr != nil {
			return dbErr
		}
		defer closeWith(&err, db.Close, "close database")
		credentials = postgres.NewCredentialRepo(db)
		checks["postgres"] = db.PingContext
	}

	auth, err := BuildAuth(ctx, AuthConfig{
		Auth:        cfg.Auth,
		Sessions:    redisadapter.NewSessionStoreWithPrefix(redisClient, cfg.Redis.KeyPrefix+"session:"),
		FlowState:   flowStore,
		Credentials: credentials,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build auth: %w", err)
	}

	srv, err := NewHTTPServer(HTTPServerConfig{
		HTTP:        cfg.HTTP,
		LoginPath:   cfg.Auth.LoginPath,
		Auth:        auth,
		ReadyChecks: checks,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	ln, err := (&net.ListenConfig{}).Listen(ctx, "tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}
	return Serve(ctx, srv, ln, cfg.HTTP.ShutdownTimeout, logger)
}

func openCredentialDB(ctx context.Context, c config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := ConnectDB(ctx, c, logger)
	if err != nil {
		return nil, err
	}
	if !c.RunMigrationsOnStart {
		return db, nil
	}
	if err := RunMigrations(ctx, db, logger); err != nil {
		return nil, errors.Join(err, db.Close())
	}
	return db, nil
}

// buildMetrics never fails startup: an unreachable sink degrades to a client that drops.
func buildMetrics(cfg config.ObservabilityMetricsConfig, logger *slog.Logger) *statsd.Client {
	client, err := statsd.NewClient(statsd.Config{
		Enabled: cfg.IsEnabled(),
		Address: cfg.StatsdAddress,
		Prefix:  cfg.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		client, _ = statsd.NewClient(statsd.Config{Logger: logger})
	}
	return client
}

func closeWith(errp *error, closeFn func() error, what string) {
	if cerr := closeFn(); cerr != nil {
		*errp = errors.Join(*errp, fmt.Errorf("%s: %w", what, cerr))
	}
}
