package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/target/mmk-gatekeeper/internal/adapters/postgres"
	redisadapter "github.com/target/mmk-gatekeeper/internal/adapters/redis"
	"github.com/target/mmk-gatekeeper/internal/bootstrap"
)

const defaultCommandTimeout = 5 * time.Minute

// commandScope bounds a command by timeout and by SIGINT/SIGTERM.
func commandScope(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	ctx, cancel := context.WithTimeout(ctx, timeout)
	return ctx, func() {
		cancel()
		stop()
	}
}

func withDB(cmdCtx *commandContext, timeout time.Duration, fn func(ctx context.Context, db *sql.DB) error) error {
	ctx, cancel := commandScope(cmdCtx.Ctx, timeout)
	defer cancel()

	db, err := bootstrap.ConnectDB(ctx, cmdCtx.Config.Postgres, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("db close failed", "error", closeErr)
		}
	}()
	return fn(ctx, db)
}

func withCredentials(cmdCtx *commandContext, fn func(ctx context.Context, repo *postgres.CredentialRepo) error) error {
	return withDB(cmdCtx, defaultCommandTimeout, func(ctx context.Context, db *sql.DB) error {
		return fn(ctx, postgres.NewCredentialRepo(db))
	})
}

func withSessions(cmdCtx *commandContext, fn func(ctx context.Context, store *redisadapter.SessionStore) error) error {
	ctx, cancel := commandScope(cmdCtx.Ctx, time.Minute)
	defer cancel()

	client, err := bootstrap.ConnectRedis(ctx, cmdCtx.Config.Redis, cmdCtx.Logger)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			cmdCtx.Logger.Warn("redis close failed", "error", closeErr)
		}
	}()
	return fn(ctx, redisadapter.NewSessionStoreWithPrefix(client, cmdCtx.Config.Redis.KeyPrefix+"session:"))
}
