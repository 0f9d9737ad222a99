package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/mmk-gatekeeper/config"
	"github.com/target/mmk-gatekeeper/internal/migrate"
)

const connectTimeout = 5 * time.Second

// PostgresDSN builds a pgx connection string. url.URL escapes special characters
// in credentials.
func PostgresDSN(c config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectDB opens and pings the PostgreSQL credential database.
func ConnectDB(ctx context.Context, c config.DBConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", PostgresDSN(c))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Credential lookups are short and infrequent.
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		if closeErr := db.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close database connection: %w", closeErr))
		}
		return nil, fmt.Errorf("ping database: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database connected", "host", c.Host, "port", c.Port, "database", c.Name)
	}
	return db, nil
}

// RunMigrations applies the embedded credential schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if err := migrate.Run(ctx, db); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed")
	}
	return nil
}

// ConnectRedis builds a direct, sentinel or cluster client from c and pings it.
//
//nolint:ireturn // the concrete client type depends on configuration.
func ConnectRedis(ctx context.Context, c config.RedisConfig, logger *slog.Logger) (redis.UniversalClient, error) {
	client, desc, err := NewRedisClient(c)
	if err != nil {
		return nil, err
	}

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if pingErr := client.Ping(pingCtx).Err(); pingErr != nil {
		if closeErr := client.Close(); closeErr != nil {
			pingErr = errors.Join(pingErr, fmt.Errorf("close redis client: %w", closeErr))
		}
		return nil, fmt.Errorf("ping redis: %w", pingErr)
	}

	if logger != nil {
		logger.InfoContext(ctx, "redis connected", "addr", desc)
	}
	return client, nil
}

// NewRedisClient creates the client without connecting. desc is safe to log.
//
//nolint:ireturn // the concrete client type depends on configuration.
func NewRedisClient(c config.RedisConfig) (client redis.UniversalClient, desc string, err error) {
	switch {
	case c.UseCluster:
		opts, err := clusterOptions(c)
		if err != nil {
			return nil, "", err
		}
		return redis.NewClusterClient(opts), "cluster:" + strings.Join(opts.Addrs, ","), nil

	case c.UseSentinel:
		nodes := nonEmpty(c.SentinelNodes)
		if len(nodes) == 0 {
			return nil, "", errors.New("redis sentinel configuration requires at least one sentinel node")
		}
		return redis.NewFailoverClient(&redis.FailoverOptions{
			MasterName:       c.SentinelMasterName,
			SentinelAddrs:    nodes,
			Password:         c.Password,
			SentinelPassword: c.SentinelPassword,
		}), "sentinel:" + c.SentinelMasterName, nil

	default:
		opts, err := directOptions(c)
		if err != nil {
			return nil, "", err
		}
		return redis.NewClient(opts), opts.Addr, nil
	}
}

// directOptions accepts either a redis:// URL or a bare host:port.
func directOptions(c config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(c.URI)
	if uri == "" {
		return nil, errors.New("redis direct configuration requires a URI")
	}
	if !isRedisURL(uri) {
		return &redis.Options{Addr: uri, Password: c.Password}, nil
	}
	opts, err := redis.ParseURL(uri)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if opts.Password == "" {
		opts.Password = c.Password
	}
	return opts, nil
}

// clusterOptions uses CLUSTER_NODES, falling back to the single URI as a seed node.
func clusterOptions(c config.RedisConfig) (*redis.ClusterOptions, error) {
	opts := &redis.ClusterOptions{Addrs: nonEmpty(c.ClusterNodes), Password: c.Password}
	if len(opts.Addrs) > 0 {
		return opts, nil
	}
	if strings.TrimSpace(c.URI) == "" {
		return nil, errors.New("redis cluster configuration requires at least one address")
	}
	seed, err := directOptions(c)
	if err != nil {
		return nil, fmt.Errorf("redis cluster seed: %w", err)
	}
	opts.Addrs = []string{seed.Addr}
	opts.Username = seed.Username
	opts.Password = seed.Password
	opts.TLSConfig = seed.TLSConfig
	return opts, nil
}

func nonEmpty(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func isRedisURL(value string) bool {
	return strings.HasPrefix(value, "redis://") || strings.HasPrefix(value, "rediss://")
}
