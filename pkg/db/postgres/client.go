package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PoolConfig sizes the connection pool.
type PoolConfig struct {
	MinConns  int32
	MaxConns  int32
	Component string // Shown in logs and as application_name
}

// Conn is a connection checked out of the pool. It is satisfied by *pgxpool.Conn.
type Conn interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
	Release()
}

// Client wraps a pgx pool with a zap logger.
type Client struct {
	Pool   *pgxpool.Pool
	Logger *zap.Logger
}

// New creates a pooled client and verifies the connection.
func New(ctx context.Context, logger *zap.Logger, url string, poolConfig *PoolConfig) (Client, error) {
	config, err := pgxpool.ParseConfig(url)
	if err != nil {
		return Client{}, fmt.Errorf("parse config: %w", err)
	}

	if poolConfig != nil {
		if poolConfig.MinConns > 0 {
			config.MinConns = poolConfig.MinConns
		}
		if poolConfig.MaxConns > 0 {
			config.MaxConns = poolConfig.MaxConns
		}
		if poolConfig.Component != "" {
			config.ConnConfig.RuntimeParams["application_name"] = poolConfig.Component
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return Client{}, fmt.Errorf("create pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return Client{}, fmt.Errorf("ping: %w", err)
	}

	logger.Info("Connected to postgres",
		zap.Int32("min_conns", config.MinConns),
		zap.Int32("max_conns", config.MaxConns))

	return Client{Pool: pool, Logger: logger}, nil
}

// Exec runs a statement that returns no rows.
func (c *Client) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := c.Pool.Exec(ctx, query, args...); err != nil {
		c.Logger.Debug("exec failed", zap.String("query", firstLine(query)), zap.Error(err))
		return err
	}
	return nil
}

func (c *Client) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	return c.Pool.Query(ctx, query, args...)
}

func (c *Client) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	return c.Pool.QueryRow(ctx, query, args...)
}

// Acquire checks out one connection. It blocks while the pool is exhausted.
// The caller must Release it.
func (c *Client) Acquire(ctx context.Context) (Conn, error) {
	conn, err := c.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	return conn, nil
}

// Stat reports pool usage.
func (c *Client) Stat() *pgxpool.Stat {
	return c.Pool.Stat()
}

func (c *Client) Close() {
	c.Pool.Close()
}

// IsNoRows reports whether err is pgx.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a unique constraint violation (23505).
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// IsEncodingError reports whether err is a character encoding rejection:
// invalid byte sequence (22021) or untranslatable character (22P05).
func IsEncodingError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "22021" || pgErr.Code == "22P05"
}

func firstLine(query string) string {
	query = strings.TrimSpace(query)
	if i := strings.IndexByte(query, '\n'); i >= 0 {
		return query[:i]
	}
	return query
}
