package db

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Querier is the subset of pgx shared by pools, connections and transactions.
// Repositories depend on it rather than on a concrete pool.
type Querier interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// Client owns the single connection pool of the process and tracks whether
// the store answered the last ping.
type Client struct {
	pool   *pgxpool.Pool
	ready  atomic.Bool
	logger zerolog.Logger
}

// Open parses databaseURL and creates the pool. An unreachable database is
// not an error: the client starts not-ready and callers fall back to their
// caches until a later Ping succeeds.
func Open(ctx context.Context, databaseURL string, maxConns, minConns int32, logger zerolog.Logger) (*Client, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}

	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	c := &Client{pool: pool, logger: logger}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := c.Ping(pingCtx); err != nil {
		logger.Warn().Err(err).Msg("database not reachable at startup")
	}
	return c, nil
}

// Pool exposes the underlying pool for the migrator and reporting queries.
func (c *Client) Pool() *pgxpool.Pool { return c.pool }

// Ready reports whether the last ping or query round-trip succeeded.
func (c *Client) Ready() bool { return c.ready.Load() }

// Ping checks the store and records the outcome.
func (c *Client) Ping(ctx context.Context) error {
	err := c.pool.Ping(ctx)
	prev := c.ready.Swap(err == nil)
	if prev && err != nil {
		c.logger.Warn().Err(err).Msg("database became unreachable")
	} else if !prev && err == nil {
		c.logger.Info().Msg("database reachable")
	}
	return err
}

func (c *Client) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	rows, err := c.pool.Query(ctx, sql, args...)
	c.observe(err)
	return rows, err
}

func (c *Client) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

func (c *Client) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	tag, err := c.pool.Exec(ctx, sql, args...)
	c.observe(err)
	return tag, err
}

// Close releases the pool.
func (c *Client) Close() { c.pool.Close() }

// observe flips readiness on connection-level failures only; SQL errors
// reported by a live server leave the client ready.
func (c *Client) observe(err error) {
	if err == nil {
		c.ready.Store(true)
		return
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return
	}
	if c.ready.Swap(false) {
		c.logger.Warn().Err(err).Msg("database became unreachable")
	}
}

// IsNoRows reports whether err means the selected row does not exist.
func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// TxRunner is implemented by stores that can run several statements
// atomically.
type TxRunner interface {
	InTx(ctx context.Context, fn func(q Querier) error) error
}

// InTx runs fn inside one transaction, committing when fn returns nil.
func (c *Client) InTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := c.pool.Begin(ctx)
	c.observe(err)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
