// Package clickhouse reads candles from and writes trade ledgers to
// ClickHouse.
package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"
)

type Client struct {
	conn        driver.Conn
	database    string
	table       string
	tradesTable string
	log         *zap.Logger
}

type options struct {
	addr        string
	database    string
	table       string
	tradesTable string
	user        string
	password    string
	dialTimeout time.Duration
	log         *zap.Logger
}

type Option func(*options)

func WithAddr(addr string) Option { return func(o *options) { o.addr = addr } }

func WithAuth(user, password string) Option {
	return func(o *options) { o.user, o.password = user, password }
}

// WithTables sets the database, candle table and trade ledger table.
func WithTables(database, candles, trades string) Option {
	return func(o *options) { o.database, o.table, o.tradesTable = database, candles, trades }
}

func WithDialTimeout(d time.Duration) Option { return func(o *options) { o.dialTimeout = d } }

func WithLogger(l *zap.Logger) Option { return func(o *options) { o.log = l } }

// NewClient opens a native-protocol connection and pings it.
func NewClient(ctx context.Context, opts ...Option) (*Client, error) {
	o := options{
		addr:        "localhost:9000",
		database:    "market",
		table:       "candles",
		tradesTable: "backtest_trades",
		user:        "default",
		dialTimeout: 10 * time.Second,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.addr},
		Auth: clickhouse.Auth{
			Database: o.database,
			Username: o.user,
			Password: o.password,
		},
		DialTimeout: o.dialTimeout,
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}
	return NewFromConn(conn, o.database, o.table, o.tradesTable, o.log), nil
}

// NewFromConn wraps an existing connection.
func NewFromConn(conn driver.Conn, database, table, tradesTable string, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{conn: conn, database: database, table: table, tradesTable: tradesTable, log: log}
}

func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) candles() string { return fmt.Sprintf("%s.%s", c.database, c.table) }

func (c *Client) trades() string { return fmt.Sprintf("%s.%s", c.database, c.tradesTable) }

// EnsureSchema creates the database and both tables when missing.
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", c.database)); err != nil {
		return fmt.Errorf("create database: %w", err)
	}
	if err := c.conn.Exec(ctx, candlesDDL(c.candles())); err != nil {
		return fmt.Errorf("create candles table: %w", err)
	}
	if err := c.conn.Exec(ctx, tradesDDL(c.trades())); err != nil {
		return fmt.Errorf("create trades table: %w", err)
	}
	return nil
}

func candlesDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			symbol String,
			interval LowCardinality(String),
			open_time_ms UInt64,
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64,
			ingested_at DateTime64(3),
			version UInt64
		)
		ENGINE = ReplacingMergeTree(version)
		ORDER BY (symbol, interval, open_time_ms)
		SETTINGS index_granularity = 8192
	`, table)
}

func tradesDDL(table string) string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id String,
			ticker String,
			entry_conditions_id String,
			exit_conditions_id String,
			position_id UInt32,
			date Date,
			entry_time DateTime64(3, 'UTC'),
			exit_time DateTime64(3, 'UTC'),
			entry_price Float64,
			exit_price Float64,
			profit Float64,
			force_closed UInt8,
			created_at DateTime64(3, 'UTC')
		)
		ENGINE = MergeTree
		ORDER BY (job_id, ticker, position_id)
	`, table)
}
