package clickhouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// ClientOption adjusts the driver options before the pool opens.
type ClientOption func(*clickhouse.Options)

// WithAddr sets the server host and port.
func WithAddr(host string, port int) ClientOption {
	return func(o *clickhouse.Options) {
		o.Addr = []string{net.JoinHostPort(host, strconv.Itoa(port))}
	}
}

func WithCredentials(user, password string) ClientOption {
	return func(o *clickhouse.Options) {
		o.Auth.Username = user
		o.Auth.Password = password
	}
}

func WithTimeouts(dial, read time.Duration) ClientOption {
	return func(o *clickhouse.Options) {
		if dial > 0 {
			o.DialTimeout = dial
		}
		if read > 0 {
			o.ReadTimeout = read
		}
	}
}

// WithHTTP selects the HTTP interface instead of the native protocol.
func WithHTTP(useHTTP bool) ClientOption {
	return func(o *clickhouse.Options) {
		if useHTTP {
			o.Protocol = clickhouse.HTTP
		}
	}
}

// WithAsyncInsert lets the server batch the one-row tick inserts. wait
// makes an insert return only once the batch is flushed.
func WithAsyncInsert(enabled, wait bool) ClientOption {
	return func(o *clickhouse.Options) {
		if !enabled {
			return
		}
		o.Settings["async_insert"] = 1
		if wait {
			o.Settings["wait_for_async_insert"] = 1
		} else {
			o.Settings["wait_for_async_insert"] = 0
		}
	}
}

func WithMaxExecutionTime(d time.Duration) ClientOption {
	return func(o *clickhouse.Options) {
		if secs := int(d.Seconds()); secs > 0 {
			o.Settings["max_execution_time"] = secs
		}
	}
}

// Client owns the ClickHouse connection pool. Table names are qualified by
// callers; the connection opens on the server's default database so the
// schema bootstrap can create its own.
type Client struct {
	db *sql.DB
}

func options(opts ...ClientOption) *clickhouse.Options {
	o := &clickhouse.Options{
		Protocol:        clickhouse.Native,
		Auth:            clickhouse.Auth{Username: "default"},
		Settings:        clickhouse.Settings{},
		DialTimeout:     5 * time.Second,
		ReadTimeout:     10 * time.Second,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// NewClient opens the pool and pings the server once.
func NewClient(ctx context.Context, opts ...ClientOption) (*Client, error) {
	o := options(opts...)
	if len(o.Addr) == 0 {
		return nil, errors.New("clickhouse: host is required")
	}

	db := clickhouse.OpenDB(o)
	pingCtx, cancel := context.WithTimeout(ctx, o.DialTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("clickhouse ping %s: %w", o.Addr[0], err)
	}
	return &Client{db: db}, nil
}

func (c *Client) DB() *sql.DB { return c.db }

func (c *Client) Health(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// InitSchema runs idempotent DDL statements in order.
func (c *Client) InitSchema(ctx context.Context, stmts []string) error {
	for i, stmt := range stmts {
		if _, err := c.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema statement %d: %w", i, err)
		}
	}
	return nil
}
