package influxdb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/carewatch-core/internal/infrastructure/config"
)

const (
	pingTimeout = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 * time.Second
)

// Client batches radar telemetry points into one bucket. Writes never
// block: points queue in the client and failures surface through the
// SetOnError callback and Stats.
//
// A nil *Client accepts every call and writes nothing.
type Client struct {
	influx influxdb2.Client
	writer api.WriteAPI

	mu      sync.RWMutex
	open    bool
	onError func(error)

	queued    atomic.Uint64
	failed    atomic.Uint64
	lastError atomic.Int64 // unix nanoseconds, 0 when none
}

// Stats reports writer activity since Connect.
type Stats struct {
	Connected   bool       `json:"connected"`
	Points      uint64     `json:"points_queued"`
	WriteErrors uint64     `json:"write_errors"`
	LastErrorAt *time.Time `json:"last_error_at,omitempty"`
}

// Connect pings the server and opens a batching writer for cfg.Bucket.
// It returns ErrDisabled when cfg is not enabled and wraps
// ErrConnectionFailed when the server does not answer the ping.
func Connect(ctx context.Context, cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	influx := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, writeOptions(cfg))

	pingCtx, cancel := context.WithTimeout(ctx, 2*pingTimeout)
	defer cancel()
	ok, err := influx.Ping(pingCtx)
	switch {
	case err != nil:
		influx.Close()
		return nil, fmt.Errorf("%w: %s: %w", ErrConnectionFailed, cfg.URL, err)
	case !ok:
		influx.Close()
		return nil, fmt.Errorf("%w: %s is not ready", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{influx: influx, writer: influx.WriteAPI(cfg.Org, cfg.Bucket), open: true}
	go c.drainErrors(c.writer.Errors())
	return c, nil
}

// writeOptions applies the configured batch size and flush interval,
// falling back to defaults for unset values.
func writeOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(defaultBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := defaultFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func (c *Client) drainErrors(errs <-chan error) {
	for err := range errs {
		c.failed.Add(1)
		c.lastError.Store(time.Now().UnixNano())

		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// write queues p unless the client is nil or closed.
func (c *Client) write(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(p)
	c.queued.Add(1)
}

// Close flushes queued points and releases the client. Further writes
// are dropped.
func (c *Client) Close() error {
	if c == nil || c.influx == nil {
		return nil
	}

	c.mu.Lock()
	wasOpen := c.open
	c.open = false
	c.mu.Unlock()

	if wasOpen {
		c.writer.Flush()
		c.influx.Close()
	}
	return nil
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	ok, err := c.influx.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !ok {
		return fmt.Errorf("influxdb health check: server not ready")
	}
	return nil
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.open
}

// Stats returns writer counters. A nil client reports zero values.
func (c *Client) Stats() Stats {
	if c == nil {
		return Stats{}
	}
	s := Stats{
		Connected:   c.IsConnected(),
		Points:      c.queued.Load(),
		WriteErrors: c.failed.Load(),
	}
	if ns := c.lastError.Load(); ns != 0 {
		t := time.Unix(0, ns).UTC()
		s.LastErrorAt = &t
	}
	return s
}

// SetOnError sets the callback for asynchronous write failures.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// Flush writes queued points now.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}
