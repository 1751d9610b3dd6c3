package influxdb

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/ems-console/internal/infrastructure/config"
)

const (
	connectTimeout = 10 * time.Second
	pingTimeout    = 5 * time.Second

	fallbackBatchSize     = 100
	fallbackFlushInterval = 10 * time.Second
)

// Client records device connection changes and dashboard counters as time
// series. Writes are batched and never block the caller.
//
// A nil *Client is valid and discards every write, so components can hold
// one unconditionally when InfluxDB is turned off.
type Client struct {
	raw    influxdb2.Client
	writer api.WriteAPI

	open    atomic.Bool
	onError atomic.Pointer[func(error)]
}

// Connect pings the server and prepares the batched write API for
// cfg.Org/cfg.Bucket. It returns ErrDisabled when cfg.Enabled is false.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	raw := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, clientOptions(cfg))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := ping(ctx, raw); err != nil {
		raw.Close()
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c := &Client{
		raw:    raw,
		writer: raw.WriteAPI(cfg.Org, cfg.Bucket),
	}
	c.open.Store(true)

	go c.drainErrors()
	return c, nil
}

func clientOptions(cfg config.InfluxDBConfig) *influxdb2.Options {
	batch := uint(fallbackBatchSize)
	if cfg.BatchSize > 0 {
		batch = uint(cfg.BatchSize)
	}
	flush := fallbackFlushInterval
	if cfg.FlushInterval > 0 {
		flush = time.Duration(cfg.FlushInterval) * time.Second
	}
	return influxdb2.DefaultOptions().
		SetBatchSize(batch).
		SetFlushInterval(uint(flush.Milliseconds()))
}

func ping(ctx context.Context, raw influxdb2.Client) error {
	healthy, err := raw.Ping(ctx)
	if err != nil {
		return err
	}
	if !healthy {
		return errors.New("server not healthy")
	}
	return nil
}

// drainErrors forwards asynchronous write failures to the OnError callback
// until the write API shuts down.
func (c *Client) drainErrors() {
	for err := range c.writer.Errors() {
		if fn := c.onError.Load(); fn != nil {
			(*fn)(err)
		}
	}
}

// SetOnError registers the callback for failed batch writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.onError.Store(&fn)
}

// IsConnected reports whether the client is open.
func (c *Client) IsConnected() bool {
	return c != nil && c.open.Load()
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := ping(ctx, c.raw); err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	return nil
}

// Flush writes buffered points now. No-op once closed.
func (c *Client) Flush() {
	if c.IsConnected() {
		c.writer.Flush()
	}
}

// Close flushes pending points and releases the client. Further writes
// are dropped.
func (c *Client) Close() error {
	if c == nil || !c.open.CompareAndSwap(true, false) {
		return nil
	}
	c.writer.Flush()
	c.raw.Close()
	return nil
}
