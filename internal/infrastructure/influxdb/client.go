package influxdb

import (
	"context"
	"fmt"
	"sync"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/nerrad567/jcihitachi-core/internal/infrastructure/config"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultPingTimeout    = 5 * time.Second

	defaultBatchSize     = 100
	defaultFlushInterval = 10 // seconds
)

// Client is a batched telemetry writer. Safe for concurrent use.
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI

	mu        sync.RWMutex
	connected bool
	onError   func(err error)
}

// Connect pings the server and opens a non-blocking write API for
// cfg.Org/cfg.Bucket.
func Connect(cfg config.InfluxDBConfig) (*Client, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	flushInterval := cfg.FlushInterval
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}

	// #nosec G115 -- both values are positive here
	opts := influxdb2.DefaultOptions().
		SetBatchSize(uint(batchSize)).
		SetFlushInterval(uint(flushInterval) * uint(time.Second/time.Millisecond))
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)

	ctx, cancel := context.WithTimeout(context.Background(), defaultConnectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrConnectionFailed, cfg.URL, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: %s reports unhealthy", ErrConnectionFailed, cfg.URL)
	}

	c := &Client{
		client:    client,
		writeAPI:  client.WriteAPI(cfg.Org, cfg.Bucket),
		connected: true,
	}
	go c.forwardErrors(c.writeAPI.Errors())
	return c, nil
}

func (c *Client) forwardErrors(errs <-chan error) {
	for err := range errs {
		c.mu.RLock()
		fn := c.onError
		c.mu.RUnlock()
		if fn != nil {
			fn(err)
		}
	}
}

// SetOnError registers fn for failures of batched writes.
func (c *Client) SetOnError(fn func(err error)) {
	c.mu.Lock()
	c.onError = fn
	c.mu.Unlock()
}

// IsConnected reports whether Close has not yet been called.
func (c *Client) IsConnected() bool {
	if c == nil {
		return false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// HealthCheck pings the server.
func (c *Client) HealthCheck(ctx context.Context) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	ctx, cancel := context.WithTimeout(ctx, defaultPingTimeout)
	defer cancel()

	healthy, err := c.client.Ping(ctx)
	if err != nil {
		return fmt.Errorf("influxdb health check: %w", err)
	}
	if !healthy {
		return fmt.Errorf("influxdb health check: server unhealthy")
	}
	return nil
}

// Flush blocks until buffered points have been sent. No-op after Close.
func (c *Client) Flush() {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.Flush()
}

// Close flushes pending points and releases the client.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()

	if wasConnected {
		c.writeAPI.Flush()
		c.client.Close()
	}
	return nil
}
