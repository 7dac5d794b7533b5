package libvirt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ErrNotStarted is returned by Open before Start has succeeded.
var ErrNotStarted = errors.New("connector not started")

// Connector is the process-wide entry point to the hypervisor. It is
// constructed once by the top-level command and passed down explicitly.
//
// Start probes the daemon exactly once; later calls return the first
// result. Open hands out a fresh Client on every call and never pools
// connections.
type Connector struct {
	desc Descriptor

	dial  func(ctx context.Context, d Descriptor) (*Client, error)
	probe func(c *Client) (ServerInfo, error)

	once     sync.Once
	mu       sync.RWMutex
	started  bool
	startErr error
	info     ServerInfo
}

// NewConnector creates a Connector for desc. It performs no I/O.
func NewConnector(desc Descriptor) *Connector {
	return &Connector{
		desc:  desc,
		dial:  DialContext,
		probe: (*Client).Info,
	}
}

// Descriptor returns the descriptor connections are opened from.
func (c *Connector) Descriptor() Descriptor {
	return c.desc
}

// Start connects once to verify the daemon is reachable and records its
// version. It is safe to call from multiple goroutines; only the first
// call does any work.
func (c *Connector) Start(ctx context.Context) error {
	c.once.Do(func() {
		info, err := c.start(ctx)

		c.mu.Lock()
		defer c.mu.Unlock()
		c.started = err == nil
		c.startErr = err
		c.info = info
	})

	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startErr
}

func (c *Connector) start(ctx context.Context) (ServerInfo, error) {
	log := zerolog.Ctx(ctx)

	client, err := c.dial(ctx, c.desc)
	if err != nil {
		return ServerInfo{}, err
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("failed to close probe connection")
		}
	}()

	info, err := c.probe(client)
	if err != nil {
		return ServerInfo{}, fmt.Errorf("probe %s: %w", c.desc.URI, err)
	}

	log.Debug().
		Str("uri", info.URI).
		Str("hostname", info.Hostname).
		Str("version", info.Version).
		Bool("read_only", c.desc.ReadOnly).
		Msg("connected to libvirt")

	return info, nil
}

// Info returns what Start learned about the daemon.
func (c *Connector) Info() ServerInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.info
}

// Open returns a new connection. The caller owns it and must Close it.
func (c *Connector) Open(ctx context.Context) (*Client, error) {
	c.mu.RLock()
	started, startErr := c.started, c.startErr
	c.mu.RUnlock()

	if !started {
		if startErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNotStarted, startErr)
		}
		return nil, ErrNotStarted
	}

	return c.dial(ctx, c.desc)
}
