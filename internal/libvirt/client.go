package libvirt

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/digitalocean/go-libvirt/socket"
	"github.com/digitalocean/go-libvirt/socket/dialers"
)

// Client wraps one go-libvirt connection. A Client must not be shared
// between goroutines that run independent operations; open one per unit of
// work instead.
type Client struct {
	libvirt  *libvirt.Libvirt
	readOnly bool
	uri      string
}

// Dial establishes a connection described by d.
// It returns a Client that must be closed via Close() when done.
func Dial(d Descriptor) (*Client, error) {
	if d.Timeout == 0 {
		d.Timeout = DefaultTimeout
	}

	l := libvirt.NewWithDialer(dialerFor(d))
	if err := l.ConnectToURI(libvirt.ConnectURI(d.URI)); err != nil {
		return nil, fmt.Errorf("failed to connect to libvirt at %s: %w", d.Address(), err)
	}

	return &Client{libvirt: l, readOnly: d.ReadOnly, uri: d.URI}, nil
}

// DialContext is Dial with context support for cancellation.
func DialContext(ctx context.Context, d Descriptor) (*Client, error) {
	type result struct {
		client *Client
		err    error
	}
	resultCh := make(chan result, 1)

	go func() {
		c, err := Dial(d)
		resultCh <- result{client: c, err: err}
	}()

	select {
	case <-ctx.Done():
		// The dial may still succeed; make sure it does not leak.
		go func() {
			if res := <-resultCh; res.client != nil {
				_ = res.client.Close()
			}
		}()
		return nil, fmt.Errorf("connection cancelled: %w", ctx.Err())
	case res := <-resultCh:
		return res.client, res.err
	}
}

func dialerFor(d Descriptor) socket.Dialer {
	if d.Remote() {
		return dialers.NewRemote(d.Host,
			dialers.UsePort(d.Port),
			dialers.WithRemoteTimeout(d.Timeout),
		)
	}
	return dialers.NewLocal(
		dialers.WithSocket(d.Socket),
		dialers.WithLocalTimeout(d.Timeout),
	)
}

// Close closes the libvirt connection and releases resources.
// It is safe to call Close multiple times.
func (c *Client) Close() error {
	if c == nil || c.libvirt == nil {
		return nil
	}

	l := c.libvirt
	c.libvirt = nil
	if err := l.Disconnect(); err != nil {
		return fmt.Errorf("failed to disconnect from libvirt: %w", err)
	}

	return nil
}

// Libvirt returns the underlying go-libvirt client for direct API access.
// Consumers should wrap it in their own narrow interfaces.
func (c *Client) Libvirt() *libvirt.Libvirt {
	return c.libvirt
}

// ReadOnly reports whether mutating operations must be refused.
func (c *Client) ReadOnly() bool {
	return c.readOnly
}

// URI returns the URI the client was opened with.
func (c *Client) URI() string {
	return c.uri
}

// Ping verifies the connection is still alive by calling a simple libvirt API.
func (c *Client) Ping() error {
	if c.libvirt == nil {
		return fmt.Errorf("client not connected")
	}

	if _, err := c.libvirt.ConnectGetLibVersion(); err != nil {
		return fmt.Errorf("libvirt connection is dead: %w", err)
	}

	return nil
}

// ServerInfo describes the daemon on the other end of a connection.
type ServerInfo struct {
	Version  string
	Hostname string
	URI      string
}

// Info queries the daemon version, hostname and canonical URI.
func (c *Client) Info() (ServerInfo, error) {
	if c.libvirt == nil {
		return ServerInfo{}, fmt.Errorf("client not connected")
	}

	version, err := c.libvirt.ConnectGetLibVersion()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get libvirt version: %w", err)
	}
	hostname, err := c.libvirt.ConnectGetHostname()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get hostname: %w", err)
	}
	uri, err := c.libvirt.ConnectGetUri()
	if err != nil {
		return ServerInfo{}, fmt.Errorf("failed to get connection URI: %w", err)
	}

	return ServerInfo{Version: FormatVersion(version), Hostname: hostname, URI: uri}, nil
}

// FormatVersion renders a libvirt version integer (8006000) as 8.6.0.
func FormatVersion(v uint64) string {
	major := v / 1000000
	minor := (v % 1000000) / 1000
	patch := v % 1000
	return fmt.Sprintf("%d.%d.%d", major, minor, patch)
}
