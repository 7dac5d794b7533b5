package runner

import (
	"context"

	"github.com/jbweber/hvctl/internal/entity"
	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
)

// Session is one open connection, owned by a single unit.
type Session interface {
	Backend() entity.Backend
	ReadOnly() bool
	Close() error
}

// Connector opens a new Session for every call.
type Connector interface {
	Open(ctx context.Context) (Session, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context) (Session, error)

func (f ConnectorFunc) Open(ctx context.Context) (Session, error) { return f(ctx) }

// LibvirtConnector opens sessions through c, which must have been started.
func LibvirtConnector(c *hvlibvirt.Connector) Connector {
	return ConnectorFunc(func(ctx context.Context) (Session, error) {
		client, err := c.Open(ctx)
		if err != nil {
			return nil, err
		}
		return ClientSession(client), nil
	})
}

// ClientSession wraps an already open client.
func ClientSession(c *hvlibvirt.Client) Session {
	return clientSession{c}
}

type clientSession struct {
	client *hvlibvirt.Client
}

func (s clientSession) Backend() entity.Backend { return s.client.Libvirt() }
func (s clientSession) ReadOnly() bool          { return s.client.ReadOnly() }
func (s clientSession) Close() error            { return s.client.Close() }
