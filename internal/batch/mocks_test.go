package batch

import (
	"context"
	"sync"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/entity/fake"
	"github.com/jbweber/hvctl/internal/runner"
)

// mockConnector opens sessions over a shared fake hypervisor and tracks
// how many are open at once.
type mockConnector struct {
	mu      sync.Mutex
	h       *fake.Hypervisor
	openErr error
	open    int
	peak    int
	total   int
}

func newMockConnector(h *fake.Hypervisor) *mockConnector {
	return &mockConnector{h: h}
}

func (c *mockConnector) Open(context.Context) (runner.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.open++
	c.total++
	c.peak = max(c.peak, c.open)
	return &mockSession{conn: c}, nil
}

func (c *mockConnector) stats() (open, peak, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open, c.peak, c.total
}

type mockSession struct {
	conn *mockConnector
}

func (s *mockSession) Backend() entity.Backend { return s.conn.h }
func (s *mockSession) ReadOnly() bool          { return false }
func (s *mockSession) Close() error {
	s.conn.mu.Lock()
	defer s.conn.mu.Unlock()
	s.conn.open--
	return nil
}

// recorder collects reported events.
type recorder struct {
	events []Event
}

func (r *recorder) Report(e Event) { r.events = append(r.events, e) }

func (r *recorder) messages() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Verdict.Message
	}
	return out
}

func domains(names ...string) []runner.Target {
	out := make([]runner.Target, len(names))
	for i, n := range names {
		out[i] = runner.DomainTarget(n)
	}
	return out
}
