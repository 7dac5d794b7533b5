package batch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/entity/fake"
	"github.com/jbweber/hvctl/internal/runner"
	"github.com/jbweber/hvctl/internal/telemetry"
)

func assertInvariants(t *testing.T, s Summary) {
	t.Helper()
	assert.Equal(t, s.Total-s.Success, s.Failed, "failed must be total - success")
	assert.LessOrEqual(t, s.Success, s.Total)
	for name, v := range map[string]int{
		"success": s.Success, "failed": s.Failed, "skipped": s.Skipped,
		"timed_out": s.TimedOut, "forced": s.Forced, "not_found": s.NotFound,
		"ignored": s.Ignored,
	} {
		assert.GreaterOrEqual(t, v, 0, name)
	}
}

func stoppedDomains(h *fake.Hypervisor, names ...string) {
	for _, n := range names {
		h.AddDomain(fake.Domain{Name: n, Persistent: true})
	}
}

func TestCoordinator_AllSucceed(t *testing.T) {
	h := fake.New()
	var names []string
	for i := range 12 {
		names = append(names, fmt.Sprintf("vm%02d", i))
	}
	stoppedDomains(h, names...)
	conn := newMockConnector(h)
	rec := &recorder{}

	c := New(conn, Policy{Jobs: 4, Idempotent: true}, WithReporter(rec))
	s, err := c.Run(context.Background(), domains(names...), runner.Start{Idempotent: true})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 12, Success: 12}, s)
	assertInvariants(t, s)
	assert.Len(t, rec.events, 12)

	open, peak, total := conn.stats()
	assert.Zero(t, open, "every session closed")
	assert.LessOrEqual(t, peak, 4)
	assert.Equal(t, 12, total, "one session per unit")

	for _, n := range names {
		d, _ := h.GetDomain(n)
		assert.True(t, d.Active, n)
	}
}

func TestCoordinator_ZeroTargets(t *testing.T) {
	for _, failIfNoMatch := range []bool{false, true} {
		t.Run(fmt.Sprintf("fail_if_no_match=%v", failIfNoMatch), func(t *testing.T) {
			conn := newMockConnector(fake.New())
			p := Policy{FailIfNoMatch: failIfNoMatch}

			s, err := New(conn, p).Run(context.Background(), nil, runner.Start{})

			require.NoError(t, err)
			assert.Equal(t, Summary{}, s)
			_, _, total := conn.stats()
			assert.Zero(t, total)
			if failIfNoMatch {
				assert.Equal(t, ExitEntityNotFound, ExitCode(s, p, err))
			} else {
				assert.Equal(t, ExitSuccess, ExitCode(s, p, err))
			}
		})
	}
}

func TestCoordinator_FailFastSequential(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a", "b", "c", "d", "e")
	h.FailOn("DomainCreate", "b", fake.Error(libvirt.ErrOperationFailed, "boom"))
	h.FailOn("DomainCreate", "d", fake.Error(libvirt.ErrOperationFailed, "boom"))
	rec := &recorder{}

	c := New(newMockConnector(h), Policy{Jobs: 1, FailFast: true}, WithReporter(rec))
	s, err := c.Run(context.Background(), domains("a", "b", "c", "d", "e"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, 1, s.Success)
	assert.Equal(t, 4, s.Failed)
	assert.Zero(t, s.Ignored)
	assertInvariants(t, s)
	assert.Equal(t, []string{
		`Starting domain "a".`,
		`Failed to start domain "b".`,
	}, rec.messages())
	assert.Zero(t, h.CountCalls("DomainCreate", "c"), "nothing submitted after the trip")
}

func TestCoordinator_FailFastParallel(t *testing.T) {
	h := fake.New()
	names := []string{"a", "b", "c", "d", "e"}
	stoppedDomains(h, names...)
	h.FailOn("DomainCreate", "b", fake.Error(libvirt.ErrOperationFailed, "boom"))
	h.FailOn("DomainCreate", "d", fake.Error(libvirt.ErrOperationFailed, "boom"))

	c := New(newMockConnector(h), Policy{Jobs: 2, FailFast: true})
	s, err := c.Run(context.Background(), domains(names...), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, 5, s.Total)
	assert.GreaterOrEqual(t, s.Failed, 1)
	assert.LessOrEqual(t, s.Success, 3)
	assertInvariants(t, s)

	started := 0
	for _, n := range names {
		started += h.CountCalls("DomainCreate", n)
	}
	assert.GreaterOrEqual(t, started, s.Success+s.Ignored)
}

func TestCoordinator_ContinuesWithoutFailFast(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a", "b", "c")
	h.FailOn("DomainCreate", "b", fake.Error(libvirt.ErrOperationFailed, "boom"))

	s, err := New(newMockConnector(h), Policy{Jobs: 3}).Run(context.Background(), domains("a", "b", "c"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Success: 2, Failed: 1}, s)
	assert.Equal(t, ExitOperationFailed, ExitCode(s, Policy{}, err))
}

func TestCoordinator_Idempotent(t *testing.T) {
	tests := []struct {
		name       string
		idempotent bool
		want       Summary
	}{
		{"idempotent", true, Summary{Total: 2, Success: 2, Skipped: 1}},
		{"strict", false, Summary{Total: 2, Success: 1, Failed: 1, Skipped: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fake.New()
			h.AddDomain(fake.Domain{Name: "up", Active: true, Persistent: true})
			h.AddDomain(fake.Domain{Name: "down", Persistent: true})
			rec := &recorder{}

			c := New(newMockConnector(h), Policy{Jobs: 1, FailFast: true, Idempotent: tt.idempotent}, WithReporter(rec))
			s, err := c.Run(context.Background(), domains("up", "down"), runner.Start{})

			require.NoError(t, err)
			assert.Equal(t, tt.want, s)
			assert.Contains(t, rec.messages(), `Domain "up" is already started.`)
			assert.Equal(t, 1, h.CountCalls("DomainCreate", "down"), "a skip never trips fail-fast")
		})
	}
}

func TestCoordinator_Dedupe(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a")

	s, err := New(newMockConnector(h), Policy{Jobs: 4}).Run(context.Background(), domains("a", "a", "a"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Success: 1}, s)
	assert.Equal(t, 1, h.CountCalls("DomainCreate", "a"))
}

func TestCoordinator_NotFound(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a")
	rec := &recorder{}

	s, err := New(newMockConnector(h), Policy{Jobs: 2}, WithReporter(rec)).
		Run(context.Background(), domains("a", "ghost"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Success: 1, Failed: 1, NotFound: 1}, s)
	assert.Contains(t, rec.messages(), `Could not find domain "ghost".`)
}

func TestCoordinator_ForcedCountsAsFailed(t *testing.T) {
	h := fake.New()
	h.AddDomain(fake.Domain{Name: "stuck", Active: true, Persistent: true, ShutdownAfter: -1})
	p := Policy{Jobs: 1, Idempotent: true}
	rec := &recorder{}

	s, err := New(newMockConnector(h), p, WithReporter(rec)).
		Run(context.Background(), domains("stuck"), runner.Shutdown{Force: true, Idempotent: true})

	require.NoError(t, err)
	assertInvariants(t, s)
	assert.Equal(t, Summary{Total: 1, Failed: 1, Forced: 1}, s)
	assert.Equal(t, ExitOperationFailed, ExitCode(s, p, err))
	assert.Equal(t, []string{`Domain "stuck" failed to shut down and was forced to do so anyway.`}, rec.messages())
	d, _ := h.GetDomain("stuck")
	assert.False(t, d.Active)

	// a forced stop does not trip fail-fast
	h = fake.New()
	h.AddDomain(fake.Domain{Name: "stuck", Active: true, Persistent: true, ShutdownAfter: -1})
	h.AddDomain(fake.Domain{Name: "polite", Active: true, Persistent: true})
	p.FailFast = true
	s, err = New(newMockConnector(h), p).
		Run(context.Background(), domains("stuck", "polite"), runner.Shutdown{Force: true, Idempotent: true})
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Success: 1, Failed: 1, Forced: 1}, s)
	d, _ = h.GetDomain("polite")
	assert.False(t, d.Active)
}

func TestCoordinator_ParentNotFound(t *testing.T) {
	h := fake.New()
	p := Policy{Jobs: 1, Idempotent: true}
	rec := &recorder{}

	targets := []runner.Target{runner.VolumeTarget("nopool", "disk")}
	s, err := New(newMockConnector(h), p, WithReporter(rec)).Run(context.Background(), targets, runner.Delete{Idempotent: true})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 1, Failed: 1, NotFound: 1, ParentNotFound: 1}, s)
	assert.Equal(t, []string{`Could not find storage pool "nopool".`}, rec.messages())
	assert.Equal(t, ExitParentNotFound, ExitCode(s, p, err))
}

func TestCoordinator_RemovalRace(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "default", Active: true, Persistent: true, Path: "/srv"})
	h.AddVolume("default", fake.Volume{Name: "a.qcow2"})
	rec := &recorder{}

	// b.qcow2 was listed but is gone by the time its unit runs.
	targets := []runner.Target{
		runner.VolumeTarget("default", "a.qcow2"),
		runner.VolumeTarget("default", "b.qcow2"),
	}
	p := Policy{Jobs: 1, FailFast: true, Idempotent: true}
	s, err := New(newMockConnector(h), p, WithReporter(rec)).Run(context.Background(), targets, runner.Delete{Idempotent: true})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Success: 2, Skipped: 1}, s)
	assert.Equal(t, []string{
		`Deleting volume "a.qcow2".`,
		`Volume "b.qcow2" is already deleted.`,
	}, rec.messages())

	t.Run("strict", func(t *testing.T) {
		s, err := New(newMockConnector(h), Policy{Jobs: 1}).Run(context.Background(), targets[1:], runner.Delete{})
		require.NoError(t, err)
		assert.Equal(t, Summary{Total: 1, Failed: 1, NotFound: 1}, s)
	})
}

func TestCoordinator_Defect(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "default", Active: true, Persistent: true})
	h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true})
	targets := []runner.Target{runner.PoolTarget("default"), runner.PoolTarget("images")}

	s, err := New(newMockConnector(h), Policy{Jobs: 2}).Run(context.Background(), targets, runner.Shutdown{Timeout: time.Second})

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrUnsupported)
	assert.Equal(t, 2, s.Total)
	assert.Zero(t, s.Success)
	assertInvariants(t, s)
	assert.Equal(t, ExitFailure, ExitCode(s, Policy{}, err))
}

func TestCoordinator_ConnectFailure(t *testing.T) {
	conn := newMockConnector(fake.New())
	conn.openErr = errors.New("dial unix /var/run/libvirt/libvirt-sock: connect: no such file or directory")
	rec := &recorder{}

	s, err := New(conn, Policy{Jobs: 1, FailFast: true}, WithReporter(rec)).
		Run(context.Background(), domains("a", "b"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Failed: 2}, s)
	require.Len(t, rec.events, 1)
	assert.Contains(t, rec.events[0].Verdict.Message, `Could not connect to the hypervisor to start domain "a"`)
}

func TestCoordinator_Cancelled(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a", "b")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s, err := New(newMockConnector(h), Policy{Jobs: 1}).Run(ctx, domains("a", "b"), runner.Start{})

	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 2, Failed: 2}, s)
	assert.Zero(t, h.CountCalls("DomainCreate", "a"))
}

func TestCoordinator_Metrics(t *testing.T) {
	h := fake.New()
	stoppedDomains(h, "a", "b")
	h.AddDomain(fake.Domain{Name: "c", Active: true, Persistent: true})
	m := telemetry.NewMetrics()

	_, err := New(newMockConnector(h), Policy{Jobs: 2}, WithMetrics(m)).
		Run(context.Background(), domains("a", "b", "c"), runner.Start{})
	require.NoError(t, err)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var series int
	var batch float64
	for _, f := range families {
		switch f.GetName() {
		case "hvctl_operations_total":
			series = len(f.GetMetric())
		case "hvctl_batch_targets":
			batch = f.GetMetric()[0].GetGauge().GetValue()
		}
	}
	assert.Equal(t, 2, series, "one series per outcome")
	assert.Equal(t, 3.0, batch)
}

func TestSingle(t *testing.T) {
	assert.Equal(t, Summary{Total: 1, Failed: 1, Forced: 1}, Single(Verdict{Outcome: OutcomeForced}))
	assert.Equal(t, Summary{Total: 1, Failed: 1, TimedOut: 1}, Single(Verdict{Outcome: OutcomeTimedOut}))
}
