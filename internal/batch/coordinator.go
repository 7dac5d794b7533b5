package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/runner"
	"github.com/jbweber/hvctl/internal/telemetry"
)

// Event is one classified result handed to a Reporter.
type Event struct {
	Target    runner.Target
	Operation string
	Verdict   Verdict
}

// Reporter receives every classified result. Report is only ever called
// from the goroutine running Coordinator.Run.
type Reporter interface {
	Report(Event)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(Event)

func (f ReporterFunc) Report(e Event) { f(e) }

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithReporter sets the reporter for per-target messages.
func WithReporter(r Reporter) Option {
	return func(c *Coordinator) { c.reporter = r }
}

// WithMetrics records every unit in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// Coordinator runs one operation over many targets, each in its own unit
// with its own session.
type Coordinator struct {
	conn     runner.Connector
	policy   Policy
	reporter Reporter
	metrics  *telemetry.Metrics
}

// New creates a coordinator opening sessions through conn.
func New(conn runner.Connector, policy Policy, opts ...Option) *Coordinator {
	c := &Coordinator{
		conn:   conn,
		policy: policy,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the policy the coordinator was created with.
func (c *Coordinator) Policy() Policy { return c.policy }

type unit struct {
	res     runner.Result[entity.LifecycleResult]
	elapsed time.Duration
}

// Run applies op to every target and returns the summary. The error is
// non-nil only for internal defects; operation failures are in the
// summary.
func (c *Coordinator) Run(ctx context.Context, targets []runner.Target, op runner.Operation) (Summary, error) {
	targets = dedupe(targets)
	jobs := min(c.policy.jobs(), max(len(targets), 1))

	ctx, span := telemetry.Tracer().Start(ctx, "batch."+op.Name(), trace.WithAttributes(
		attribute.String("hvctl.operation", op.Name()),
		attribute.Int("hvctl.targets", len(targets)),
		attribute.Int("hvctl.jobs", jobs),
	))
	defer span.End()

	c.metrics.ObserveBatch(op.Name(), len(targets))

	agg := &aggregator{
		c:       c,
		op:      op,
		summary: Summary{Total: len(targets)},
	}

	if len(targets) == 0 {
		zerolog.Ctx(ctx).Info().
			Str("op", op.Name()).
			Bool("fail_if_no_match", c.policy.FailIfNoMatch).
			Msg("no targets")
		return agg.summary, nil
	}

	if jobs == 1 {
		for _, t := range targets {
			if agg.stop.Load() || ctx.Err() != nil {
				break
			}
			agg.handle(ctx, c.unit(ctx, t, op))
		}
	} else {
		results := make(chan unit, len(targets))

		go func() {
			var g errgroup.Group
			g.SetLimit(jobs)
			for _, t := range targets {
				if agg.stop.Load() || ctx.Err() != nil {
					break
				}
				g.Go(func() error {
					results <- c.unit(ctx, t, op)
					return nil
				})
			}
			_ = g.Wait()
			close(results)
		}()

		for u := range results {
			agg.handle(ctx, u)
		}
	}

	agg.summary.finish()
	s := agg.summary

	span.SetAttributes(
		attribute.Int("hvctl.success", s.Success),
		attribute.Int("hvctl.failed", s.Failed),
		attribute.Int("hvctl.ignored", s.Ignored),
	)
	telemetry.RecordError(span, agg.defect)

	zerolog.Ctx(ctx).Info().
		Str("op", op.Name()).
		Int("jobs", jobs).
		Int("total", s.Total).
		Int("success", s.Success).
		Int("failed", s.Failed).
		Int("skipped", s.Skipped).
		Int("timed_out", s.TimedOut).
		Int("forced", s.Forced).
		Int("not_found", s.NotFound).
		Int("ignored", s.Ignored).
		Msg("batch finished")

	return s, agg.defect
}

func (c *Coordinator) unit(ctx context.Context, t runner.Target, op runner.Operation) unit {
	start := time.Now()
	res := runner.Run(ctx, c.conn, t, op)
	return unit{res: res, elapsed: time.Since(start)}
}

// aggregator is owned by the goroutine in Run. Only stop is read by the
// submitter.
type aggregator struct {
	c       *Coordinator
	op      runner.Operation
	summary Summary
	stop    atomic.Bool
	defect  error
}

func (a *aggregator) handle(ctx context.Context, u unit) {
	v := Classify(u.res, a.op, a.c.policy)
	if v.Outcome == OutcomeDefect && a.defect == nil {
		a.defect = fmt.Errorf("%w: internal error processing %s %q: %w",
			entity.ErrUnsupported, u.res.Target.Kind, u.res.Target.String(), u.res.Err)
	}

	if a.stop.Load() {
		a.summary.Ignored++
		a.c.metrics.ObserveOperation(u.res.Target.Kind.String(), a.op.Name(), OutcomeIgnored.String(), u.elapsed)
		zerolog.Ctx(ctx).Debug().
			Str("target", u.res.Target.String()).
			Str("outcome", v.Outcome.String()).
			Msg("ignoring result after fail-fast")
		return
	}

	a.summary.add(v)
	a.c.metrics.ObserveOperation(u.res.Target.Kind.String(), a.op.Name(), v.Outcome.String(), u.elapsed)
	if a.c.reporter != nil {
		a.c.reporter.Report(Event{Target: u.res.Target, Operation: a.op.Name(), Verdict: v})
	}

	if a.c.policy.FailFast && v.Trip {
		a.stop.Store(true)
	}
}

func dedupe(targets []runner.Target) []runner.Target {
	seen := make(map[runner.Target]struct{}, len(targets))
	out := make([]runner.Target, 0, len(targets))
	for _, t := range targets {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Single builds the summary for one result classified outside a batch.
func Single(v Verdict) Summary {
	s := Summary{Total: 1}
	s.add(v)
	s.finish()
	return s
}
