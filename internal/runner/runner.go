package runner

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/telemetry"
)

// Postproc turns the outcome of an operation into the unit's value. It runs
// while the session is still open.
type Postproc[V any] func(entity.LifecycleResult, entity.Entity) (V, error)

// Run executes op against t on a fresh session from conn.
func Run(ctx context.Context, conn Connector, t Target, op Operation) Result[entity.LifecycleResult] {
	return run[entity.LifecycleResult](ctx, conn, t, op, nil)
}

// RunWith is Run followed by post.
func RunWith[V any](ctx context.Context, conn Connector, t Target, op Operation, post Postproc[V]) Result[V] {
	if post == nil {
		panic("runner: RunWith needs a postproc")
	}
	return run(ctx, conn, t, op, post)
}

// Inline executes op against t on an existing session, which stays open.
// It is the single target path of the CLI.
func Inline(ctx context.Context, s Session, t Target, op Operation) Result[entity.LifecycleResult] {
	ctx, span := startSpan(ctx, "runner.inline", t, op.Name())
	defer span.End()

	res := newResult[entity.LifecycleResult](t)
	res.Connected = Passed
	apply(ctx, s, op, &res, nil)
	finish(ctx, span, op.Name(), res)
	return res
}

func run[V any](ctx context.Context, conn Connector, t Target, op Operation, post Postproc[V]) Result[V] {
	ctx, span := startSpan(ctx, "runner."+op.Name(), t, op.Name())
	defer span.End()

	res := newResult[V](t)
	s, ok := connect(ctx, conn, &res)
	if ok {
		apply(ctx, s, op, &res, post)
		closeSession(ctx, s)
	}
	finish(ctx, span, op.Name(), res)
	return res
}

// RunDefine creates a new object of kind from doc. For volumes, parent
// names the pool. The value is the name of the new object as read back
// from its configuration.
func RunDefine(ctx context.Context, conn Connector, kind entity.Kind, parent, doc string) Result[string] {
	return runCreation(ctx, conn, Target{Kind: kind, Parent: parent}, "define",
		func(s Session, res *Result[string]) (entity.Configurable, error) {
			return define(s, kind, parent, doc, res)
		})
}

// RunCreate starts a transient domain or storage pool from doc. The value
// is the name of the started object. opts only applies to domains.
func RunCreate(ctx context.Context, conn Connector, kind entity.Kind, doc string, opts entity.CreateOptions) Result[string] {
	return runCreation(ctx, conn, Target{Kind: kind}, "create",
		func(s Session, res *Result[string]) (entity.Configurable, error) {
			return create(s, kind, doc, opts, res)
		})
}

// RunConfig reads the stored XML configuration of t.
func RunConfig(ctx context.Context, conn Connector, t Target) Result[string] {
	ctx, span := startSpan(ctx, "runner.config", t, "config")
	defer span.End()

	res := newResult[string](t)
	s, ok := connect(ctx, conn, &res)
	if !ok {
		finish(ctx, span, "config", res)
		return res
	}
	defer closeSession(ctx, s)

	e, ok := resolve(s, &res)
	if !ok {
		finish(ctx, span, "config", res)
		return res
	}
	c, ok := e.(entity.Configurable)
	if !ok {
		res.AttrsFound = false
		res.Err = fmt.Errorf("%s %q has no XML configuration: %w", e.Kind(), e.Name(), entity.ErrUnsupported)
		finish(ctx, span, "config", res)
		return res
	}

	doc, err := invoke(ctx, func(context.Context) (string, error) { return c.ConfigRaw() })
	if err != nil {
		res.MethodSuccess = Failed
		res.Err = err
	} else {
		res.MethodSuccess = Passed
		res.Value = doc
	}
	finish(ctx, span, "config", res)
	return res
}

func runCreation(ctx context.Context, conn Connector, t Target, op string, fn func(Session, *Result[string]) (entity.Configurable, error)) Result[string] {
	ctx, span := startSpan(ctx, "runner."+op, t, op)
	defer span.End()

	res := newResult[string](t)
	s, ok := connect(ctx, conn, &res)
	if !ok {
		finish(ctx, span, op, res)
		return res
	}
	defer closeSession(ctx, s)

	created, err := fn(s, &res)
	if err != nil {
		if res.FailedStage() == StageNone {
			res.MethodSuccess = Failed
		}
		res.Err = err
		finish(ctx, span, op, res)
		return res
	}
	res.MethodSuccess = Passed

	name, err := definedName(created)
	if err != nil {
		res.PostprocSuccess = Failed
		res.Err = err
	} else {
		res.PostprocSuccess = Passed
		res.Value = name
	}
	finish(ctx, span, op, res)
	return res
}

func create[V any](s Session, kind entity.Kind, doc string, opts entity.CreateOptions, res *Result[V]) (entity.Configurable, error) {
	b := s.Backend()
	switch kind {
	case entity.KindDomain:
		return entity.CreateDomain(b, doc, s.ReadOnly(), opts)
	case entity.KindPool:
		return entity.CreatePool(b, doc, s.ReadOnly())
	default:
		res.AttrsFound = false
		return nil, fmt.Errorf("cannot create transient %s: %w", kind, entity.ErrUnsupported)
	}
}

func define[V any](s Session, kind entity.Kind, parent, doc string, res *Result[V]) (entity.Configurable, error) {
	b := s.Backend()
	switch kind {
	case entity.KindDomain:
		return entity.DefineDomain(b, doc, s.ReadOnly())
	case entity.KindPool:
		return entity.DefinePool(b, doc, s.ReadOnly())
	case entity.KindVolume:
		pool, err := entity.LookupPool(b, parent, s.ReadOnly())
		if err != nil {
			res.EntityFound = Failed
			return nil, err
		}
		res.EntityFound = Passed
		return entity.DefineVolume(b, pool, doc)
	default:
		res.AttrsFound = false
		return nil, fmt.Errorf("cannot define %s: %w", kind, entity.ErrUnsupported)
	}
}

// definedName reads the name from the stored configuration rather than
// trusting the input document.
func definedName(e entity.Configurable) (string, error) {
	switch v := e.(type) {
	case *entity.Domain:
		cfg, err := v.Config()
		if err != nil {
			return "", err
		}
		return cfg.Name, nil
	case *entity.StoragePool:
		cfg, err := v.Config()
		if err != nil {
			return "", err
		}
		return cfg.Name, nil
	case *entity.Volume:
		cfg, err := v.Config()
		if err != nil {
			return "", err
		}
		return cfg.Name, nil
	default:
		return e.Name(), nil
	}
}

func connect[V any](ctx context.Context, conn Connector, res *Result[V]) (Session, bool) {
	s, err := conn.Open(ctx)
	if err != nil {
		res.Connected = Failed
		res.Err = fmt.Errorf("connect: %w", err)
		return nil, false
	}
	res.Connected = Passed
	return s, true
}

func closeSession(ctx context.Context, s Session) {
	if err := s.Close(); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("failed to close session")
	}
}

// apply resolves the target and runs op. post may be nil, in which case
// the value is the lifecycle result itself and PostprocSuccess stays Unset.
func apply[V any](ctx context.Context, s Session, op Operation, res *Result[V], post Postproc[V]) {
	e, ok := resolve(s, res)
	if !ok {
		return
	}

	fn, ok := op.bind(e)
	if !ok {
		res.AttrsFound = false
		res.Err = fmt.Errorf("%s %q does not support %s: %w", e.Kind(), e.Name(), op.Name(), entity.ErrUnsupported)
		return
	}

	outcome, err := invoke(ctx, fn)
	if err != nil {
		res.MethodSuccess = Failed
		res.Err = err
		return
	}
	res.MethodSuccess = Passed

	if post == nil {
		if v, ok := any(outcome).(V); ok {
			res.Value = v
		}
		return
	}

	v, err := invoke(ctx, func(context.Context) (V, error) { return post(outcome, e) })
	if err != nil {
		res.PostprocSuccess = Failed
		res.Err = err
		return
	}
	res.PostprocSuccess = Passed
	res.Value = v
}

func resolve[V any](s Session, res *Result[V]) (entity.Entity, bool) {
	t := res.Target
	b := s.Backend()

	if !t.Kind.HasParent() {
		e, err := entity.Lookup(b, t.Kind, t.Name, s.ReadOnly())
		if err != nil {
			res.EntityFound = Failed
			res.Err = err
			return nil, false
		}
		res.EntityFound = Passed
		return e, true
	}

	pool, err := entity.LookupPool(b, t.Parent, s.ReadOnly())
	if err != nil {
		res.EntityFound = Failed
		res.Err = err
		return nil, false
	}
	res.EntityFound = Passed

	vol, err := entity.LookupVolume(b, pool, t.Name)
	if err != nil {
		res.SubEntityFound = Failed
		res.Err = err
		return nil, false
	}
	res.SubEntityFound = Passed
	return vol, true
}

// invoke runs fn and turns a panic into an error.
func invoke[V any](ctx context.Context, fn func(context.Context) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func startSpan(ctx context.Context, name string, t Target, op string) (context.Context, trace.Span) {
	return telemetry.Tracer().Start(ctx, name, trace.WithAttributes(
		attribute.String("hvctl.kind", t.Kind.String()),
		attribute.String("hvctl.target", t.String()),
		attribute.String("hvctl.operation", op),
	))
}

func finish[V any](ctx context.Context, span trace.Span, op string, res Result[V]) {
	stage := res.FailedStage()
	span.SetAttributes(attribute.String("hvctl.failed_stage", stage.String()))
	telemetry.RecordError(span, res.Err)

	ev := zerolog.Ctx(ctx).Debug().
		Str("kind", res.Target.Kind.String()).
		Str("target", res.Target.String()).
		Str("op", op).
		Str("failed_stage", stage.String())
	if res.Err != nil {
		ev = ev.Err(res.Err)
	}
	ev.Msg("unit finished")
}

// NotFound reports whether the unit stopped because the target (or its
// parent) does not exist, as opposed to a lookup that errored.
func (r Result[V]) NotFound() bool {
	stage := r.FailedStage()
	return (stage == StageEntity || stage == StageSubEntity) && errors.Is(r.Err, entity.ErrNotFound)
}
