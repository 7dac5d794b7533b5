package runner

import (
	"context"
	"time"

	"github.com/jbweber/hvctl/internal/entity"
)

// Terms are the words used to describe an operation in messages.
type Terms struct {
	Verb       string
	Continuous string
	Past       string
	// IdempotentState completes "is already ..."; empty for operations
	// that have no idempotent mode.
	IdempotentState string
}

// Operation is one of the variants in this file. The set is closed.
type Operation interface {
	// Name is a stable identifier for logs and metrics.
	Name() string
	Terms() Terms
	// Removal reports whether success means the target is gone.
	Removal() bool

	bind(e entity.Entity) (call, bool)
}

type call = func(ctx context.Context) (entity.LifecycleResult, error)

type Start struct{ Idempotent bool }

func (Start) Name() string  { return "start" }
func (Start) Removal() bool { return false }
func (Start) Terms() Terms {
	return Terms{Verb: "start", Continuous: "starting", Past: "started", IdempotentState: "started"}
}

func (o Start) bind(e entity.Entity) (call, bool) {
	r, ok := e.(entity.Runnable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return r.Start(ctx, o.Idempotent)
	}, true
}

// Destroy is a forced stop. It is not a removal even though a transient
// object disappears, because whether the target is transient is only
// known once the unit has run.
type Destroy struct{ Idempotent bool }

func (Destroy) Name() string  { return "destroy" }
func (Destroy) Removal() bool { return false }
func (Destroy) Terms() Terms {
	return Terms{Verb: "stop", Continuous: "stopping", Past: "stopped", IdempotentState: "stopped"}
}

func (o Destroy) bind(e entity.Entity) (call, bool) {
	r, ok := e.(entity.Runnable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return r.Destroy(ctx, o.Idempotent)
	}, true
}

type Undefine struct{ Idempotent bool }

func (Undefine) Name() string  { return "undefine" }
func (Undefine) Removal() bool { return true }
func (Undefine) Terms() Terms {
	return Terms{Verb: "undefine", Continuous: "undefining", Past: "undefined", IdempotentState: "undefined"}
}

func (o Undefine) bind(e entity.Entity) (call, bool) {
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return e.Undefine(ctx, o.Idempotent)
	}, true
}

type Shutdown struct {
	Timeout    time.Duration
	Force      bool
	Idempotent bool
}

func (Shutdown) Name() string  { return "shutdown" }
func (Shutdown) Removal() bool { return false }
func (Shutdown) Terms() Terms {
	return Terms{Verb: "shut down", Continuous: "shutting down", Past: "shut down", IdempotentState: "shut off"}
}

func (o Shutdown) bind(e entity.Entity) (call, bool) {
	s, ok := e.(entity.Stoppable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return s.Shutdown(ctx, entity.ShutdownOptions{Timeout: o.Timeout, Force: o.Force, Idempotent: o.Idempotent})
	}, true
}

type Reset struct{}

func (Reset) Name() string  { return "reset" }
func (Reset) Removal() bool { return false }
func (Reset) Terms() Terms {
	return Terms{Verb: "reset", Continuous: "resetting", Past: "reset"}
}

func (Reset) bind(e entity.Entity) (call, bool) {
	r, ok := e.(entity.Resettable)
	if !ok {
		return nil, false
	}
	return r.Reset, true
}

type ManagedSave struct{ Idempotent bool }

func (ManagedSave) Name() string  { return "managed-save" }
func (ManagedSave) Removal() bool { return false }
func (ManagedSave) Terms() Terms {
	return Terms{Verb: "save", Continuous: "saving", Past: "saved", IdempotentState: "saved"}
}

func (o ManagedSave) bind(e entity.Entity) (call, bool) {
	s, ok := e.(entity.Saveable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return s.ManagedSave(ctx, o.Idempotent)
	}, true
}

type Build struct{}

func (Build) Name() string  { return "build" }
func (Build) Removal() bool { return false }
func (Build) Terms() Terms {
	return Terms{Verb: "build", Continuous: "building", Past: "built"}
}

func (Build) bind(e entity.Entity) (call, bool) {
	b, ok := e.(entity.Buildable)
	if !ok {
		return nil, false
	}
	return b.Build, true
}

type Refresh struct{}

func (Refresh) Name() string  { return "refresh" }
func (Refresh) Removal() bool { return false }
func (Refresh) Terms() Terms {
	return Terms{Verb: "refresh", Continuous: "refreshing", Past: "refreshed"}
}

func (Refresh) bind(e entity.Entity) (call, bool) {
	r, ok := e.(entity.Refreshable)
	if !ok {
		return nil, false
	}
	return r.Refresh, true
}

type Delete struct{ Idempotent bool }

func (Delete) Name() string  { return "delete" }
func (Delete) Removal() bool { return true }
func (Delete) Terms() Terms {
	return Terms{Verb: "delete", Continuous: "deleting", Past: "deleted", IdempotentState: "deleted"}
}

func (o Delete) bind(e entity.Entity) (call, bool) {
	d, ok := e.(entity.Deletable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return d.Delete(ctx, o.Idempotent)
	}, true
}

type Wipe struct{}

func (Wipe) Name() string  { return "wipe" }
func (Wipe) Removal() bool { return false }
func (Wipe) Terms() Terms {
	return Terms{Verb: "wipe", Continuous: "wiping", Past: "wiped"}
}

func (Wipe) bind(e entity.Entity) (call, bool) {
	w, ok := e.(entity.Wipeable)
	if !ok {
		return nil, false
	}
	return w.Wipe, true
}

type Resize struct {
	Capacity   uint64
	Delta      bool
	Shrink     bool
	Allocate   bool
	Idempotent bool
}

func (Resize) Name() string  { return "resize" }
func (Resize) Removal() bool { return false }
func (Resize) Terms() Terms {
	return Terms{Verb: "resize", Continuous: "resizing", Past: "resized", IdempotentState: "that size"}
}

func (o Resize) bind(e entity.Entity) (call, bool) {
	r, ok := e.(entity.Resizable)
	if !ok {
		return nil, false
	}
	opts := entity.ResizeOptions{
		Capacity:   o.Capacity,
		Delta:      o.Delta,
		Shrink:     o.Shrink,
		Allocate:   o.Allocate,
		Idempotent: o.Idempotent,
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return r.Resize(ctx, opts)
	}, true
}

type SetAutostart struct {
	Enabled    bool
	Idempotent bool
}

func (SetAutostart) Name() string  { return "autostart" }
func (SetAutostart) Removal() bool { return false }
func (o SetAutostart) Terms() Terms {
	if o.Enabled {
		return Terms{Verb: "enable autostart for", Continuous: "enabling autostart for", Past: "set to autostart", IdempotentState: "set to autostart"}
	}
	return Terms{Verb: "disable autostart for", Continuous: "disabling autostart for", Past: "set to not autostart", IdempotentState: "set to not autostart"}
}

func (o SetAutostart) bind(e entity.Entity) (call, bool) {
	a, ok := e.(entity.Autostarter)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		return a.SetAutostart(ctx, o.Enabled, o.Idempotent)
	}, true
}

// ApplyTransform rewrites the target's configuration. It yields Success
// when the redefine went through, or an error.
type ApplyTransform struct{ Transform entity.Transform }

func (ApplyTransform) Name() string  { return "edit" }
func (ApplyTransform) Removal() bool { return false }
func (ApplyTransform) Terms() Terms {
	return Terms{Verb: "edit", Continuous: "editing", Past: "edited"}
}

func (o ApplyTransform) bind(e entity.Entity) (call, bool) {
	c, ok := e.(entity.Configurable)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context) (entity.LifecycleResult, error) {
		if err := c.ApplyTransform(ctx, o.Transform); err != nil {
			return entity.Failure, err
		}
		return entity.Success, nil
	}, true
}
