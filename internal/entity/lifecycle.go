package entity

import (
	"context"
	"fmt"
)

// lifecycleTarget is what the shared state machine needs from any kind.
type lifecycleTarget interface {
	Valid() bool
	mutable() error
	invalidate()
	rejected(ctx context.Context, op string, err error) (LifecycleResult, error)
}

type undefinable interface {
	lifecycleTarget
	invalidOnUndefine() (bool, error)
	doUndefine() error
}

type runnableTarget interface {
	lifecycleTarget
	Running() (bool, error)
	Persistent() (bool, error)
	doCreate() error
	doDestroy() error
}

func start(ctx context.Context, e runnableTarget, idempotent bool) (LifecycleResult, error) {
	running, err := e.Running()
	if err != nil {
		return Failure, err
	}
	if running {
		return noop(idempotent), nil
	}
	if err := e.mutable(); err != nil {
		return Failure, err
	}

	if err := e.doCreate(); err != nil {
		return e.rejected(ctx, "start", err)
	}
	return Success, nil
}

func destroy(ctx context.Context, e runnableTarget, idempotent bool) (LifecycleResult, error) {
	running, err := e.Running()
	if err != nil {
		return Failure, err
	}
	if !running {
		return noop(idempotent), nil
	}
	if err := e.mutable(); err != nil {
		return Failure, err
	}

	persistent, err := e.Persistent()
	if err != nil {
		return Failure, err
	}

	if err := e.doDestroy(); err != nil {
		return e.rejected(ctx, "destroy", err)
	}
	if !persistent {
		e.invalidate()
	}
	return Success, nil
}

// undefine is the only operation that accepts an invalid entity: a handle
// that is already gone has nothing left to undefine.
func undefine(ctx context.Context, e undefinable, idempotent bool) (LifecycleResult, error) {
	if !e.Valid() {
		return noop(idempotent), nil
	}
	if err := e.mutable(); err != nil {
		return Failure, err
	}

	// Decided before the call; undefining a running object leaves it
	// running as a transient one.
	markInvalid, err := e.invalidOnUndefine()
	if err != nil {
		return Failure, err
	}

	if err := e.doUndefine(); err != nil {
		return e.rejected(ctx, "undefine", err)
	}
	if markInvalid {
		e.invalidate()
	}
	return Success, nil
}

// invalidIfStopped is the undefine policy for runnable kinds.
func invalidIfStopped(e runnableTarget) (bool, error) {
	running, err := e.Running()
	if err != nil {
		return false, err
	}
	return !running, nil
}

type autostartTarget[H any] interface {
	lifecycleTarget
	Autostart() (bool, error)
	Persistent() (bool, error)
	handle() (H, error)
}

func setAutostart[H any](ctx context.Context, e autostartTarget[H], enabled, idempotent bool, set func(H, int32) error) (LifecycleResult, error) {
	current, err := e.Autostart()
	if err != nil {
		return Failure, err
	}
	if current == enabled {
		return noop(idempotent), nil
	}
	if err := e.mutable(); err != nil {
		return Failure, err
	}

	persistent, err := e.Persistent()
	if err != nil {
		return Failure, err
	}
	if !persistent {
		return Failure, fmt.Errorf("autostart needs a persistent object: %w", ErrInvalidOperation)
	}

	h, err := e.handle()
	if err != nil {
		return Failure, err
	}
	var v int32
	if enabled {
		v = 1
	}
	if err := set(h, v); err != nil {
		return e.rejected(ctx, "autostart", err)
	}
	return Success, nil
}
