package entity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
)

// state is either valid[H] or invalid. Handles are only reachable through
// valid, so an invalid entity has nothing to call.
type state interface{ isState() }

type valid[H any] struct{ handle H }

type invalid struct{}

func (valid[H]) isState() {}
func (invalid) isState()  {}

// handleBase holds identity and state shared by every kind.
type handleBase[H any] struct {
	kind     Kind
	name     string
	id       uuid.UUID
	hasID    bool
	st       state
	readOnly bool
}

func newHandleBase[H any](kind Kind, name string, id *uuid.UUID, h H, readOnly bool) handleBase[H] {
	b := handleBase[H]{kind: kind, name: name, st: valid[H]{handle: h}, readOnly: readOnly}
	if id != nil {
		b.id, b.hasID = *id, true
	}
	return b
}

func (b *handleBase[H]) Kind() Kind { return b.kind }

func (b *handleBase[H]) Name() string { return b.name }

// UUID returns the object's UUID, if the kind has one.
func (b *handleBase[H]) UUID() (uuid.UUID, bool) { return b.id, b.hasID }

// Valid reports whether the entity still holds a handle.
func (b *handleBase[H]) Valid() bool {
	_, ok := b.st.(valid[H])
	return ok
}

func (b *handleBase[H]) handle() (H, error) {
	switch s := b.st.(type) {
	case valid[H]:
		return s.handle, nil
	default:
		var zero H
		return zero, fmt.Errorf("%s %q: %w", b.kind, b.name, ErrInvalidEntity)
	}
}

func (b *handleBase[H]) invalidate() {
	b.st = invalid{}
}

func (b *handleBase[H]) rebind(name string, id *uuid.UUID, h H) {
	b.name = name
	if id != nil {
		b.id, b.hasID = *id, true
	}
	b.st = valid[H]{handle: h}
}

// mutable refuses changes on read-only connections.
func (b *handleBase[H]) mutable() error {
	if b.readOnly {
		return fmt.Errorf("%s %q: %w", b.kind, b.name, ErrInsufficientPrivileges)
	}
	return nil
}

// rejected logs a backend refusal and turns it into Failure. A refusal
// caused by missing privileges is surfaced as an error as well.
func (b *handleBase[H]) rejected(ctx context.Context, op string, err error) (LifecycleResult, error) {
	zerolog.Ctx(ctx).Warn().
		Err(err).
		Str("kind", b.kind.String()).
		Str("name", b.name).
		Str("op", op).
		Msg("backend rejected operation")

	if hvlibvirt.IsReadOnly(err) {
		return Failure, fmt.Errorf("%s %q: %w: %w", b.kind, b.name, ErrInsufficientPrivileges, err)
	}
	return Failure, nil
}

func (b *handleBase[H]) wrap(op string, err error) error {
	return fmt.Errorf("%s %s %q: %w", op, b.kind, b.name, classify(err))
}

// defineError reports a failed redefine. Anything other than a privilege
// problem means the document was not acceptable.
func (b *handleBase[H]) defineError(err error) error {
	if hvlibvirt.IsReadOnly(err) {
		return fmt.Errorf("define %s %q: %w: %w", b.kind, b.name, ErrInsufficientPrivileges, err)
	}
	return fmt.Errorf("define %s %q: %w: %w", b.kind, b.name, ErrInvalidConfig, err)
}
