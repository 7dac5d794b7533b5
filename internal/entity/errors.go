package entity

import (
	"errors"
	"fmt"

	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
)

var (
	// ErrInvalidEntity is returned when operating on a handle that has been
	// invalidated by a destroy or undefine.
	ErrInvalidEntity = errors.New("entity is no longer valid")

	// ErrEntityNotRunning is returned by operations that need a running entity.
	ErrEntityNotRunning = errors.New("entity is not running")

	// ErrEntityRunning is returned by operations that need a stopped entity.
	ErrEntityRunning = errors.New("entity is running")

	// ErrInsufficientPrivileges is returned for mutations on a read-only
	// connection.
	ErrInsufficientPrivileges = errors.New("insufficient privileges for operation")

	// ErrInvalidConfig is returned when the backend rejects a configuration
	// document.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrNotFound is returned when a lookup finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidOperation is returned when an operation makes no sense for
	// the entity as it currently is, e.g. a managed save of a transient
	// domain.
	ErrInvalidOperation = errors.New("invalid operation")

	// ErrUnsupported is returned when an entity kind does not implement an
	// operation at all.
	ErrUnsupported = errors.New("operation not supported")
)

// classify maps libvirt error codes onto package errors, keeping the
// original error in the chain.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case hvlibvirt.IsNotFound(err):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case hvlibvirt.IsReadOnly(err):
		return fmt.Errorf("%w: %w", ErrInsufficientPrivileges, err)
	case hvlibvirt.IsInvalidConfig(err):
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	case hvlibvirt.IsOperationInvalid(err):
		return fmt.Errorf("%w: %w", ErrInvalidOperation, err)
	default:
		return err
	}
}
