// Package entity models handles to libvirt objects and their lifecycle.
//
// An entity wraps one domain, storage pool or volume handle obtained from a
// caller-owned connection. Its state is either valid (holding the handle) or
// invalid. Once invalid, every operation except Undefine fails with
// ErrInvalidEntity; a redefine through SetConfigRaw is the only way to bind
// a fresh handle.
//
// Running and persistent flags are never cached. Each call asks the backend,
// so a lifecycle decision always reflects the object as it is now.
//
// Lifecycle operations return a LifecycleResult together with an error.
// The error is reserved for conditions (invalid entity, wrong state,
// read-only connection, failed state queries); a backend that simply
// rejects the requested mutation yields Failure with a nil error, and the
// rejection is logged through the zerolog logger carried by the context.
//
// Capability interfaces (Runnable, Stoppable, Deletable, ...) describe
// what each kind supports. Callers type-assert for them instead of
// inspecting the kind.
package entity
