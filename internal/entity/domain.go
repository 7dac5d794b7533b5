package entity

import (
	"context"
	"fmt"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"libvirt.org/go/libvirtxml"
)

// pollInterval is the spacing between running checks during a shutdown.
var pollInterval = time.Second

// DomainState mirrors virDomainState.
type DomainState int32

const (
	DomainStateNone DomainState = iota
	DomainStateRunning
	DomainStateBlocked
	DomainStatePaused
	DomainStateShutdown
	DomainStateShutoff
	DomainStateCrashed
	DomainStatePMSuspended
	DomainStateUnknown
)

func (s DomainState) String() string {
	switch s {
	case DomainStateNone:
		return "none"
	case DomainStateRunning:
		return "running"
	case DomainStateBlocked:
		return "blocked"
	case DomainStatePaused:
		return "paused"
	case DomainStateShutdown:
		return "shutting down"
	case DomainStateShutoff:
		return "shut off"
	case DomainStateCrashed:
		return "crashed"
	case DomainStatePMSuspended:
		return "suspended by guest"
	default:
		return "unknown"
	}
}

// Domain is a handle to one libvirt domain.
type Domain struct {
	handleBase[libvirt.Domain]
	backend DomainBackend
}

var (
	_ Configurable = (*Domain)(nil)
	_ Stoppable    = (*Domain)(nil)
	_ Resettable   = (*Domain)(nil)
	_ Saveable     = (*Domain)(nil)
	_ Autostarter  = (*Domain)(nil)
)

// NewDomain wraps dom, obtained from backend.
func NewDomain(backend DomainBackend, dom libvirt.Domain, readOnly bool) *Domain {
	id := uuid.UUID(dom.UUID)
	return &Domain{
		handleBase: newHandleBase(KindDomain, dom.Name, &id, dom, readOnly),
		backend:    backend,
	}
}

// Running reports whether the domain is active right now.
func (d *Domain) Running() (bool, error) {
	h, err := d.handle()
	if err != nil {
		return false, err
	}
	active, err := d.backend.DomainIsActive(h)
	if err != nil {
		return false, d.wrap("query", err)
	}
	return active == 1, nil
}

// Persistent reports whether the domain survives being stopped.
func (d *Domain) Persistent() (bool, error) {
	h, err := d.handle()
	if err != nil {
		return false, err
	}
	persistent, err := d.backend.DomainIsPersistent(h)
	if err != nil {
		return false, d.wrap("query", err)
	}
	return persistent == 1, nil
}

// State returns the current domain state.
func (d *Domain) State() (DomainState, error) {
	h, err := d.handle()
	if err != nil {
		return DomainStateUnknown, err
	}
	st, _, err := d.backend.DomainGetState(h, 0)
	if err != nil {
		return DomainStateUnknown, d.wrap("query", err)
	}
	if st < 0 || st > int32(DomainStateUnknown) {
		return DomainStateUnknown, nil
	}
	return DomainState(st), nil
}

func (d *Domain) doCreate() error {
	h, err := d.handle()
	if err != nil {
		return err
	}
	return d.backend.DomainCreate(h)
}

func (d *Domain) doDestroy() error {
	h, err := d.handle()
	if err != nil {
		return err
	}
	return d.backend.DomainDestroy(h)
}

func (d *Domain) doUndefine() error {
	h, err := d.handle()
	if err != nil {
		return err
	}
	return d.backend.DomainUndefineFlags(h, libvirt.DomainUndefineManagedSave|libvirt.DomainUndefineNvram)
}

func (d *Domain) invalidOnUndefine() (bool, error) {
	return invalidIfStopped(d)
}

// Start boots the domain.
func (d *Domain) Start(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return start(ctx, d, idempotent)
}

// Destroy forcibly stops the domain. A transient domain is gone afterwards.
func (d *Domain) Destroy(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return destroy(ctx, d, idempotent)
}

// Undefine removes the persistent definition. A running domain keeps
// running as a transient domain and the handle stays valid.
func (d *Domain) Undefine(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return undefine(ctx, d, idempotent)
}

// Shutdown asks the guest to power off and waits up to opts.Timeout for it.
func (d *Domain) Shutdown(ctx context.Context, opts ShutdownOptions) (LifecycleResult, error) {
	running, err := d.Running()
	if err != nil {
		return Failure, err
	}
	if !running {
		return noop(opts.Idempotent), nil
	}
	if err := d.mutable(); err != nil {
		return Failure, err
	}

	persistent, err := d.Persistent()
	if err != nil {
		return Failure, err
	}

	h, err := d.handle()
	if err != nil {
		return Failure, err
	}
	if err := d.backend.DomainShutdown(h); err != nil {
		return d.rejected(ctx, "shutdown", err)
	}

	log := zerolog.Ctx(ctx).With().Str("kind", d.kind.String()).Str("name", d.name).Logger()

	polls := int(opts.Timeout / time.Second)
	for i := 0; i < polls; i++ {
		running, err := d.Running()
		if err != nil {
			return Failure, err
		}
		if !running {
			return d.stopped(persistent), nil
		}

		select {
		case <-ctx.Done():
			return Failure, fmt.Errorf("shutdown %s %q: %w", d.kind, d.name, ctx.Err())
		case <-time.After(pollInterval):
		}
	}

	running, err = d.Running()
	if err != nil {
		return Failure, err
	}
	if !running {
		return d.stopped(persistent), nil
	}

	if !opts.Force {
		log.Debug().Dur("timeout", opts.Timeout).Msg("shutdown timed out")
		return TimedOut, nil
	}

	log.Debug().Dur("timeout", opts.Timeout).Msg("shutdown timed out, destroying")

	// Not idempotent: a guest that powered off between the last poll and
	// this destroy reports NoOperation and is not counted as forced.
	res, err := d.Destroy(ctx, false)
	if err != nil {
		return Failure, err
	}
	switch res {
	case Success:
		return Forced, nil
	case NoOperation:
		return d.stopped(persistent), nil
	default:
		return Failure, nil
	}
}

func (d *Domain) stopped(persistent bool) LifecycleResult {
	if !persistent {
		d.invalidate()
	}
	return Success
}

// Reset hard-resets a running domain.
func (d *Domain) Reset(ctx context.Context) (LifecycleResult, error) {
	running, err := d.Running()
	if err != nil {
		return Failure, err
	}
	if !running {
		return Failure, fmt.Errorf("reset %s %q: %w", d.kind, d.name, ErrEntityNotRunning)
	}
	if err := d.mutable(); err != nil {
		return Failure, err
	}

	h, err := d.handle()
	if err != nil {
		return Failure, err
	}
	if err := d.backend.DomainReset(h, 0); err != nil {
		return d.rejected(ctx, "reset", err)
	}
	return Success, nil
}

// HasManagedSave reports whether a managed save image exists.
func (d *Domain) HasManagedSave() (bool, error) {
	h, err := d.handle()
	if err != nil {
		return false, err
	}
	has, err := d.backend.DomainHasManagedSaveImage(h, 0)
	if err != nil {
		return false, d.wrap("query", err)
	}
	return has == 1, nil
}

// ManagedSave suspends the domain to disk; the next start restores it.
func (d *Domain) ManagedSave(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	running, err := d.Running()
	if err != nil {
		return Failure, err
	}
	if !running {
		saved, err := d.HasManagedSave()
		if err != nil {
			return Failure, err
		}
		if !saved {
			return Failure, fmt.Errorf("save %s %q: %w", d.kind, d.name, ErrEntityNotRunning)
		}
		if idempotent {
			return NoOperation, nil
		}
		return Failure, nil
	}

	persistent, err := d.Persistent()
	if err != nil {
		return Failure, err
	}
	if !persistent {
		return Failure, fmt.Errorf("save %s %q: managed saves need a persistent domain: %w", d.kind, d.name, ErrInvalidOperation)
	}
	if err := d.mutable(); err != nil {
		return Failure, err
	}

	h, err := d.handle()
	if err != nil {
		return Failure, err
	}
	if err := d.backend.DomainManagedSave(h, 0); err != nil {
		return d.rejected(ctx, "save", err)
	}
	return Success, nil
}

// Autostart reports whether the domain starts with the host.
func (d *Domain) Autostart() (bool, error) {
	h, err := d.handle()
	if err != nil {
		return false, err
	}
	v, err := d.backend.DomainGetAutostart(h)
	if err != nil {
		return false, d.wrap("query", err)
	}
	return v == 1, nil
}

// SetAutostart changes the autostart flag of a persistent domain.
func (d *Domain) SetAutostart(ctx context.Context, enabled, idempotent bool) (LifecycleResult, error) {
	return setAutostart[libvirt.Domain](ctx, d, enabled, idempotent, func(h libvirt.Domain, v int32) error {
		return d.backend.DomainSetAutostart(h, v)
	})
}

// ConfigRaw returns the inactive domain XML.
func (d *Domain) ConfigRaw() (string, error) {
	h, err := d.handle()
	if err != nil {
		return "", err
	}
	doc, err := d.backend.DomainGetXMLDesc(h, libvirt.DomainXMLInactive)
	if err != nil {
		return "", d.wrap("read config of", err)
	}
	return doc, nil
}

// Config returns the parsed domain XML.
func (d *Domain) Config() (*libvirtxml.Domain, error) {
	doc, err := d.ConfigRaw()
	if err != nil {
		return nil, err
	}
	var cfg libvirtxml.Domain
	if err := cfg.Unmarshal(doc); err != nil {
		return nil, fmt.Errorf("failed to parse domain XML for %q: %w", d.name, err)
	}
	return &cfg, nil
}

// SetConfigRaw redefines the domain from doc and rebinds the handle to the
// result, which revalidates an invalidated entity.
func (d *Domain) SetConfigRaw(_ context.Context, doc string) error {
	if err := d.mutable(); err != nil {
		return err
	}
	dom, err := d.backend.DomainDefineXML(doc)
	if err != nil {
		return d.defineError(err)
	}
	id := uuid.UUID(dom.UUID)
	d.rebind(dom.Name, &id, dom)
	return nil
}

// ApplyTransform rewrites the domain configuration through t.
func (d *Domain) ApplyTransform(ctx context.Context, t Transform) error {
	return applyTransform(ctx, d, t)
}
