package entity

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

// StoragePool is a handle to one libvirt storage pool.
type StoragePool struct {
	handleBase[libvirt.StoragePool]
	backend PoolBackend
}

var (
	_ Configurable = (*StoragePool)(nil)
	_ Runnable     = (*StoragePool)(nil)
	_ Buildable    = (*StoragePool)(nil)
	_ Refreshable  = (*StoragePool)(nil)
	_ Deletable    = (*StoragePool)(nil)
	_ Autostarter  = (*StoragePool)(nil)
)

// NewStoragePool wraps pool, obtained from backend.
func NewStoragePool(backend PoolBackend, pool libvirt.StoragePool, readOnly bool) *StoragePool {
	id := uuid.UUID(pool.UUID)
	return &StoragePool{
		handleBase: newHandleBase(KindPool, pool.Name, &id, pool, readOnly),
		backend:    backend,
	}
}

// Handle returns the underlying pool handle, for looking up volumes.
func (p *StoragePool) Handle() (libvirt.StoragePool, error) {
	return p.handle()
}

func (p *StoragePool) Running() (bool, error) {
	h, err := p.handle()
	if err != nil {
		return false, err
	}
	active, err := p.backend.StoragePoolIsActive(h)
	if err != nil {
		return false, p.wrap("query", err)
	}
	return active == 1, nil
}

func (p *StoragePool) Persistent() (bool, error) {
	h, err := p.handle()
	if err != nil {
		return false, err
	}
	persistent, err := p.backend.StoragePoolIsPersistent(h)
	if err != nil {
		return false, p.wrap("query", err)
	}
	return persistent == 1, nil
}

func (p *StoragePool) doCreate() error {
	h, err := p.handle()
	if err != nil {
		return err
	}
	return p.backend.StoragePoolCreate(h, 0)
}

func (p *StoragePool) doDestroy() error {
	h, err := p.handle()
	if err != nil {
		return err
	}
	return p.backend.StoragePoolDestroy(h)
}

func (p *StoragePool) doUndefine() error {
	h, err := p.handle()
	if err != nil {
		return err
	}
	return p.backend.StoragePoolUndefine(h)
}

func (p *StoragePool) invalidOnUndefine() (bool, error) {
	return invalidIfStopped(p)
}

// Start activates the pool.
func (p *StoragePool) Start(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return start(ctx, p, idempotent)
}

// Destroy deactivates the pool. The underlying storage is left alone.
func (p *StoragePool) Destroy(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return destroy(ctx, p, idempotent)
}

// Undefine removes the pool definition.
func (p *StoragePool) Undefine(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return undefine(ctx, p, idempotent)
}

// Build creates the on-disk structure of the pool.
func (p *StoragePool) Build(ctx context.Context) (LifecycleResult, error) {
	h, err := p.handle()
	if err != nil {
		return Failure, err
	}
	if err := p.mutable(); err != nil {
		return Failure, err
	}
	if err := p.backend.StoragePoolBuild(h, 0); err != nil {
		return p.rejected(ctx, "build", err)
	}
	return Success, nil
}

// Refresh rescans the pool for volumes.
func (p *StoragePool) Refresh(ctx context.Context) (LifecycleResult, error) {
	h, err := p.handle()
	if err != nil {
		return Failure, err
	}
	if err := p.backend.StoragePoolRefresh(h, 0); err != nil {
		return p.rejected(ctx, "refresh", err)
	}
	return Success, nil
}

// Delete removes the underlying storage of a stopped pool. The definition
// stays. Deleting a valid pool is inherently idempotent, so the flag only
// matters once the handle is gone.
func (p *StoragePool) Delete(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	if !p.Valid() {
		if idempotent {
			return Success, nil
		}
		return Failure, nil
	}

	running, err := p.Running()
	if err != nil {
		return Failure, err
	}
	if running {
		return Failure, fmt.Errorf("delete %s %q: %w", p.kind, p.name, ErrEntityRunning)
	}
	if err := p.mutable(); err != nil {
		return Failure, err
	}

	h, err := p.handle()
	if err != nil {
		return Failure, err
	}
	if err := p.backend.StoragePoolDelete(h, libvirt.StoragePoolDeleteNormal); err != nil {
		return p.rejected(ctx, "delete", err)
	}
	return Success, nil
}

func (p *StoragePool) Autostart() (bool, error) {
	h, err := p.handle()
	if err != nil {
		return false, err
	}
	v, err := p.backend.StoragePoolGetAutostart(h)
	if err != nil {
		return false, p.wrap("query", err)
	}
	return v == 1, nil
}

func (p *StoragePool) SetAutostart(ctx context.Context, enabled, idempotent bool) (LifecycleResult, error) {
	return setAutostart[libvirt.StoragePool](ctx, p, enabled, idempotent, func(h libvirt.StoragePool, v int32) error {
		return p.backend.StoragePoolSetAutostart(h, v)
	})
}

// ConfigRaw returns the inactive pool XML.
func (p *StoragePool) ConfigRaw() (string, error) {
	h, err := p.handle()
	if err != nil {
		return "", err
	}
	doc, err := p.backend.StoragePoolGetXMLDesc(h, libvirt.StorageXMLInactive)
	if err != nil {
		return "", p.wrap("read config of", err)
	}
	return doc, nil
}

// Config returns the parsed pool XML.
func (p *StoragePool) Config() (*libvirtxml.StoragePool, error) {
	doc, err := p.ConfigRaw()
	if err != nil {
		return nil, err
	}
	var cfg libvirtxml.StoragePool
	if err := cfg.Unmarshal(doc); err != nil {
		return nil, fmt.Errorf("failed to parse storage pool XML for %q: %w", p.name, err)
	}
	return &cfg, nil
}

// SetConfigRaw redefines the pool from doc.
func (p *StoragePool) SetConfigRaw(_ context.Context, doc string) error {
	if err := p.mutable(); err != nil {
		return err
	}
	pool, err := p.backend.StoragePoolDefineXML(doc, 0)
	if err != nil {
		return p.defineError(err)
	}
	id := uuid.UUID(pool.UUID)
	p.rebind(pool.Name, &id, pool)
	return nil
}

func (p *StoragePool) ApplyTransform(ctx context.Context, t Transform) error {
	return applyTransform(ctx, p, t)
}
