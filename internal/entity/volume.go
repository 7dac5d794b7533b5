package entity

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"libvirt.org/go/libvirtxml"
)

// Volume is a handle to one storage volume inside a pool. Volumes have no
// UUID; the key identifies the backing storage.
type Volume struct {
	handleBase[libvirt.StorageVol]
	backend VolumeBackend
	pool    libvirt.StoragePool
}

var (
	_ Configurable = (*Volume)(nil)
	_ Deletable    = (*Volume)(nil)
	_ Wipeable     = (*Volume)(nil)
	_ Resizable    = (*Volume)(nil)
)

// NewVolume wraps vol, which lives in pool.
func NewVolume(backend VolumeBackend, pool libvirt.StoragePool, vol libvirt.StorageVol, readOnly bool) *Volume {
	return &Volume{
		handleBase: newHandleBase(KindVolume, vol.Name, nil, vol, readOnly),
		backend:    backend,
		pool:       pool,
	}
}

// Pool returns the name of the containing pool.
func (v *Volume) Pool() string {
	return v.pool.Name
}

// Key returns the volume key.
func (v *Volume) Key() (string, error) {
	h, err := v.handle()
	if err != nil {
		return "", err
	}
	return h.Key, nil
}

// Capacity returns the logical size of the volume in bytes.
func (v *Volume) Capacity() (uint64, error) {
	h, err := v.handle()
	if err != nil {
		return 0, err
	}
	_, capacity, _, err := v.backend.StorageVolGetInfo(h)
	if err != nil {
		return 0, v.wrap("query", err)
	}
	return capacity, nil
}

func (v *Volume) doUndefine() error {
	h, err := v.handle()
	if err != nil {
		return err
	}
	return v.backend.StorageVolDelete(h, libvirt.StorageVolDeleteNormal)
}

func (v *Volume) invalidOnUndefine() (bool, error) {
	return true, nil
}

// Delete removes the volume. The handle is invalid afterwards.
func (v *Volume) Delete(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return undefine(ctx, v, idempotent)
}

// Undefine is Delete; volumes have no separate definition.
func (v *Volume) Undefine(ctx context.Context, idempotent bool) (LifecycleResult, error) {
	return v.Delete(ctx, idempotent)
}

// Wipe overwrites the volume contents so they cannot be read back through
// libvirt. It is not a secure erase of the physical media.
func (v *Volume) Wipe(ctx context.Context) (LifecycleResult, error) {
	h, err := v.handle()
	if err != nil {
		return Failure, err
	}
	if err := v.mutable(); err != nil {
		return Failure, err
	}
	if err := v.backend.StorageVolWipe(h, 0); err != nil {
		return v.rejected(ctx, "wipe", err)
	}
	return Success, nil
}

// Resize changes the volume capacity. Without Shrink, a request below the
// current capacity is refused before reaching the backend.
func (v *Volume) Resize(ctx context.Context, opts ResizeOptions) (LifecycleResult, error) {
	h, err := v.handle()
	if err != nil {
		return Failure, err
	}

	current, err := v.Capacity()
	if err != nil {
		return Failure, err
	}

	var flags libvirt.StorageVolResizeFlags
	if opts.Allocate {
		flags |= libvirt.StorageVolResizeAllocate
	}
	if opts.Shrink {
		flags |= libvirt.StorageVolResizeShrink
	} else if !opts.Delta && opts.Capacity < current {
		return Failure, fmt.Errorf("resize %s %q: %d is less than current capacity %d: %w", v.kind, v.name, opts.Capacity, current, ErrInvalidOperation)
	}

	if opts.Delta {
		flags |= libvirt.StorageVolResizeDelta
		if opts.Capacity == 0 {
			return noop(opts.Idempotent), nil
		}
	} else if opts.Capacity == current {
		return noop(opts.Idempotent), nil
	}

	if err := v.mutable(); err != nil {
		return Failure, err
	}
	if err := v.backend.StorageVolResize(h, opts.Capacity, flags); err != nil {
		return v.rejected(ctx, "resize", err)
	}
	return Success, nil
}

func (v *Volume) ConfigRaw() (string, error) {
	h, err := v.handle()
	if err != nil {
		return "", err
	}
	doc, err := v.backend.StorageVolGetXMLDesc(h, 0)
	if err != nil {
		return "", v.wrap("read config of", err)
	}
	return doc, nil
}

func (v *Volume) Config() (*libvirtxml.StorageVolume, error) {
	doc, err := v.ConfigRaw()
	if err != nil {
		return nil, err
	}
	var cfg libvirtxml.StorageVolume
	if err := cfg.Unmarshal(doc); err != nil {
		return nil, fmt.Errorf("failed to parse volume XML for %q: %w", v.name, err)
	}
	return &cfg, nil
}

// SetConfigRaw creates a volume from doc in the same pool and rebinds the
// handle to it. Volumes cannot be redefined in place.
func (v *Volume) SetConfigRaw(_ context.Context, doc string) error {
	if err := v.mutable(); err != nil {
		return err
	}
	vol, err := v.backend.StorageVolCreateXML(v.pool, doc, 0)
	if err != nil {
		return v.defineError(err)
	}
	v.rebind(vol.Name, nil, vol)
	return nil
}

func (v *Volume) ApplyTransform(ctx context.Context, t Transform) error {
	return applyTransform(ctx, v, t)
}
