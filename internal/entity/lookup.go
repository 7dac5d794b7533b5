package entity

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"

	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
)

// LookupDomain resolves a domain by UUID or name. A miss wraps ErrNotFound.
func LookupDomain(b DomainBackend, ident string, readOnly bool) (*Domain, error) {
	if id, err := uuid.Parse(ident); err == nil {
		dom, err := b.DomainLookupByUUID(libvirt.UUID(id))
		if err == nil {
			return NewDomain(b, dom, readOnly), nil
		}
		if !hvlibvirt.IsNotFound(err) {
			return nil, fmt.Errorf("lookup domain %q: %w", ident, classify(err))
		}
	}

	dom, err := b.DomainLookupByName(ident)
	if err != nil {
		return nil, fmt.Errorf("lookup domain %q: %w", ident, classify(err))
	}
	return NewDomain(b, dom, readOnly), nil
}

// LookupPool resolves a storage pool by UUID or name.
func LookupPool(b PoolBackend, ident string, readOnly bool) (*StoragePool, error) {
	if id, err := uuid.Parse(ident); err == nil {
		pool, err := b.StoragePoolLookupByUUID(libvirt.UUID(id))
		if err == nil {
			return NewStoragePool(b, pool, readOnly), nil
		}
		if !hvlibvirt.IsNotFound(err) {
			return nil, fmt.Errorf("lookup storage pool %q: %w", ident, classify(err))
		}
	}

	pool, err := b.StoragePoolLookupByName(ident)
	if err != nil {
		return nil, fmt.Errorf("lookup storage pool %q: %w", ident, classify(err))
	}
	return NewStoragePool(b, pool, readOnly), nil
}

// LookupVolume resolves a volume by name inside pool.
func LookupVolume(b VolumeBackend, pool *StoragePool, name string) (*Volume, error) {
	h, err := pool.Handle()
	if err != nil {
		return nil, err
	}
	vol, err := b.StorageVolLookupByName(h, name)
	if err != nil {
		return nil, fmt.Errorf("lookup volume %q in pool %q: %w", name, pool.Name(), classify(err))
	}
	return NewVolume(b, h, vol, pool.readOnly), nil
}

// Lookup resolves a top-level entity of the given kind.
func Lookup(b Backend, kind Kind, ident string, readOnly bool) (Entity, error) {
	switch kind {
	case KindDomain:
		return LookupDomain(b, ident, readOnly)
	case KindPool:
		return LookupPool(b, ident, readOnly)
	default:
		return nil, fmt.Errorf("%s is not a top-level kind: %w", kind, ErrUnsupported)
	}
}

// DefineDomain defines a new persistent domain from doc.
func DefineDomain(b DomainBackend, doc string, readOnly bool) (*Domain, error) {
	if readOnly {
		return nil, fmt.Errorf("define domain: %w", ErrInsufficientPrivileges)
	}
	dom, err := b.DomainDefineXML(doc)
	if err != nil {
		return nil, definitionError("domain", err)
	}
	return NewDomain(b, dom, readOnly), nil
}

// DefinePool defines a new persistent storage pool from doc.
func DefinePool(b PoolBackend, doc string, readOnly bool) (*StoragePool, error) {
	if readOnly {
		return nil, fmt.Errorf("define storage pool: %w", ErrInsufficientPrivileges)
	}
	pool, err := b.StoragePoolDefineXML(doc, 0)
	if err != nil {
		return nil, definitionError("storage pool", err)
	}
	return NewStoragePool(b, pool, readOnly), nil
}

// CreateOptions tunes how a transient domain is started.
type CreateOptions struct {
	Paused     bool
	ResetNVRAM bool
}

func (o CreateOptions) flags() libvirt.DomainCreateFlags {
	var f libvirt.DomainCreateFlags
	if o.Paused {
		f |= libvirt.DomainStartPaused
	}
	if o.ResetNVRAM {
		f |= libvirt.DomainStartResetNvram
	}
	return f
}

// CreateDomain starts a new transient domain from doc. It disappears once
// it stops.
func CreateDomain(b DomainBackend, doc string, readOnly bool, opts CreateOptions) (*Domain, error) {
	if readOnly {
		return nil, fmt.Errorf("create domain: %w", ErrInsufficientPrivileges)
	}
	dom, err := b.DomainCreateXML(doc, opts.flags())
	if err != nil {
		return nil, creationError("domain", err)
	}
	return NewDomain(b, dom, readOnly), nil
}

// CreatePool starts a new transient storage pool from doc.
func CreatePool(b PoolBackend, doc string, readOnly bool) (*StoragePool, error) {
	if readOnly {
		return nil, fmt.Errorf("create storage pool: %w", ErrInsufficientPrivileges)
	}
	pool, err := b.StoragePoolCreateXML(doc, 0)
	if err != nil {
		return nil, creationError("storage pool", err)
	}
	return NewStoragePool(b, pool, readOnly), nil
}

// DefineVolume creates a new volume in pool from doc.
func DefineVolume(b VolumeBackend, pool *StoragePool, doc string) (*Volume, error) {
	if err := pool.mutable(); err != nil {
		return nil, err
	}
	h, err := pool.Handle()
	if err != nil {
		return nil, err
	}
	vol, err := b.StorageVolCreateXML(h, doc, 0)
	if err != nil {
		return nil, definitionError("volume", err)
	}
	return NewVolume(b, h, vol, pool.readOnly), nil
}

func definitionError(what string, err error) error {
	if hvlibvirt.IsReadOnly(err) {
		return fmt.Errorf("define %s: %w: %w", what, ErrInsufficientPrivileges, err)
	}
	return fmt.Errorf("define %s: %w: %w", what, ErrInvalidConfig, err)
}

// creationError keeps a rejected document apart from a start that failed
// for other reasons.
func creationError(what string, err error) error {
	switch {
	case hvlibvirt.IsReadOnly(err):
		return fmt.Errorf("create %s: %w: %w", what, ErrInsufficientPrivileges, err)
	case hvlibvirt.IsInvalidConfig(err):
		return fmt.Errorf("create %s: %w: %w", what, ErrInvalidConfig, err)
	default:
		return fmt.Errorf("create %s: %w", what, err)
	}
}
