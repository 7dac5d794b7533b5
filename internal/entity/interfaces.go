package entity

import (
	"context"
	"time"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
)

// Entity is the common surface of every handle.
type Entity interface {
	Kind() Kind
	Name() string
	UUID() (uuid.UUID, bool)
	Valid() bool
	Undefine(ctx context.Context, idempotent bool) (LifecycleResult, error)
}

// Configurable entities expose their XML document and can be redefined.
type Configurable interface {
	Entity
	ConfigRaw() (string, error)
	SetConfigRaw(ctx context.Context, doc string) error
	ApplyTransform(ctx context.Context, t Transform) error
}

// Runnable entities can be started and stopped.
type Runnable interface {
	Entity
	Running() (bool, error)
	Persistent() (bool, error)
	Start(ctx context.Context, idempotent bool) (LifecycleResult, error)
	Destroy(ctx context.Context, idempotent bool) (LifecycleResult, error)
}

// ShutdownOptions controls a graceful stop.
type ShutdownOptions struct {
	// Timeout is how long to wait for the entity to stop. It is polled
	// once per second; zero means no polling at all.
	Timeout time.Duration
	// Force destroys the entity when the timeout expires.
	Force bool
	// Idempotent makes an already stopped entity a success.
	Idempotent bool
}

// Stoppable entities support a graceful shutdown.
type Stoppable interface {
	Runnable
	Shutdown(ctx context.Context, opts ShutdownOptions) (LifecycleResult, error)
}

type Resettable interface {
	Reset(ctx context.Context) (LifecycleResult, error)
}

type Saveable interface {
	ManagedSave(ctx context.Context, idempotent bool) (LifecycleResult, error)
}

type Buildable interface {
	Build(ctx context.Context) (LifecycleResult, error)
}

type Refreshable interface {
	Refresh(ctx context.Context) (LifecycleResult, error)
}

type Deletable interface {
	Delete(ctx context.Context, idempotent bool) (LifecycleResult, error)
}

type Wipeable interface {
	Wipe(ctx context.Context) (LifecycleResult, error)
}

// ResizeOptions mirrors the libvirt volume resize flags.
type ResizeOptions struct {
	Capacity   uint64
	Delta      bool
	Shrink     bool
	Allocate   bool
	Idempotent bool
}

type Resizable interface {
	Resize(ctx context.Context, opts ResizeOptions) (LifecycleResult, error)
}

type Autostarter interface {
	Autostart() (bool, error)
	SetAutostart(ctx context.Context, enabled, idempotent bool) (LifecycleResult, error)
}

// DomainBackend is the subset of *libvirt.Libvirt used by Domain.
type DomainBackend interface {
	DomainIsActive(Dom libvirt.Domain) (int32, error)
	DomainIsPersistent(Dom libvirt.Domain) (int32, error)
	DomainGetState(Dom libvirt.Domain, Flags uint32) (int32, int32, error)
	DomainCreate(Dom libvirt.Domain) error
	DomainDestroy(Dom libvirt.Domain) error
	DomainShutdown(Dom libvirt.Domain) error
	DomainReset(Dom libvirt.Domain, Flags uint32) error
	DomainUndefineFlags(Dom libvirt.Domain, Flags libvirt.DomainUndefineFlagsValues) error
	DomainManagedSave(Dom libvirt.Domain, Flags uint32) error
	DomainHasManagedSaveImage(Dom libvirt.Domain, Flags uint32) (int32, error)
	DomainGetAutostart(Dom libvirt.Domain) (int32, error)
	DomainSetAutostart(Dom libvirt.Domain, Autostart int32) error
	DomainGetXMLDesc(Dom libvirt.Domain, Flags libvirt.DomainXMLFlags) (string, error)
	DomainDefineXML(XML string) (libvirt.Domain, error)
	DomainCreateXML(XMLDesc string, Flags libvirt.DomainCreateFlags) (libvirt.Domain, error)
	DomainLookupByName(Name string) (libvirt.Domain, error)
	DomainLookupByUUID(UUID libvirt.UUID) (libvirt.Domain, error)
}

// PoolBackend is the subset of *libvirt.Libvirt used by StoragePool.
type PoolBackend interface {
	StoragePoolIsActive(Pool libvirt.StoragePool) (int32, error)
	StoragePoolIsPersistent(Pool libvirt.StoragePool) (int32, error)
	StoragePoolCreate(Pool libvirt.StoragePool, Flags libvirt.StoragePoolCreateFlags) error
	StoragePoolDestroy(Pool libvirt.StoragePool) error
	StoragePoolUndefine(Pool libvirt.StoragePool) error
	StoragePoolBuild(Pool libvirt.StoragePool, Flags libvirt.StoragePoolBuildFlags) error
	StoragePoolRefresh(Pool libvirt.StoragePool, Flags uint32) error
	StoragePoolDelete(Pool libvirt.StoragePool, Flags libvirt.StoragePoolDeleteFlags) error
	StoragePoolGetAutostart(Pool libvirt.StoragePool) (int32, error)
	StoragePoolSetAutostart(Pool libvirt.StoragePool, Autostart int32) error
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolDefineXML(XML string, Flags uint32) (libvirt.StoragePool, error)
	StoragePoolCreateXML(XML string, Flags libvirt.StoragePoolCreateFlags) (libvirt.StoragePool, error)
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolLookupByUUID(UUID libvirt.UUID) (libvirt.StoragePool, error)
}

// VolumeBackend is the subset of *libvirt.Libvirt used by Volume.
type VolumeBackend interface {
	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolDelete(Vol libvirt.StorageVol, Flags libvirt.StorageVolDeleteFlags) error
	StorageVolWipe(Vol libvirt.StorageVol, Flags uint32) error
	StorageVolResize(Vol libvirt.StorageVol, Capacity uint64, Flags libvirt.StorageVolResizeFlags) error
	StorageVolGetInfo(Vol libvirt.StorageVol) (int8, uint64, uint64, error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
	StorageVolCreateXML(Pool libvirt.StoragePool, XML string, Flags libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error)
}

// Backend is everything the entity kinds need from one connection.
// *libvirt.Libvirt satisfies it.
type Backend interface {
	DomainBackend
	PoolBackend
	VolumeBackend
}

var _ Backend = (*libvirt.Libvirt)(nil)
