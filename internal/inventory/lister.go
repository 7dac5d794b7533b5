package inventory

import (
	"github.com/digitalocean/go-libvirt"
)

// Lister is the read-only libvirt surface used for enumeration. It is
// satisfied by *libvirt.Libvirt.
type Lister interface {
	DomainLookupByName(Name string) (libvirt.Domain, error)
	ConnectListAllDomains(NeedResults int32, Flags libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error)
	DomainGetInfo(Dom libvirt.Domain) (rState uint8, rMaxMem uint64, rMemory uint64, rNrVirtCPU uint16, rCPUTime uint64, err error)
	DomainGetAutostart(Dom libvirt.Domain) (int32, error)
	DomainIsPersistent(Dom libvirt.Domain) (int32, error)
	DomainGetState(Dom libvirt.Domain, Flags uint32) (rState int32, rReason int32, err error)

	ConnectListAllStoragePools(NeedResults int32, Flags libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error)
	StoragePoolLookupByName(Name string) (libvirt.StoragePool, error)
	StoragePoolGetInfo(Pool libvirt.StoragePool) (rState uint8, rCapacity uint64, rAllocation uint64, rAvailable uint64, err error)
	StoragePoolGetAutostart(Pool libvirt.StoragePool) (int32, error)
	StoragePoolIsPersistent(Pool libvirt.StoragePool) (int32, error)
	StoragePoolGetXMLDesc(Pool libvirt.StoragePool, Flags libvirt.StorageXMLFlags) (string, error)
	StoragePoolListAllVolumes(Pool libvirt.StoragePool, NeedResults int32, Flags uint32) ([]libvirt.StorageVol, uint32, error)

	StorageVolLookupByName(Pool libvirt.StoragePool, Name string) (libvirt.StorageVol, error)
	StorageVolGetInfo(Vol libvirt.StorageVol) (rType int8, rCapacity uint64, rAllocation uint64, err error)
	StorageVolGetPath(Vol libvirt.StorageVol) (string, error)
	StorageVolGetXMLDesc(Vol libvirt.StorageVol, Flags uint32) (string, error)
}

var _ Lister = (*libvirt.Libvirt)(nil)
