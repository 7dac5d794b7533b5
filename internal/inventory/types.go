package inventory

// DomainInfo is one row of a domain listing.
type DomainInfo struct {
	Name       string `json:"name" yaml:"name"`
	UUID       string `json:"uuid" yaml:"uuid"`
	State      string `json:"state" yaml:"state"`
	Running    bool   `json:"running" yaml:"running"`
	Persistent bool   `json:"persistent" yaml:"persistent"`
	Autostart  bool   `json:"autostart" yaml:"autostart"`
	VCPUs      uint16 `json:"vcpus" yaml:"vcpus"`
	MemoryMiB  uint64 `json:"memory_mib" yaml:"memory_mib"`
}

// PoolInfo is one row of a storage pool listing. Sizes are in bytes.
type PoolInfo struct {
	Name       string `json:"name" yaml:"name"`
	UUID       string `json:"uuid" yaml:"uuid"`
	Type       string `json:"type,omitempty" yaml:"type,omitempty"`
	State      string `json:"state" yaml:"state"`
	Running    bool   `json:"running" yaml:"running"`
	Persistent bool   `json:"persistent" yaml:"persistent"`
	Autostart  bool   `json:"autostart" yaml:"autostart"`
	Path       string `json:"path,omitempty" yaml:"path,omitempty"`
	Capacity   uint64 `json:"capacity" yaml:"capacity"`
	Allocation uint64 `json:"allocation" yaml:"allocation"`
	Available  uint64 `json:"available" yaml:"available"`
}

// VolumeInfo is one row of a volume listing. Sizes are in bytes.
type VolumeInfo struct {
	Name       string `json:"name" yaml:"name"`
	Pool       string `json:"pool" yaml:"pool"`
	Path       string `json:"path" yaml:"path"`
	Format     string `json:"format,omitempty" yaml:"format,omitempty"`
	Capacity   uint64 `json:"capacity" yaml:"capacity"`
	Allocation uint64 `json:"allocation" yaml:"allocation"`
}

// poolState names virStoragePoolState values.
func poolState(s uint8) string {
	switch s {
	case 0:
		return "inactive"
	case 1:
		return "building"
	case 2:
		return "running"
	case 3:
		return "degraded"
	case 4:
		return "inaccessible"
	default:
		return "unknown"
	}
}
