package fake

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

func (h *Hypervisor) StoragePoolLookupByName(name string) (libvirt.StoragePool, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolLookupByName", name); err != nil {
		return libvirt.StoragePool{}, err
	}
	p, ok := h.pools[name]
	if !ok {
		return libvirt.StoragePool{}, Error(libvirt.ErrNoStoragePool, "Storage pool not found: no storage pool with matching name '%s'", name)
	}
	return poolHandle(p), nil
}

func (h *Hypervisor) StoragePoolLookupByUUID(id libvirt.UUID) (libvirt.StoragePool, error) {
	u := uuid.UUID(id)
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolLookupByUUID", u.String()); err != nil {
		return libvirt.StoragePool{}, err
	}
	for _, p := range h.pools {
		if p.UUID == u {
			return poolHandle(p), nil
		}
	}
	return libvirt.StoragePool{}, Error(libvirt.ErrNoStoragePool, "Storage pool not found: no storage pool with matching uuid '%s'", u)
}

func (h *Hypervisor) StoragePoolIsActive(pool libvirt.StoragePool) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolIsActive", pool.Name); err != nil {
		return 0, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return 0, err
	}
	return boolInt(p.Active), nil
}

func (h *Hypervisor) StoragePoolIsPersistent(pool libvirt.StoragePool) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolIsPersistent", pool.Name); err != nil {
		return 0, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return 0, err
	}
	return boolInt(p.Persistent), nil
}

func (h *Hypervisor) StoragePoolCreate(pool libvirt.StoragePool, _ libvirt.StoragePoolCreateFlags) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolCreate", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	if p.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: storage pool '%s' is already active", p.Name)
	}
	p.Active = true
	return nil
}

func (h *Hypervisor) StoragePoolDestroy(pool libvirt.StoragePool) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolDestroy", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	if !p.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: storage pool '%s' is not active", p.Name)
	}
	p.Active = false
	if !p.Persistent {
		delete(h.pools, p.Name)
	}
	return nil
}

func (h *Hypervisor) StoragePoolUndefine(pool libvirt.StoragePool) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolUndefine", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	if p.Active {
		p.Persistent = false
		return nil
	}
	delete(h.pools, p.Name)
	return nil
}

func (h *Hypervisor) StoragePoolBuild(pool libvirt.StoragePool, _ libvirt.StoragePoolBuildFlags) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolBuild", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	p.Built = true
	return nil
}

func (h *Hypervisor) StoragePoolRefresh(pool libvirt.StoragePool, _ uint32) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolRefresh", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	if !p.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: storage pool '%s' is not active", p.Name)
	}
	return nil
}

func (h *Hypervisor) StoragePoolDelete(pool libvirt.StoragePool, _ libvirt.StoragePoolDeleteFlags) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolDelete", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	if p.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: storage pool '%s' is still active", p.Name)
	}
	p.Built = false
	return nil
}

func (h *Hypervisor) StoragePoolGetAutostart(pool libvirt.StoragePool) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolGetAutostart", pool.Name); err != nil {
		return 0, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return 0, err
	}
	return boolInt(p.Autostart), nil
}

func (h *Hypervisor) StoragePoolSetAutostart(pool libvirt.StoragePool, autostart int32) error {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolSetAutostart", pool.Name); err != nil {
		return err
	}
	p, err := h.pool(pool)
	if err != nil {
		return err
	}
	p.Autostart = autostart == 1
	return nil
}

func (h *Hypervisor) StoragePoolGetInfo(pool libvirt.StoragePool) (uint8, uint64, uint64, uint64, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolGetInfo", pool.Name); err != nil {
		return 0, 0, 0, 0, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	state := uint8(libvirt.StoragePoolInactive)
	if p.Active {
		state = uint8(libvirt.StoragePoolRunning)
	}
	return state, p.Capacity, p.Allocation, p.Capacity - p.Allocation, nil
}

func (h *Hypervisor) StoragePoolGetXMLDesc(pool libvirt.StoragePool, _ libvirt.StorageXMLFlags) (string, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolGetXMLDesc", pool.Name); err != nil {
		return "", err
	}
	p, err := h.pool(pool)
	if err != nil {
		return "", err
	}
	if p.XML != "" {
		return p.XML, nil
	}
	cfg := libvirtxml.StoragePool{
		Type:   "dir",
		Name:   p.Name,
		UUID:   p.UUID.String(),
		Target: &libvirtxml.StoragePoolTarget{Path: p.Path},
	}
	doc, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("fake: marshal pool: %w", err)
	}
	return doc, nil
}

func (h *Hypervisor) StoragePoolDefineXML(doc string, _ uint32) (libvirt.StoragePool, error) {
	var cfg libvirtxml.StoragePool
	if err := cfg.Unmarshal(doc); err != nil || cfg.Name == "" {
		h.mu.Lock()
		h.calls = append(h.calls, "StoragePoolDefineXML/")
		h.mu.Unlock()
		return libvirt.StoragePool{}, Error(libvirt.ErrXMLError, "XML error: could not parse storage pool definition")
	}

	defer h.mu.Unlock()
	if err := h.enter("StoragePoolDefineXML", cfg.Name); err != nil {
		return libvirt.StoragePool{}, err
	}

	p, ok := h.pools[cfg.Name]
	if !ok {
		id := uuid.New()
		if parsed, err := uuid.Parse(cfg.UUID); err == nil {
			id = parsed
		}
		p = &Pool{Name: cfg.Name, UUID: id, volumes: make(map[string]*Volume)}
		h.pools[cfg.Name] = p
	}
	p.Persistent = true
	if cfg.Target != nil {
		p.Path = cfg.Target.Path
	}
	p.XML = doc
	return poolHandle(p), nil
}

// StoragePoolCreateXML starts a transient storage pool.
func (h *Hypervisor) StoragePoolCreateXML(doc string, _ libvirt.StoragePoolCreateFlags) (libvirt.StoragePool, error) {
	var cfg libvirtxml.StoragePool
	if err := cfg.Unmarshal(doc); err != nil || cfg.Name == "" {
		h.mu.Lock()
		h.calls = append(h.calls, "StoragePoolCreateXML/")
		h.mu.Unlock()
		return libvirt.StoragePool{}, Error(libvirt.ErrXMLError, "XML error: could not parse storage pool definition")
	}

	defer h.mu.Unlock()
	if err := h.enter("StoragePoolCreateXML", cfg.Name); err != nil {
		return libvirt.StoragePool{}, err
	}
	if _, ok := h.pools[cfg.Name]; ok {
		return libvirt.StoragePool{}, Error(libvirt.ErrOperationFailed, "operation failed: pool '%s' already exists", cfg.Name)
	}

	id := uuid.New()
	if parsed, err := uuid.Parse(cfg.UUID); err == nil {
		id = parsed
	}
	p := &Pool{Name: cfg.Name, UUID: id, Active: true, Built: true, XML: doc, volumes: make(map[string]*Volume)}
	if cfg.Target != nil {
		p.Path = cfg.Target.Path
	}
	h.pools[cfg.Name] = p
	return poolHandle(p), nil
}

func (h *Hypervisor) ConnectListAllStoragePools(_ int32, _ libvirt.ConnectListAllStoragePoolsFlags) ([]libvirt.StoragePool, uint32, error) {
	defer h.mu.Unlock()
	if err := h.enter("ConnectListAllStoragePools", ""); err != nil {
		return nil, 0, err
	}
	out := make([]libvirt.StoragePool, 0, len(h.pools))
	for _, name := range sortedKeys(h.pools) {
		out = append(out, poolHandle(h.pools[name]))
	}
	return out, uint32(len(out)), nil
}

func (h *Hypervisor) StoragePoolListAllVolumes(pool libvirt.StoragePool, _ int32, _ uint32) ([]libvirt.StorageVol, uint32, error) {
	defer h.mu.Unlock()
	if err := h.enter("StoragePoolListAllVolumes", pool.Name); err != nil {
		return nil, 0, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return nil, 0, err
	}
	out := make([]libvirt.StorageVol, 0, len(p.volumes))
	for _, name := range sortedKeys(p.volumes) {
		out = append(out, volumeHandle(p.Name, p.volumes[name]))
	}
	return out, uint32(len(out)), nil
}

func (h *Hypervisor) StorageVolLookupByName(pool libvirt.StoragePool, name string) (libvirt.StorageVol, error) {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolLookupByName", name); err != nil {
		return libvirt.StorageVol{}, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	v, ok := p.volumes[name]
	if !ok {
		return libvirt.StorageVol{}, Error(libvirt.ErrNoStorageVol, "Storage volume not found: no storage vol with matching name '%s'", name)
	}
	return volumeHandle(p.Name, v), nil
}

func (h *Hypervisor) StorageVolDelete(vol libvirt.StorageVol, _ libvirt.StorageVolDeleteFlags) error {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolDelete", vol.Name); err != nil {
		return err
	}
	if _, err := h.volume(vol); err != nil {
		return err
	}
	delete(h.pools[vol.Pool].volumes, vol.Name)
	return nil
}

func (h *Hypervisor) StorageVolWipe(vol libvirt.StorageVol, _ uint32) error {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolWipe", vol.Name); err != nil {
		return err
	}
	v, err := h.volume(vol)
	if err != nil {
		return err
	}
	v.Wiped = true
	return nil
}

func (h *Hypervisor) StorageVolResize(vol libvirt.StorageVol, capacity uint64, flags libvirt.StorageVolResizeFlags) error {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolResize", vol.Name); err != nil {
		return err
	}
	v, err := h.volume(vol)
	if err != nil {
		return err
	}
	switch {
	case flags&libvirt.StorageVolResizeDelta != 0 && flags&libvirt.StorageVolResizeShrink != 0:
		if capacity > v.Capacity {
			return Error(libvirt.ErrInvalidArg, "invalid argument: cannot shrink below zero")
		}
		v.Capacity -= capacity
	case flags&libvirt.StorageVolResizeDelta != 0:
		v.Capacity += capacity
	default:
		v.Capacity = capacity
	}
	return nil
}

func (h *Hypervisor) StorageVolGetInfo(vol libvirt.StorageVol) (int8, uint64, uint64, error) {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolGetInfo", vol.Name); err != nil {
		return 0, 0, 0, err
	}
	v, err := h.volume(vol)
	if err != nil {
		return 0, 0, 0, err
	}
	return 0, v.Capacity, v.Allocation, nil
}

func (h *Hypervisor) StorageVolGetPath(vol libvirt.StorageVol) (string, error) {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolGetPath", vol.Name); err != nil {
		return "", err
	}
	v, err := h.volume(vol)
	if err != nil {
		return "", err
	}
	return v.Path, nil
}

func (h *Hypervisor) StorageVolGetXMLDesc(vol libvirt.StorageVol, _ uint32) (string, error) {
	defer h.mu.Unlock()
	if err := h.enter("StorageVolGetXMLDesc", vol.Name); err != nil {
		return "", err
	}
	v, err := h.volume(vol)
	if err != nil {
		return "", err
	}
	if v.XML != "" {
		return v.XML, nil
	}
	cfg := libvirtxml.StorageVolume{
		Name:     v.Name,
		Key:      v.Key,
		Capacity: &libvirtxml.StorageVolumeSize{Value: v.Capacity, Unit: "bytes"},
		Target:   &libvirtxml.StorageVolumeTarget{Path: v.Path},
	}
	if v.Format != "" {
		cfg.Target.Format = &libvirtxml.StorageVolumeTargetFormat{Type: v.Format}
	}
	doc, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("fake: marshal volume: %w", err)
	}
	return doc, nil
}

func (h *Hypervisor) StorageVolCreateXML(pool libvirt.StoragePool, doc string, _ libvirt.StorageVolCreateFlags) (libvirt.StorageVol, error) {
	var cfg libvirtxml.StorageVolume
	if err := cfg.Unmarshal(doc); err != nil || cfg.Name == "" {
		h.mu.Lock()
		h.calls = append(h.calls, "StorageVolCreateXML/")
		h.mu.Unlock()
		return libvirt.StorageVol{}, Error(libvirt.ErrXMLError, "XML error: could not parse volume definition")
	}

	defer h.mu.Unlock()
	if err := h.enter("StorageVolCreateXML", cfg.Name); err != nil {
		return libvirt.StorageVol{}, err
	}
	p, err := h.pool(pool)
	if err != nil {
		return libvirt.StorageVol{}, err
	}
	if _, exists := p.volumes[cfg.Name]; exists {
		return libvirt.StorageVol{}, Error(libvirt.ErrOperationFailed, "operation failed: storage vol '%s' already exists", cfg.Name)
	}

	v := &Volume{Name: cfg.Name, Key: p.Path + "/" + cfg.Name, Path: p.Path + "/" + cfg.Name}
	if cfg.Capacity != nil {
		v.Capacity = cfg.Capacity.Value
	}
	p.volumes[cfg.Name] = v
	return volumeHandle(p.Name, v), nil
}
