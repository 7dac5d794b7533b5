package fake

import (
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"libvirt.org/go/libvirtxml"
)

func (h *Hypervisor) DomainLookupByName(name string) (libvirt.Domain, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainLookupByName", name); err != nil {
		return libvirt.Domain{}, err
	}
	d, ok := h.domains[name]
	if !ok {
		return libvirt.Domain{}, Error(libvirt.ErrNoDomain, "Domain not found: no domain with matching name '%s'", name)
	}
	return domainHandle(d), nil
}

func (h *Hypervisor) DomainLookupByUUID(id libvirt.UUID) (libvirt.Domain, error) {
	u := uuid.UUID(id)
	defer h.mu.Unlock()
	if err := h.enter("DomainLookupByUUID", u.String()); err != nil {
		return libvirt.Domain{}, err
	}
	for _, d := range h.domains {
		if d.UUID == u {
			return domainHandle(d), nil
		}
	}
	return libvirt.Domain{}, Error(libvirt.ErrNoDomain, "Domain not found: no domain with matching uuid '%s'", u)
}

func (h *Hypervisor) DomainIsActive(dom libvirt.Domain) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainIsActive", dom.Name); err != nil {
		return 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, err
	}

	if d.Active && d.shutdownPending && d.ShutdownAfter >= 0 {
		if d.ShutdownAfter == 0 {
			h.stopDomain(d)
			return 0, nil
		}
		d.ShutdownAfter--
	}
	return boolInt(d.Active), nil
}

func (h *Hypervisor) DomainIsPersistent(dom libvirt.Domain) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainIsPersistent", dom.Name); err != nil {
		return 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, err
	}
	return boolInt(d.Persistent), nil
}

func (h *Hypervisor) DomainGetState(dom libvirt.Domain, _ uint32) (int32, int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainGetState", dom.Name); err != nil {
		return 0, 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, 0, err
	}
	if d.Active {
		return int32(libvirt.DomainRunning), 0, nil
	}
	return int32(libvirt.DomainShutoff), 0, nil
}

// DomainGetInfo reports KiB of memory like libvirt does.
func (h *Hypervisor) DomainGetInfo(dom libvirt.Domain) (uint8, uint64, uint64, uint16, uint64, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainGetInfo", dom.Name); err != nil {
		return 0, 0, 0, 0, 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, 0, 0, 0, 0, err
	}
	vcpus := max(d.VCPUs, 1)
	mem := uint64(d.MemoryKiB)
	if mem == 0 {
		mem = 1048576
	}
	state := uint8(libvirt.DomainShutoff)
	if d.Active {
		state = uint8(libvirt.DomainRunning)
	}
	return state, mem, mem, uint16(vcpus), 0, nil
}

func (h *Hypervisor) DomainCreate(dom libvirt.Domain) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainCreate", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	if d.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: domain is already running")
	}
	d.Active = true
	d.ManagedSave = false
	return nil
}

func (h *Hypervisor) DomainDestroy(dom libvirt.Domain) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainDestroy", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	if !d.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: domain is not running")
	}
	h.stopDomain(d)
	return nil
}

func (h *Hypervisor) DomainShutdown(dom libvirt.Domain) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainShutdown", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	if !d.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: domain is not running")
	}
	d.shutdownPending = true
	return nil
}

func (h *Hypervisor) DomainReset(dom libvirt.Domain, _ uint32) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainReset", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	if !d.Active {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: domain is not running")
	}
	return nil
}

func (h *Hypervisor) DomainUndefineFlags(dom libvirt.Domain, _ libvirt.DomainUndefineFlagsValues) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainUndefineFlags", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	if !d.Persistent {
		return Error(libvirt.ErrOperationInvalid, "Requested operation is not valid: cannot undefine transient domain")
	}
	if d.Active {
		d.Persistent = false
		return nil
	}
	delete(h.domains, d.Name)
	return nil
}

func (h *Hypervisor) DomainManagedSave(dom libvirt.Domain, _ uint32) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainManagedSave", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	d.Active = false
	d.ManagedSave = true
	return nil
}

func (h *Hypervisor) DomainHasManagedSaveImage(dom libvirt.Domain, _ uint32) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainHasManagedSaveImage", dom.Name); err != nil {
		return 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, err
	}
	return boolInt(d.ManagedSave), nil
}

func (h *Hypervisor) DomainGetAutostart(dom libvirt.Domain) (int32, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainGetAutostart", dom.Name); err != nil {
		return 0, err
	}
	d, err := h.domain(dom)
	if err != nil {
		return 0, err
	}
	return boolInt(d.Autostart), nil
}

func (h *Hypervisor) DomainSetAutostart(dom libvirt.Domain, autostart int32) error {
	defer h.mu.Unlock()
	if err := h.enter("DomainSetAutostart", dom.Name); err != nil {
		return err
	}
	d, err := h.domain(dom)
	if err != nil {
		return err
	}
	d.Autostart = autostart == 1
	return nil
}

func (h *Hypervisor) DomainGetXMLDesc(dom libvirt.Domain, _ libvirt.DomainXMLFlags) (string, error) {
	defer h.mu.Unlock()
	if err := h.enter("DomainGetXMLDesc", dom.Name); err != nil {
		return "", err
	}
	d, err := h.domain(dom)
	if err != nil {
		return "", err
	}
	return domainXML(d)
}

func (h *Hypervisor) DomainDefineXML(doc string) (libvirt.Domain, error) {
	var cfg libvirtxml.Domain
	if err := cfg.Unmarshal(doc); err != nil || cfg.Name == "" {
		h.mu.Lock()
		h.calls = append(h.calls, "DomainDefineXML/")
		h.mu.Unlock()
		return libvirt.Domain{}, Error(libvirt.ErrXMLError, "XML error: could not parse domain definition")
	}

	defer h.mu.Unlock()
	if err := h.enter("DomainDefineXML", cfg.Name); err != nil {
		return libvirt.Domain{}, err
	}

	d, ok := h.domains[cfg.Name]
	if !ok {
		id := uuid.New()
		if cfg.UUID != "" {
			if parsed, err := uuid.Parse(cfg.UUID); err == nil {
				id = parsed
			}
		}
		d = &Domain{Name: cfg.Name, UUID: id}
		h.domains[cfg.Name] = d
	}
	d.Persistent = true
	if cfg.VCPU != nil {
		d.VCPUs = cfg.VCPU.Value
	}
	if cfg.Memory != nil {
		d.MemoryKiB = cfg.Memory.Value
	}
	d.XML = doc
	return domainHandle(d), nil
}

// DomainCreateXML starts a transient domain. A name already in use is
// refused.
func (h *Hypervisor) DomainCreateXML(doc string, flags libvirt.DomainCreateFlags) (libvirt.Domain, error) {
	var cfg libvirtxml.Domain
	if err := cfg.Unmarshal(doc); err != nil || cfg.Name == "" {
		h.mu.Lock()
		h.calls = append(h.calls, "DomainCreateXML/")
		h.mu.Unlock()
		return libvirt.Domain{}, Error(libvirt.ErrXMLError, "XML error: could not parse domain definition")
	}

	defer h.mu.Unlock()
	if err := h.enter("DomainCreateXML", cfg.Name); err != nil {
		return libvirt.Domain{}, err
	}
	if _, ok := h.domains[cfg.Name]; ok {
		return libvirt.Domain{}, Error(libvirt.ErrOperationFailed, "operation failed: domain '%s' already exists", cfg.Name)
	}

	id := uuid.New()
	if parsed, err := uuid.Parse(cfg.UUID); err == nil {
		id = parsed
	}
	d := &Domain{Name: cfg.Name, UUID: id, Active: true, XML: doc, CreateFlags: flags}
	if cfg.VCPU != nil {
		d.VCPUs = cfg.VCPU.Value
	}
	if cfg.Memory != nil {
		d.MemoryKiB = cfg.Memory.Value
	}
	h.domains[cfg.Name] = d
	return domainHandle(d), nil
}

func (h *Hypervisor) ConnectListAllDomains(_ int32, _ libvirt.ConnectListAllDomainsFlags) ([]libvirt.Domain, uint32, error) {
	defer h.mu.Unlock()
	if err := h.enter("ConnectListAllDomains", ""); err != nil {
		return nil, 0, err
	}
	out := make([]libvirt.Domain, 0, len(h.domains))
	for _, name := range sortedKeys(h.domains) {
		out = append(out, domainHandle(h.domains[name]))
	}
	return out, uint32(len(out)), nil
}

// stopDomain must be called with the lock held.
func (h *Hypervisor) stopDomain(d *Domain) {
	d.Active = false
	d.shutdownPending = false
	if !d.Persistent {
		delete(h.domains, d.Name)
	}
}

func domainXML(d *Domain) (string, error) {
	if d.XML != "" {
		return d.XML, nil
	}
	vcpus := d.VCPUs
	if vcpus == 0 {
		vcpus = 1
	}
	mem := d.MemoryKiB
	if mem == 0 {
		mem = 1048576
	}
	cfg := libvirtxml.Domain{
		Type:   "kvm",
		Name:   d.Name,
		UUID:   d.UUID.String(),
		Memory: &libvirtxml.DomainMemory{Value: mem, Unit: "KiB"},
		VCPU:   &libvirtxml.DomainVCPU{Value: vcpus},
	}
	doc, err := cfg.Marshal()
	if err != nil {
		return "", fmt.Errorf("fake: marshal domain: %w", err)
	}
	return doc, nil
}
