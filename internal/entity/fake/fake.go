// Package fake provides an in-memory hypervisor that satisfies the libvirt
// call surface used by hvctl. It is meant for tests: objects are plain
// structs, errors carry real libvirt error codes, and failures can be
// injected per call and object.
package fake

import (
	"fmt"
	"sort"
	"sync"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
)

// Domain describes a fake domain.
type Domain struct {
	Name        string
	UUID        uuid.UUID
	Active      bool
	Persistent  bool
	Autostart   bool
	ManagedSave bool
	VCPUs       uint
	MemoryKiB   uint
	XML         string

	// CreateFlags holds the flags a transient domain was started with.
	CreateFlags libvirt.DomainCreateFlags

	// ShutdownAfter is how many running checks a domain survives after a
	// graceful shutdown request. Negative means the guest ignores it.
	ShutdownAfter int

	shutdownPending bool
}

// Pool describes a fake storage pool.
type Pool struct {
	Name       string
	UUID       uuid.UUID
	Active     bool
	Persistent bool
	Autostart  bool
	Built      bool
	Path       string
	Capacity   uint64
	Allocation uint64
	XML        string

	volumes map[string]*Volume
}

// Volume describes a fake storage volume.
type Volume struct {
	Name       string
	Key        string
	Path       string
	Capacity   uint64
	Allocation uint64
	Format     string
	Wiped      bool
	XML        string
}

// Hypervisor is a concurrency-safe in-memory backend.
type Hypervisor struct {
	mu       sync.Mutex
	domains  map[string]*Domain
	pools    map[string]*Pool
	failures map[string]error
	calls    []string
	hooks    map[string]func()
}

// New returns an empty hypervisor.
func New() *Hypervisor {
	return &Hypervisor{
		domains:  make(map[string]*Domain),
		pools:    make(map[string]*Pool),
		failures: make(map[string]error),
		hooks:    make(map[string]func()),
	}
}

// Error builds a libvirt error with the given code.
func Error(code libvirt.ErrorNumber, format string, args ...any) error {
	return libvirt.Error{Code: uint32(code), Message: fmt.Sprintf(format, args...)}
}

// AddDomain registers a domain. A zero UUID is replaced with a random one.
func (h *Hypervisor) AddDomain(d Domain) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if d.UUID == uuid.Nil {
		d.UUID = uuid.New()
	}
	h.domains[d.Name] = &d
}

// AddPool registers a storage pool.
func (h *Hypervisor) AddPool(p Pool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	p.volumes = make(map[string]*Volume)
	h.pools[p.Name] = &p
}

// AddVolume registers a volume in an existing pool.
func (h *Hypervisor) AddVolume(pool string, v Volume) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pools[pool]
	if !ok {
		panic("fake: no pool " + pool)
	}
	if v.Key == "" {
		v.Key = p.Path + "/" + v.Name
	}
	if v.Path == "" {
		v.Path = v.Key
	}
	p.volumes[v.Name] = &v
}

// RemoveDomain deletes a domain out of band.
func (h *Hypervisor) RemoveDomain(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.domains, name)
}

// RemovePool deletes a pool out of band.
func (h *Hypervisor) RemovePool(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.pools, name)
}

// RemoveVolume deletes a volume out of band.
func (h *Hypervisor) RemoveVolume(pool, name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.pools[pool]; ok {
		delete(p.volumes, name)
	}
}

// FailOn makes method fail with err when called for the named object.
// An empty name matches every object.
func (h *Hypervisor) FailOn(method, name string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.failures[method+"/"+name] = err
}

// OnCall runs fn (without the lock held) before method executes for the
// named object. Use it to simulate concurrent changes.
func (h *Hypervisor) OnCall(method, name string, fn func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hooks[method+"/"+name] = fn
}

// Calls returns the recorded "Method/name" calls in order.
func (h *Hypervisor) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.calls))
	copy(out, h.calls)
	return out
}

// CountCalls returns how many times method was called for name.
func (h *Hypervisor) CountCalls(method, name string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, c := range h.calls {
		if c == method+"/"+name {
			n++
		}
	}
	return n
}

// GetDomain returns a snapshot of the named domain.
func (h *Hypervisor) GetDomain(name string) (Domain, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.domains[name]
	if !ok {
		return Domain{}, false
	}
	return *d, true
}

// GetPool returns a snapshot of the named pool.
func (h *Hypervisor) GetPool(name string) (Pool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pools[name]
	if !ok {
		return Pool{}, false
	}
	cp := *p
	cp.volumes = nil
	return cp, true
}

// GetVolume returns a snapshot of the named volume.
func (h *Hypervisor) GetVolume(pool, name string) (Volume, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.pools[pool]
	if !ok {
		return Volume{}, false
	}
	v, ok := p.volumes[name]
	if !ok {
		return Volume{}, false
	}
	return *v, true
}

// enter records the call, runs any hook and returns an injected failure.
// It returns with the lock held.
func (h *Hypervisor) enter(method, name string) error {
	h.mu.Lock()
	h.calls = append(h.calls, method+"/"+name)
	hook := h.hooks[method+"/"+name]
	if hook != nil {
		delete(h.hooks, method+"/"+name)
		h.mu.Unlock()
		hook()
		h.mu.Lock()
	}
	if err, ok := h.failures[method+"/"+name]; ok {
		return err
	}
	if err, ok := h.failures[method+"/"]; ok {
		return err
	}
	return nil
}

func (h *Hypervisor) domain(dom libvirt.Domain) (*Domain, error) {
	d, ok := h.domains[dom.Name]
	if !ok || d.UUID != uuid.UUID(dom.UUID) {
		return nil, Error(libvirt.ErrNoDomain, "Domain not found: no domain with matching name '%s'", dom.Name)
	}
	return d, nil
}

func (h *Hypervisor) pool(pool libvirt.StoragePool) (*Pool, error) {
	p, ok := h.pools[pool.Name]
	if !ok || p.UUID != uuid.UUID(pool.UUID) {
		return nil, Error(libvirt.ErrNoStoragePool, "Storage pool not found: no storage pool with matching name '%s'", pool.Name)
	}
	return p, nil
}

func (h *Hypervisor) volume(vol libvirt.StorageVol) (*Volume, error) {
	p, ok := h.pools[vol.Pool]
	if !ok {
		return nil, Error(libvirt.ErrNoStoragePool, "Storage pool not found: no storage pool with matching name '%s'", vol.Pool)
	}
	v, ok := p.volumes[vol.Name]
	if !ok {
		return nil, Error(libvirt.ErrNoStorageVol, "Storage volume not found: no storage vol with matching name '%s'", vol.Name)
	}
	return v, nil
}

func domainHandle(d *Domain) libvirt.Domain {
	return libvirt.Domain{Name: d.Name, UUID: libvirt.UUID(d.UUID)}
}

func poolHandle(p *Pool) libvirt.StoragePool {
	return libvirt.StoragePool{Name: p.Name, UUID: libvirt.UUID(p.UUID)}
}

func volumeHandle(pool string, v *Volume) libvirt.StorageVol {
	return libvirt.StorageVol{Pool: pool, Name: v.Name, Key: v.Key}
}

func boolInt(b bool) int32 {
	if b {
		return 1
	}
	return 0
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
