package inventory

import (
	"context"
	"fmt"

	"github.com/digitalocean/go-libvirt"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hvctl/internal/entity"
)

// ListDomains lists every domain, running and stopped. Domains that vanish
// or fail to report while being listed are skipped with a warning.
func ListDomains(ctx context.Context, l Lister) ([]DomainInfo, error) {
	// NeedResults: 1 populates the slice, flags 0 means active and inactive.
	domains, _, err := l.ConnectListAllDomains(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list domains: %w", err)
	}

	out := make([]DomainInfo, 0, len(domains))
	for _, dom := range domains {
		info, err := domainInfo(ctx, l, dom)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("domain", dom.Name).Msg("failed to get domain info")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func domainInfo(ctx context.Context, l Lister, dom libvirt.Domain) (DomainInfo, error) {
	state, _, err := l.DomainGetState(dom, 0)
	if err != nil {
		return DomainInfo{}, fmt.Errorf("failed to get domain state: %w", err)
	}

	_, _, memory, vcpus, _, err := l.DomainGetInfo(dom)
	if err != nil {
		return DomainInfo{}, fmt.Errorf("failed to get domain info: %w", err)
	}

	persistent, err := l.DomainIsPersistent(dom)
	if err != nil {
		return DomainInfo{}, fmt.Errorf("failed to get domain persistence: %w", err)
	}

	autostart, err := l.DomainGetAutostart(dom)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("domain", dom.Name).Msg("failed to get autostart")
		autostart = 0
	}

	return DomainInfo{
		Name:       dom.Name,
		UUID:       uuid.UUID(dom.UUID).String(),
		State:      entity.DomainState(state).String(),
		Running:    isRunning(entity.DomainState(state)),
		Persistent: persistent == 1,
		Autostart:  autostart == 1,
		VCPUs:      vcpus,
		MemoryMiB:  memory / 1024,
	}, nil
}

// isRunning treats every state with a live guest as running.
func isRunning(s entity.DomainState) bool {
	switch s {
	case entity.DomainStateRunning, entity.DomainStateBlocked, entity.DomainStatePaused,
		entity.DomainStateShutdown, entity.DomainStatePMSuspended:
		return true
	default:
		return false
	}
}

// ListPools lists every storage pool.
func ListPools(ctx context.Context, l Lister) ([]PoolInfo, error) {
	pools, _, err := l.ConnectListAllStoragePools(1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list storage pools: %w", err)
	}

	out := make([]PoolInfo, 0, len(pools))
	for _, pool := range pools {
		info, err := poolInfo(ctx, l, pool)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("pool", pool.Name).Msg("failed to get pool info")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func poolInfo(ctx context.Context, l Lister, pool libvirt.StoragePool) (PoolInfo, error) {
	state, capacity, allocation, available, err := l.StoragePoolGetInfo(pool)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("failed to get pool info: %w", err)
	}

	persistent, err := l.StoragePoolIsPersistent(pool)
	if err != nil {
		return PoolInfo{}, fmt.Errorf("failed to get pool persistence: %w", err)
	}

	autostart, err := l.StoragePoolGetAutostart(pool)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("pool", pool.Name).Msg("failed to get autostart")
		autostart = 0
	}

	info := PoolInfo{
		Name:       pool.Name,
		UUID:       uuid.UUID(pool.UUID).String(),
		State:      poolState(state),
		Running:    libvirt.StoragePoolState(state) == libvirt.StoragePoolRunning,
		Persistent: persistent == 1,
		Autostart:  autostart == 1,
		Capacity:   capacity,
		Allocation: allocation,
		Available:  available,
	}

	// Type and path only live in the XML; a pool without them still lists.
	doc, err := l.StoragePoolGetXMLDesc(pool, 0)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("pool", pool.Name).Msg("failed to get pool XML")
		return info, nil
	}
	var cfg libvirtxml.StoragePool
	if err := cfg.Unmarshal(doc); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("pool", pool.Name).Msg("failed to parse pool XML")
		return info, nil
	}
	info.Type = cfg.Type
	if cfg.Target != nil {
		info.Path = cfg.Target.Path
	}
	return info, nil
}

// ListVolumes lists the volumes of one pool. A missing pool is reported
// as entity.ErrNotFound.
func ListVolumes(ctx context.Context, l Lister, poolName string) ([]VolumeInfo, error) {
	pool, err := l.StoragePoolLookupByName(poolName)
	if err != nil {
		return nil, lookupError("storage pool", poolName, err)
	}

	vols, _, err := l.StoragePoolListAllVolumes(pool, 1, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to list volumes in pool %s: %w", poolName, err)
	}

	out := make([]VolumeInfo, 0, len(vols))
	for _, vol := range vols {
		info, err := volumeInfo(ctx, l, vol)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("pool", poolName).Str("volume", vol.Name).Msg("failed to get volume info")
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

func volumeInfo(ctx context.Context, l Lister, vol libvirt.StorageVol) (VolumeInfo, error) {
	_, capacity, allocation, err := l.StorageVolGetInfo(vol)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to get volume info: %w", err)
	}
	path, err := l.StorageVolGetPath(vol)
	if err != nil {
		return VolumeInfo{}, fmt.Errorf("failed to get volume path: %w", err)
	}

	info := VolumeInfo{
		Name:       vol.Name,
		Pool:       vol.Pool,
		Path:       path,
		Capacity:   capacity,
		Allocation: allocation,
	}

	doc, err := l.StorageVolGetXMLDesc(vol, 0)
	if err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Str("volume", vol.Name).Msg("failed to get volume XML")
		return info, nil
	}
	var cfg libvirtxml.StorageVolume
	if err := cfg.Unmarshal(doc); err == nil && cfg.Target != nil && cfg.Target.Format != nil {
		info.Format = cfg.Target.Format.Type
	}
	return info, nil
}
