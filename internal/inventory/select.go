package inventory

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jbweber/hvctl/internal/entity"
	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
	"github.com/jbweber/hvctl/internal/runner"
)

// State filter values.
const (
	StateRunning = "running"
	StateStopped = "stopped"
)

// ErrNoSelection is returned when a Selector names nothing at all.
var ErrNoSelection = errors.New("no targets given: name at least one, or use --all or --match")

// Selector describes which objects a lifecycle verb applies to.
type Selector struct {
	// Names are exact names, or UUIDs for domains and pools.
	Names []string
	// All selects every object of the kind.
	All bool
	// Match selects objects whose name matches.
	Match *regexp.Regexp
	// State is "", StateRunning or StateStopped.
	State string
	// Persistent, when set, keeps only persistent (true) or transient
	// (false) objects.
	Persistent *bool
}

// Validate checks that the selector is coherent.
func (s Selector) Validate() error {
	switch {
	case len(s.Names) == 0 && !s.All && s.Match == nil:
		return ErrNoSelection
	case len(s.Names) > 0 && (s.All || s.Match != nil):
		return errors.New("names cannot be combined with --all or --match")
	case s.All && s.Match != nil:
		return errors.New("--all and --match are mutually exclusive")
	}
	switch s.State {
	case "", StateRunning, StateStopped:
	default:
		return fmt.Errorf("invalid state %q (valid states: running, stopped)", s.State)
	}
	return nil
}

// Exact reports whether the selector names exactly one object and applies
// no filters.
func (s Selector) Exact() bool {
	return len(s.Names) == 1 && !s.All && s.Match == nil && !s.filtered()
}

func (s Selector) filtered() bool {
	return s.State != "" || s.Persistent != nil
}

// Matches reports whether an object passes the match, state and
// persistence filters.
func (s Selector) Matches(name string, running, persistent bool) bool {
	if s.Match != nil && !s.Match.MatchString(name) {
		return false
	}
	switch s.State {
	case StateRunning:
		if !running {
			return false
		}
	case StateStopped:
		if running {
			return false
		}
	}
	if s.Persistent != nil && *s.Persistent != persistent {
		return false
	}
	return true
}

type row struct {
	name, uuid          string
	running, persistent bool
}

// pick applies the selector to rows. Named objects missing from rows are
// kept so they can be reported as not found.
func (s Selector) pick(rows []row) []string {
	if len(s.Names) == 0 {
		var out []string
		for _, r := range rows {
			if s.Matches(r.name, r.running, r.persistent) {
				out = append(out, r.name)
			}
		}
		return out
	}

	byIdent := make(map[string]row, 2*len(rows))
	for _, r := range rows {
		byIdent[r.name] = r
		if r.uuid != "" {
			byIdent[r.uuid] = r
		}
	}
	var out []string
	for _, n := range s.Names {
		r, ok := byIdent[n]
		if !ok {
			out = append(out, n)
			continue
		}
		if s.Matches(r.name, r.running, r.persistent) {
			out = append(out, n)
		}
	}
	return out
}

// SelectDomains expands sel into domain targets.
func SelectDomains(ctx context.Context, l Lister, sel Selector) ([]runner.Target, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if len(sel.Names) > 0 && !sel.filtered() {
		return targets(sel.Names, runner.DomainTarget), nil
	}

	infos, err := ListDomains(ctx, l)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(infos))
	for i, d := range infos {
		rows[i] = row{name: d.Name, uuid: d.UUID, running: d.Running, persistent: d.Persistent}
	}
	return targets(sel.pick(rows), runner.DomainTarget), nil
}

// SelectPools expands sel into storage pool targets.
func SelectPools(ctx context.Context, l Lister, sel Selector) ([]runner.Target, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if len(sel.Names) > 0 && !sel.filtered() {
		return targets(sel.Names, runner.PoolTarget), nil
	}

	infos, err := ListPools(ctx, l)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(infos))
	for i, p := range infos {
		rows[i] = row{name: p.Name, uuid: p.UUID, running: p.Running, persistent: p.Persistent}
	}
	return targets(sel.pick(rows), runner.PoolTarget), nil
}

// SelectVolumes expands sel into volume targets inside pool. Volumes have
// no state or persistence, so those filters are refused.
func SelectVolumes(ctx context.Context, l Lister, pool string, sel Selector) ([]runner.Target, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if sel.filtered() {
		return nil, errors.New("volumes cannot be filtered by state or persistence")
	}
	volume := func(name string) runner.Target { return runner.VolumeTarget(pool, name) }
	if len(sel.Names) > 0 {
		return targets(sel.Names, volume), nil
	}

	infos, err := ListVolumes(ctx, l, pool)
	if err != nil {
		return nil, err
	}
	rows := make([]row, len(infos))
	for i, v := range infos {
		rows[i] = row{name: v.Name, persistent: true}
	}
	return targets(sel.pick(rows), volume), nil
}

func targets(names []string, mk func(string) runner.Target) []runner.Target {
	out := make([]runner.Target, len(names))
	for i, n := range names {
		out[i] = mk(n)
	}
	return out
}

// Domain returns the listing row for one domain.
func Domain(ctx context.Context, l Lister, name string) (DomainInfo, error) {
	dom, err := l.DomainLookupByName(name)
	if err != nil {
		return DomainInfo{}, lookupError("domain", name, err)
	}
	return domainInfo(ctx, l, dom)
}

// Pool returns the listing row for one storage pool.
func Pool(ctx context.Context, l Lister, name string) (PoolInfo, error) {
	pool, err := l.StoragePoolLookupByName(name)
	if err != nil {
		return PoolInfo{}, lookupError("storage pool", name, err)
	}
	return poolInfo(ctx, l, pool)
}

// Volume returns the listing row for one volume of pool.
func Volume(ctx context.Context, l Lister, poolName, name string) (VolumeInfo, error) {
	pool, err := l.StoragePoolLookupByName(poolName)
	if err != nil {
		return VolumeInfo{}, lookupError("storage pool", poolName, err)
	}
	vol, err := l.StorageVolLookupByName(pool, name)
	if err != nil {
		return VolumeInfo{}, lookupError("volume", name, err)
	}
	return volumeInfo(ctx, l, vol)
}

func lookupError(kind, name string, err error) error {
	if hvlibvirt.IsNotFound(err) {
		return fmt.Errorf("%s %q: %w", kind, name, entity.ErrNotFound)
	}
	return fmt.Errorf("failed to look up %s %q: %w", kind, name, err)
}
