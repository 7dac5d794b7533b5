package runner

import (
	"fmt"

	"github.com/jbweber/hvctl/internal/entity"
)

// Target identifies one object. Parent is the pool name for volumes and
// empty otherwise.
type Target struct {
	Kind   entity.Kind
	Parent string
	Name   string
}

// DomainTarget is a convenience for naming a domain.
func DomainTarget(name string) Target {
	return Target{Kind: entity.KindDomain, Name: name}
}

// PoolTarget is a convenience for naming a storage pool.
func PoolTarget(name string) Target {
	return Target{Kind: entity.KindPool, Name: name}
}

// VolumeTarget is a convenience for naming a volume inside a pool.
func VolumeTarget(pool, name string) Target {
	return Target{Kind: entity.KindVolume, Parent: pool, Name: name}
}

func (t Target) String() string {
	if t.Kind.HasParent() {
		return fmt.Sprintf("%s/%s", t.Parent, t.Name)
	}
	return t.Name
}
