package entity

import "fmt"

// Kind identifies the type of libvirt object an entity wraps.
type Kind int

const (
	KindDomain Kind = iota + 1
	KindPool
	KindVolume
)

func (k Kind) String() string {
	switch k {
	case KindDomain:
		return "domain"
	case KindPool:
		return "storage pool"
	case KindVolume:
		return "volume"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Title is the capitalised name used at the start of messages.
func (k Kind) Title() string {
	switch k {
	case KindDomain:
		return "Domain"
	case KindPool:
		return "Storage pool"
	case KindVolume:
		return "Volume"
	default:
		return k.String()
	}
}

// HasParent reports whether objects of this kind live inside another
// object (volumes inside pools).
func (k Kind) HasParent() bool {
	return k == KindVolume
}

// Parent returns the kind of the containing object.
func (k Kind) Parent() Kind {
	if k == KindVolume {
		return KindPool
	}
	return 0
}
