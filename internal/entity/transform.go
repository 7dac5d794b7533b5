package entity

import (
	"context"
	"fmt"

	"libvirt.org/go/libvirtxml"
)

// Transform rewrites a configuration document.
type Transform interface {
	Apply(doc string) (string, error)
}

// TransformFunc adapts a plain function to Transform.
type TransformFunc func(doc string) (string, error)

func (f TransformFunc) Apply(doc string) (string, error) { return f(doc) }

// DomainTransform edits a domain document through the libvirtxml types.
func DomainTransform(fn func(*libvirtxml.Domain) error) Transform {
	return TransformFunc(func(doc string) (string, error) {
		var d libvirtxml.Domain
		if err := d.Unmarshal(doc); err != nil {
			return "", fmt.Errorf("failed to parse domain XML: %w", err)
		}
		if err := fn(&d); err != nil {
			return "", err
		}
		return d.Marshal()
	})
}

// PoolTransform edits a storage pool document.
func PoolTransform(fn func(*libvirtxml.StoragePool) error) Transform {
	return TransformFunc(func(doc string) (string, error) {
		var p libvirtxml.StoragePool
		if err := p.Unmarshal(doc); err != nil {
			return "", fmt.Errorf("failed to parse storage pool XML: %w", err)
		}
		if err := fn(&p); err != nil {
			return "", err
		}
		return p.Marshal()
	})
}

// VolumeTransform edits a storage volume document.
func VolumeTransform(fn func(*libvirtxml.StorageVolume) error) Transform {
	return TransformFunc(func(doc string) (string, error) {
		var v libvirtxml.StorageVolume
		if err := v.Unmarshal(doc); err != nil {
			return "", fmt.Errorf("failed to parse volume XML: %w", err)
		}
		if err := fn(&v); err != nil {
			return "", err
		}
		return v.Marshal()
	})
}

// applyTransform reads, transforms and redefines c. Errors are not folded
// into a LifecycleResult; a rejected document surfaces as ErrInvalidConfig.
func applyTransform(ctx context.Context, c Configurable, t Transform) error {
	doc, err := c.ConfigRaw()
	if err != nil {
		return err
	}

	updated, err := t.Apply(doc)
	if err != nil {
		return fmt.Errorf("transform %s %q: %w: %w", c.Kind(), c.Name(), ErrInvalidConfig, err)
	}
	if updated == doc {
		return nil
	}

	return c.SetConfigRaw(ctx, updated)
}
