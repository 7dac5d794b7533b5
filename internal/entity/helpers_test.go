package entity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jbweber/hvctl/internal/entity/fake"
)

var _ Backend = (*fake.Hypervisor)(nil)

// fastPolls shortens the shutdown poll interval for the duration of a test.
func fastPolls(t *testing.T) {
	t.Helper()
	old := pollInterval
	pollInterval = time.Millisecond
	t.Cleanup(func() { pollInterval = old })
}

func mustDomain(t *testing.T, h *fake.Hypervisor, name string, readOnly bool) *Domain {
	t.Helper()
	d, err := LookupDomain(h, name, readOnly)
	require.NoError(t, err)
	return d
}

func mustPool(t *testing.T, h *fake.Hypervisor, name string, readOnly bool) *StoragePool {
	t.Helper()
	p, err := LookupPool(h, name, readOnly)
	require.NoError(t, err)
	return p
}

func mustVolume(t *testing.T, h *fake.Hypervisor, pool, name string) *Volume {
	t.Helper()
	v, err := LookupVolume(h, mustPool(t, h, pool, false), name)
	require.NoError(t, err)
	return v
}
