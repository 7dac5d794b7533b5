package entity

import (
	"context"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"libvirt.org/go/libvirtxml"

	"github.com/jbweber/hvctl/internal/entity/fake"
)

func TestStoragePoolLifecycle(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true, Path: "/var/lib/libvirt/images"})
	p := mustPool(t, h, "images", false)

	got, err := p.Start(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Success, got)

	got, err = p.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success, got)

	got, err = p.Destroy(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Success, got)
	assert.True(t, p.Valid())

	got, err = p.Undefine(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, Success, got)
	assert.False(t, p.Valid())

	_, ok := h.GetPool("images")
	assert.False(t, ok)
}

func TestStoragePoolDestroy_Transient(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "tmp", Active: true})
	p := mustPool(t, h, "tmp", false)

	got, err := p.Destroy(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, Success, got)
	assert.False(t, p.Valid())
}

func TestStoragePoolBuild(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true})

	got, err := mustPool(t, h, "images", false).Build(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success, got)

	fp, _ := h.GetPool("images")
	assert.True(t, fp.Built)

	_, err = mustPool(t, h, "images", true).Build(context.Background())
	require.ErrorIs(t, err, ErrInsufficientPrivileges)
}

func TestStoragePoolRefresh_Inactive(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true})

	got, err := mustPool(t, h, "images", false).Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Failure, got)
}

func TestStoragePoolDelete(t *testing.T) {
	t.Run("running", func(t *testing.T) {
		h := fake.New()
		h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Built: true})
		p := mustPool(t, h, "images", false)

		got, err := p.Delete(context.Background(), true)
		require.ErrorIs(t, err, ErrEntityRunning)
		assert.Equal(t, Failure, got)
		assert.Zero(t, h.CountCalls("StoragePoolDelete", "images"))
	})

	t.Run("stopped", func(t *testing.T) {
		h := fake.New()
		h.AddPool(fake.Pool{Name: "images", Persistent: true, Built: true})
		p := mustPool(t, h, "images", false)

		got, err := p.Delete(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, Success, got)
		assert.True(t, p.Valid(), "the definition survives a delete")

		fp, _ := h.GetPool("images")
		assert.False(t, fp.Built)
	})

	t.Run("invalid handle", func(t *testing.T) {
		h := fake.New()
		h.AddPool(fake.Pool{Name: "images", Persistent: true})
		p := mustPool(t, h, "images", false)
		_, err := p.Undefine(context.Background(), false)
		require.NoError(t, err)

		got, err := p.Delete(context.Background(), true)
		require.NoError(t, err)
		assert.Equal(t, Success, got)

		got, err = p.Delete(context.Background(), false)
		require.NoError(t, err)
		assert.Equal(t, Failure, got)
	})
}

func TestStoragePoolSetAutostart(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true, Autostart: true})
	p := mustPool(t, h, "images", false)

	got, err := p.SetAutostart(context.Background(), true, true)
	require.NoError(t, err)
	assert.Equal(t, Success, got)
	assert.Zero(t, h.CountCalls("StoragePoolSetAutostart", "images"))

	got, err = p.SetAutostart(context.Background(), false, true)
	require.NoError(t, err)
	assert.Equal(t, Success, got)

	on, err := p.Autostart()
	require.NoError(t, err)
	assert.False(t, on)
}

func TestStoragePoolApplyTransform(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true, Path: "/srv/a"})
	p := mustPool(t, h, "images", false)

	err := p.ApplyTransform(context.Background(), PoolTransform(func(cfg *libvirtxml.StoragePool) error {
		cfg.Target.Path = "/srv/b"
		return nil
	}))
	require.NoError(t, err)

	fp, _ := h.GetPool("images")
	assert.Equal(t, "/srv/b", fp.Path)
}

func TestLookupPool(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Persistent: true})
	fp, _ := h.GetPool("images")

	p, err := LookupPool(h, fp.UUID.String(), false)
	require.NoError(t, err)
	assert.Equal(t, "images", p.Name())

	_, err = LookupPool(h, "nope", false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestLookup(t *testing.T) {
	h := fake.New()
	h.AddDomain(fake.Domain{Name: "web", Persistent: true})
	h.AddPool(fake.Pool{Name: "images", Persistent: true})

	e, err := Lookup(h, KindDomain, "web", false)
	require.NoError(t, err)
	assert.Equal(t, KindDomain, e.Kind())

	e, err = Lookup(h, KindPool, "images", false)
	require.NoError(t, err)
	assert.Equal(t, KindPool, e.Kind())

	_, err = Lookup(h, KindVolume, "disk", false)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestVolumeDelete(t *testing.T) {
	tests := []struct {
		name       string
		idempotent bool
		second     LifecycleResult
	}{
		{name: "idempotent", idempotent: true, second: Success},
		{name: "strict", idempotent: false, second: NoOperation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fake.New()
			h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Path: "/srv"})
			h.AddVolume("images", fake.Volume{Name: "disk.qcow2", Capacity: 1 << 30})
			v := mustVolume(t, h, "images", "disk.qcow2")

			got, err := v.Delete(context.Background(), tt.idempotent)
			require.NoError(t, err)
			assert.Equal(t, Success, got)
			assert.False(t, v.Valid())

			_, ok := h.GetVolume("images", "disk.qcow2")
			assert.False(t, ok)

			got, err = v.Undefine(context.Background(), tt.idempotent)
			require.NoError(t, err)
			assert.Equal(t, tt.second, got)
			assert.Equal(t, 1, h.CountCalls("StorageVolDelete", "disk.qcow2"))
		})
	}
}

func TestVolumeWipe(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Path: "/srv"})
	h.AddVolume("images", fake.Volume{Name: "disk.qcow2"})
	v := mustVolume(t, h, "images", "disk.qcow2")

	got, err := v.Wipe(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Success, got)

	fv, _ := h.GetVolume("images", "disk.qcow2")
	assert.True(t, fv.Wiped)
	assert.Equal(t, "images", v.Pool())

	key, err := v.Key()
	require.NoError(t, err)
	assert.Equal(t, "/srv/disk.qcow2", key)
}

func TestVolumeResize(t *testing.T) {
	const gib = uint64(1 << 30)

	tests := []struct {
		name    string
		opts    ResizeOptions
		want    LifecycleResult
		wantErr error
		wantCap uint64
	}{
		{name: "grow", opts: ResizeOptions{Capacity: 4 * gib}, want: Success, wantCap: 4 * gib},
		{name: "grow by delta", opts: ResizeOptions{Capacity: gib, Delta: true}, want: Success, wantCap: 3 * gib},
		{name: "same size", opts: ResizeOptions{Capacity: 2 * gib}, want: NoOperation, wantCap: 2 * gib},
		{name: "same size idempotent", opts: ResizeOptions{Capacity: 2 * gib, Idempotent: true}, want: Success, wantCap: 2 * gib},
		{name: "zero delta", opts: ResizeOptions{Delta: true}, want: NoOperation, wantCap: 2 * gib},
		{name: "shrink refused", opts: ResizeOptions{Capacity: gib}, want: Failure, wantErr: ErrInvalidOperation, wantCap: 2 * gib},
		{name: "shrink allowed", opts: ResizeOptions{Capacity: gib, Shrink: true}, want: Success, wantCap: gib},
		{name: "shrink by delta", opts: ResizeOptions{Capacity: gib, Delta: true, Shrink: true}, want: Success, wantCap: gib},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := fake.New()
			h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Path: "/srv"})
			h.AddVolume("images", fake.Volume{Name: "disk.qcow2", Capacity: 2 * gib})
			v := mustVolume(t, h, "images", "disk.qcow2")

			got, err := v.Resize(context.Background(), tt.opts)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)

			capacity, err := v.Capacity()
			require.NoError(t, err)
			assert.Equal(t, tt.wantCap, capacity)
		})
	}
}

func TestVolumeResize_BackendRejects(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Path: "/srv"})
	h.AddVolume("images", fake.Volume{Name: "disk.qcow2", Capacity: 1})
	h.FailOn("StorageVolResize", "disk.qcow2", fake.Error(libvirt.ErrOperationFailed, "operation failed: resize not supported by pool"))
	v := mustVolume(t, h, "images", "disk.qcow2")

	got, err := v.Resize(context.Background(), ResizeOptions{Capacity: 2})
	require.NoError(t, err)
	assert.Equal(t, Failure, got)
}

func TestDefineVolume(t *testing.T) {
	h := fake.New()
	h.AddPool(fake.Pool{Name: "images", Active: true, Persistent: true, Path: "/srv"})
	pool := mustPool(t, h, "images", false)

	doc, err := (&libvirtxml.StorageVolume{
		Name:     "new.qcow2",
		Capacity: &libvirtxml.StorageVolumeSize{Value: 10, Unit: "bytes"},
	}).Marshal()
	require.NoError(t, err)

	v, err := DefineVolume(h, pool, doc)
	require.NoError(t, err)
	assert.Equal(t, "new.qcow2", v.Name())

	_, err = DefineVolume(h, pool, doc)
	require.ErrorIs(t, err, ErrInvalidConfig, "a duplicate is refused by the backend")

	_, err = DefineVolume(h, mustPool(t, h, "images", true), doc)
	require.ErrorIs(t, err, ErrInsufficientPrivileges)

	_, err = LookupVolume(h, pool, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreatePool(t *testing.T) {
	h := fake.New()
	doc, err := (&libvirtxml.StoragePool{
		Type:   "dir",
		Name:   "tmp",
		Target: &libvirtxml.StoragePoolTarget{Path: "/tmp/pool"},
	}).Marshal()
	require.NoError(t, err)

	p, err := CreatePool(h, doc, false)
	require.NoError(t, err)
	assert.Equal(t, "tmp", p.Name())

	running, err := p.Running()
	require.NoError(t, err)
	assert.True(t, running)
	persistent, err := p.Persistent()
	require.NoError(t, err)
	assert.False(t, persistent)

	_, err = CreatePool(h, doc, true)
	require.ErrorIs(t, err, ErrInsufficientPrivileges)

	_, err = CreatePool(h, "<pool", false)
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "storage pool", KindPool.String())
	assert.Equal(t, "Volume", KindVolume.Title())
	assert.True(t, KindVolume.HasParent())
	assert.Equal(t, KindPool, KindVolume.Parent())
	assert.False(t, KindDomain.HasParent())
}

func TestLifecycleResultString(t *testing.T) {
	assert.Equal(t, "no operation", NoOperation.String())
	assert.Equal(t, "timed out", TimedOut.String())
	assert.Equal(t, "forced", Forced.String())
}
