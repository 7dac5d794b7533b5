package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/digitalocean/go-libvirt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jbweber/hvctl/internal/config"
	"github.com/jbweber/hvctl/internal/entity"
	"github.com/jbweber/hvctl/internal/entity/fake"
	hvlibvirt "github.com/jbweber/hvctl/internal/libvirt"
	"github.com/jbweber/hvctl/internal/runner"
)

type fakeSession struct {
	h        *fake.Hypervisor
	readOnly bool
}

func (s fakeSession) Backend() entity.Backend { return s.h }
func (s fakeSession) ReadOnly() bool          { return s.readOnly }
func (s fakeSession) Close() error            { return nil }

type result struct {
	code           int
	stdout, stderr string
}

// hvctl runs the command line against h with the user's environment
// hidden.
func hvctl(t *testing.T, h *fake.Hypervisor, args ...string) result {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvURI, "")
	t.Setenv(config.EnvJobs, "")
	t.Setenv(config.EnvLogLevel, "")

	var stdout, stderr bytes.Buffer
	a := newApp(&stdout, &stderr)
	a.connect = func(_ context.Context, cfg *config.Config) (*hypervisor, error) {
		if h == nil {
			return nil, errors.New("failed to connect to libvirt at qemu:///system: connection refused")
		}
		conn := runner.ConnectorFunc(func(context.Context) (runner.Session, error) {
			return fakeSession{h: h, readOnly: cfg.ReadOnly}, nil
		})
		return &hypervisor{
			Connector: conn,
			info:      hvlibvirt.ServerInfo{Version: "10.0.0", Hostname: "hv1", URI: "qemu:///system"},
		}, nil
	}
	code := execute(context.Background(), a, args)
	return result{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func testHypervisor() *fake.Hypervisor {
	h := fake.New()
	h.AddDomain(fake.Domain{Name: "web", Persistent: true, VCPUs: 2, MemoryKiB: 2 << 20})
	h.AddDomain(fake.Domain{Name: "db", Active: true, Persistent: true})
	h.AddDomain(fake.Domain{Name: "scratch", Active: true})
	h.AddPool(fake.Pool{Name: "default", Active: true, Persistent: true, Path: "/var/lib/libvirt/images"})
	h.AddVolume("default", fake.Volume{Name: "web.qcow2", Capacity: 1 << 30, Format: "qcow2"})
	return h
}

func TestVersion(t *testing.T) {
	r := hvctl(t, nil, "version")
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "hvctl dev")
}

func TestTestConn(t *testing.T) {
	r := hvctl(t, testHypervisor(), "test-conn")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "✓ Libvirt version: 10.0.0")
	assert.Contains(t, r.stdout, "Connection test successful!")

	r = hvctl(t, nil, "test-conn")
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "connection refused")
}

func TestSingleTarget(t *testing.T) {
	tests := []struct {
		name   string
		setup  func(h *fake.Hypervisor)
		args   []string
		code   int
		stdout string
	}{
		{
			name:   "start",
			args:   []string{"domain", "start", "web"},
			stdout: "Starting domain \"web\".\n",
		},
		{
			name:   "already running",
			args:   []string{"domain", "start", "db"},
			stdout: "Starting domain \"db\".\n",
		},
		{
			name:   "already running strict",
			args:   []string{"--idempotent=false", "domain", "start", "db"},
			code:   4,
			stdout: "Domain \"db\" is already started.\n",
		},
		{
			name:   "not found",
			args:   []string{"domain", "start", "nope"},
			code:   2,
			stdout: "Could not find domain \"nope\".\n",
		},
		{
			name:   "missing pool",
			args:   []string{"volume", "delete", "nopool", "web.qcow2"},
			code:   3,
			stdout: "Could not find storage pool \"nopool\".\n",
		},
		{
			name: "operation failed",
			setup: func(h *fake.Hypervisor) {
				h.FailOn("DomainCreate", "web", fake.Error(libvirt.ErrOperationFailed, "boom"))
			},
			args:   []string{"domain", "start", "web"},
			code:   4,
			stdout: "Failed to start domain \"web\".\n",
		},
		{
			name:   "pool stop",
			args:   []string{"pool", "stop", "default"},
			stdout: "Stopping storage pool \"default\".\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := testHypervisor()
			if tt.setup != nil {
				tt.setup(h)
			}
			r := hvctl(t, h, tt.args...)
			assert.Equal(t, tt.code, r.code, r.stderr)
			assert.Equal(t, tt.stdout, r.stdout)
		})
	}
}

func TestSingleTargetSummary(t *testing.T) {
	r := hvctl(t, testHypervisor(), "domain", "start", "--summary", "web")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "Results:\n  Success:     1\n  Failed:      0\n")
	assert.Contains(t, r.stdout, "Total:         1\n")
}

func TestBatch(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "domain", "shutdown", "--all", "--state", "running", "--timeout", "0")
	require.Equal(t, 0, r.code, r.stderr)

	assert.Contains(t, r.stdout, "Shutting down domain \"db\".\n")
	assert.Contains(t, r.stdout, "Shutting down domain \"scratch\".\n")
	assert.NotContains(t, r.stdout, "\"web\"")
	assert.Contains(t, r.stdout, "Finished shutting down specified domains.\n\n")
	assert.Contains(t, r.stdout, "Success:     2")
	assert.Contains(t, r.stdout, "Total:         2\n")
}

func TestBatchMatch(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "domain", "undefine", "--match", "^(web|db)$", "--persistent")
	require.Equal(t, 0, r.code, r.stderr)

	_, ok := h.GetDomain("web")
	assert.False(t, ok, "stopped domain should be gone")
	d, ok := h.GetDomain("db")
	require.True(t, ok, "running domain should survive as transient")
	assert.False(t, d.Persistent)
	_, ok = h.GetDomain("scratch")
	assert.True(t, ok)
}

func TestBatchFailures(t *testing.T) {
	h := testHypervisor()
	h.FailOn("DomainDestroy", "db", fake.Error(libvirt.ErrOperationFailed, "boom"))

	r := hvctl(t, h, "domain", "stop", "db", "scratch", "nope")
	assert.Equal(t, 4, r.code)
	assert.Contains(t, r.stdout, "Failed to stop domain \"db\".")
	assert.Contains(t, r.stdout, "Could not find domain \"nope\".")
	assert.Contains(t, r.stdout, "Success:     1")
	assert.Contains(t, r.stdout, "Failed:      2")
	assert.Contains(t, r.stdout, "Not Found: 1")
}

func TestNoMatch(t *testing.T) {
	r := hvctl(t, testHypervisor(), "domain", "start", "--match", "^zzz")
	assert.Equal(t, 0, r.code)
	assert.Contains(t, r.stdout, "No domains matched.")

	r = hvctl(t, testHypervisor(), "--fail-if-no-match", "domain", "start", "--match", "^zzz")
	assert.Equal(t, 2, r.code)
}

func TestUsageErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no selection", []string{"domain", "start"}, "no targets given"},
		{"bad regexp", []string{"domain", "start", "--match", "("}, "invalid --match pattern"},
		{"names and all", []string{"domain", "start", "--all", "web"}, "names cannot be combined"},
		{"volume without pool", []string{"volume", "wipe"}, "a storage pool is required"},
		{"edit without changes", []string{"domain", "edit", "web"}, "nothing to change"},
		{"force without timeout", []string{"domain", "shutdown", "--force", "--timeout", "0", "web"}, "--force needs"},
		{"bad size", []string{"volume", "resize", "default", "web.qcow2", "--capacity", "lots"}, "invalid size"},
		{"bad output", []string{"-o", "xml", "domain", "list"}, "invalid format: xml"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := hvctl(t, testHypervisor(), tt.args...)
			assert.Equal(t, 1, r.code)
			assert.Contains(t, r.stderr, tt.want)
		})
	}
}

func TestDomainEdit(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "domain", "edit", "web", "--memory", "4096", "--vcpus", "4", "--title", "frontend")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Editing domain \"web\".\n", r.stdout)

	d, ok := h.GetDomain("web")
	require.True(t, ok)
	assert.Equal(t, uint(4), d.VCPUs)
	assert.Contains(t, d.XML, `<memory unit="MiB">4096</memory>`)
	assert.Contains(t, d.XML, "<title>frontend</title>")
}

func TestAutostart(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "domain", "autostart", "web")
	require.Equal(t, 0, r.code, r.stderr)
	d, _ := h.GetDomain("web")
	assert.True(t, d.Autostart)

	r = hvctl(t, h, "domain", "autostart", "--disable", "web")
	require.Equal(t, 0, r.code, r.stderr)
	d, _ = h.GetDomain("web")
	assert.False(t, d.Autostart)
}

func TestVolumeResize(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "volume", "resize", "default", "web.qcow2", "--capacity", "2GiB")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Resizing volume \"web.qcow2\".\n", r.stdout)

	v, ok := h.GetVolume("default", "web.qcow2")
	require.True(t, ok)
	assert.Equal(t, uint64(2<<30), v.Capacity)
}

func TestDefine(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "new.xml")
	require.NoError(t, os.WriteFile(good, []byte(`<domain type="kvm"><name>new</name><memory unit="KiB">1048576</memory></domain>`), 0o644))
	bad := filepath.Join(dir, "bad.xml")
	require.NoError(t, os.WriteFile(bad, []byte(`<domain>`), 0o644))

	h := testHypervisor()
	r := hvctl(t, h, "domain", "define", good)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Defined domain \"new\".\n", r.stdout)
	_, ok := h.GetDomain("new")
	assert.True(t, ok)

	r = hvctl(t, h, "domain", "define", bad)
	assert.Equal(t, 4, r.code)
	assert.Contains(t, r.stdout, "Failed to define domain from")

	r = hvctl(t, h, "domain", "define", filepath.Join(dir, "missing.xml"))
	assert.Equal(t, 1, r.code)
	assert.Contains(t, r.stderr, "failed to read")

	r = hvctl(t, h, "volume", "define", "nopool", good)
	assert.Equal(t, 3, r.code)
	assert.Contains(t, r.stdout, "Could not find storage pool \"nopool\".")
}

func TestCreate(t *testing.T) {
	dir := t.TempDir()
	doc := filepath.Join(dir, "tmp.xml")
	require.NoError(t, os.WriteFile(doc, []byte(`<domain type="kvm"><name>tmp</name></domain>`), 0o644))
	pool := filepath.Join(dir, "pool.xml")
	require.NoError(t, os.WriteFile(pool, []byte(`<pool type="dir"><name>scratchpool</name><target><path>/srv/tmp</path></target></pool>`), 0o644))

	h := testHypervisor()
	r := hvctl(t, h, "domain", "create", doc)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Created domain \"tmp\".\n", r.stdout)
	d, ok := h.GetDomain("tmp")
	require.True(t, ok)
	assert.True(t, d.Active)
	assert.False(t, d.Persistent)

	r = hvctl(t, h, "domain", "create", doc)
	assert.Equal(t, 4, r.code)
	assert.Contains(t, r.stdout, "Failed to create domain from")

	h.RemoveDomain("tmp")
	r = hvctl(t, h, "domain", "create", "--paused", doc)
	require.Equal(t, 0, r.code, r.stderr)
	d, _ = h.GetDomain("tmp")
	assert.Equal(t, libvirt.DomainStartPaused, d.CreateFlags)

	r = hvctl(t, h, "pool", "create", pool)
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "Created storage pool \"scratchpool\".\n", r.stdout)

	r = hvctl(t, h, "--read-only", "pool", "create", pool)
	assert.Equal(t, 4, r.code)
	assert.Equal(t, 1, h.CountCalls("StoragePoolCreateXML", "scratchpool"))
}

func TestXML(t *testing.T) {
	h := testHypervisor()
	h.AddDomain(fake.Domain{Name: "custom", Persistent: true, XML: "<domain><name>custom</name></domain>"})

	r := hvctl(t, h, "domain", "xml", "custom")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Equal(t, "<domain><name>custom</name></domain>\n", r.stdout)

	r = hvctl(t, h, "volume", "xml", "default", "web.qcow2")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "<name>web.qcow2</name>")

	r = hvctl(t, h, "pool", "xml", "default")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "<name>default</name>")

	r = hvctl(t, h, "domain", "xml", "nope")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "nope")

	r = hvctl(t, h, "volume", "xml", "nopool", "web.qcow2")
	assert.Equal(t, 3, r.code)

	r = hvctl(t, h, "volume", "xml", "default", "nope.img")
	assert.Equal(t, 2, r.code)
}

func TestDomainList(t *testing.T) {
	r := hvctl(t, testHypervisor(), "domain", "list", "--state", "running")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "NAME")
	assert.Contains(t, r.stdout, "db")
	assert.Contains(t, r.stdout, "scratch")
	assert.NotContains(t, r.stdout, "web")

	r = hvctl(t, testHypervisor(), "-o", "json", "domain", "list", "--transient")
	require.Equal(t, 0, r.code, r.stderr)
	var rows []map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, "scratch", rows[0]["name"])
}

func TestInfo(t *testing.T) {
	r := hvctl(t, testHypervisor(), "domain", "info", "web")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "2048 MiB")

	r = hvctl(t, testHypervisor(), "pool", "info", "default")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "/var/lib/libvirt/images")

	r = hvctl(t, testHypervisor(), "volume", "info", "default", "web.qcow2")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "/var/lib/libvirt/images/web.qcow2")
	assert.Contains(t, r.stdout, "qcow2")
	assert.Contains(t, r.stdout, "1.0 GiB")

	r = hvctl(t, testHypervisor(), "domain", "info", "nope")
	assert.Equal(t, 2, r.code)
	assert.Contains(t, r.stderr, "nope")

	r = hvctl(t, testHypervisor(), "volume", "info", "default", "nope.img")
	assert.Equal(t, 2, r.code)
}

func TestVolumeList(t *testing.T) {
	r := hvctl(t, testHypervisor(), "-o", "yaml", "volume", "list", "default")
	require.Equal(t, 0, r.code, r.stderr)
	assert.Contains(t, r.stdout, "name: web.qcow2")
	assert.Contains(t, r.stdout, "format: qcow2")

	r = hvctl(t, testHypervisor(), "volume", "list", "nopool")
	assert.Equal(t, 2, r.code)
}

func TestReadOnly(t *testing.T) {
	h := testHypervisor()
	r := hvctl(t, h, "--read-only", "domain", "start", "web")
	assert.Equal(t, 4, r.code)
	assert.True(t, strings.HasPrefix(r.stdout, "Insufficient privileges to start domain \"web\"."), r.stdout)
	assert.Zero(t, h.CountCalls("DomainCreate", "web"))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want uint64
	}{
		{"512", 512},
		{"10GiB", 10 << 30},
		{"1 MiB", 1 << 20},
		{"2G", 2_000_000_000},
	}
	for _, tt := range tests {
		got, err := parseSize(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := parseSize("")
	assert.Error(t, err)
}
