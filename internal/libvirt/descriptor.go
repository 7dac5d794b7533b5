package libvirt

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/digitalocean/go-libvirt"
)

const (
	// DefaultURI is used when no URI is configured.
	DefaultURI = string(libvirt.QEMUSystem)

	// DefaultSocket is the system daemon socket.
	DefaultSocket = "/var/run/libvirt/libvirt-sock"

	// DefaultTimeout bounds dialing the daemon.
	DefaultTimeout = 5 * time.Second

	defaultTCPPort = "16509"
)

// Descriptor describes how to reach a hypervisor. It is cheap to copy and
// carries no live state, so every worker can build its own connection from it.
type Descriptor struct {
	// URI is the libvirt connection URI, e.g. qemu:///system.
	URI string
	// Socket overrides the local socket path.
	Socket string
	// Host is set for remote (+tcp) transports.
	Host string
	// Port is the remote port.
	Port string
	// Timeout bounds the dial.
	Timeout time.Duration
	// ReadOnly refuses all mutating operations on connections from this
	// descriptor.
	ReadOnly bool
}

// ParseDescriptor builds a Descriptor from a libvirt URI. An empty URI
// falls back to LIBVIRT_DEFAULT_URI and then qemu:///system.
//
// Supported forms:
//
//	qemu:///system
//	qemu:///session
//	qemu+unix:///system?socket=/path/to/sock
//	qemu+tcp://host[:port]/system
//	test:///default
func ParseDescriptor(uri string) (Descriptor, error) {
	if uri == "" {
		uri = os.Getenv("LIBVIRT_DEFAULT_URI")
	}
	if uri == "" {
		uri = DefaultURI
	}

	u, err := url.Parse(uri)
	if err != nil {
		return Descriptor{}, fmt.Errorf("invalid connection URI %q: %w", uri, err)
	}
	if u.Scheme == "" {
		return Descriptor{}, fmt.Errorf("invalid connection URI %q: missing driver", uri)
	}

	driver, transport, _ := strings.Cut(u.Scheme, "+")
	d := Descriptor{
		URI:     fmt.Sprintf("%s://%s", driver, u.Path),
		Timeout: DefaultTimeout,
	}
	if driver == "" {
		return Descriptor{}, fmt.Errorf("invalid connection URI %q: missing driver", uri)
	}

	switch transport {
	case "", "unix":
		if u.Host != "" && transport == "" {
			return Descriptor{}, fmt.Errorf("unsupported connection URI %q: remote hosts need an explicit +tcp transport", uri)
		}
		d.Socket = u.Query().Get("socket")
		if d.Socket == "" {
			d.Socket = defaultSocket(u.Path)
		}
	case "tcp":
		host, port, err := net.SplitHostPort(u.Host)
		if err != nil {
			host, port = u.Host, defaultTCPPort
		}
		if host == "" {
			return Descriptor{}, fmt.Errorf("invalid connection URI %q: missing host", uri)
		}
		d.Host, d.Port = host, port
	default:
		return Descriptor{}, fmt.Errorf("unsupported transport %q in connection URI %q", transport, uri)
	}

	return d, nil
}

// Remote reports whether the descriptor dials over TCP.
func (d Descriptor) Remote() bool {
	return d.Host != ""
}

// Address returns the socket path or host:port the descriptor dials.
func (d Descriptor) Address() string {
	if d.Remote() {
		return net.JoinHostPort(d.Host, d.Port)
	}
	return d.Socket
}

func (d Descriptor) String() string {
	if d.ReadOnly {
		return d.URI + " (read-only)"
	}
	return d.URI
}

func defaultSocket(path string) string {
	if path == "/session" {
		runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
		if runtimeDir == "" {
			runtimeDir = filepath.Join(os.TempDir(), fmt.Sprintf("libvirt-%d", os.Getuid()))
		}
		return filepath.Join(runtimeDir, "libvirt", "libvirt-sock")
	}
	return DefaultSocket
}
