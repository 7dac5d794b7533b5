// Package libvirt manages connections to a libvirt daemon.
//
// This package wraps github.com/digitalocean/go-libvirt to provide:
//   - Connection descriptors parsed from libvirt URIs (qemu:///system,
//     qemu:///session, qemu+tcp://host/system, test:///default)
//   - A Connector with init-once Start semantics that hands out a fresh
//     connection on every Open
//   - Classification of libvirt error codes (not found, invalid config,
//     read-only)
//
// Typical use:
//
//	desc, err := libvirt.ParseDescriptor("qemu:///system")
//	if err != nil {
//	    return err
//	}
//	conn := libvirt.NewConnector(desc)
//	if err := conn.Start(ctx); err != nil {
//	    return err
//	}
//
//	client, err := conn.Open(ctx)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Consumer-Side Interfaces:
//
// This package does not define interfaces over the libvirt API. Consumers
// (internal/entity, internal/inventory) declare the subset of calls they
// need, and *libvirt.Libvirt satisfies them implicitly.
package libvirt
