package libvirt

import (
	"errors"

	"github.com/digitalocean/go-libvirt"
)

// ErrorCode extracts the libvirt error number from err, if it carries one.
func ErrorCode(err error) (libvirt.ErrorNumber, bool) {
	var lerr libvirt.Error
	if errors.As(err, &lerr) {
		return libvirt.ErrorNumber(lerr.Code), true
	}
	var lerrPtr *libvirt.Error
	if errors.As(err, &lerrPtr) && lerrPtr != nil {
		return libvirt.ErrorNumber(lerrPtr.Code), true
	}
	return 0, false
}

func hasCode(err error, codes ...libvirt.ErrorNumber) bool {
	code, ok := ErrorCode(err)
	if !ok {
		return false
	}
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err means the domain, pool or volume does not
// exist.
func IsNotFound(err error) bool {
	return hasCode(err, libvirt.ErrNoDomain, libvirt.ErrNoStoragePool, libvirt.ErrNoStorageVol)
}

// IsInvalidConfig reports whether the daemon rejected a configuration
// document.
func IsInvalidConfig(err error) bool {
	return hasCode(err, libvirt.ErrXMLError, libvirt.ErrXMLDetail, libvirt.ErrInvalidArg)
}

// IsReadOnly reports whether the daemon refused a mutation on a restricted
// connection.
func IsReadOnly(err error) bool {
	return hasCode(err, libvirt.ErrOperationDenied, libvirt.ErrAuthFailed)
}

// IsOperationInvalid reports whether the object was in the wrong state for
// the requested call, e.g. destroying an inactive domain.
func IsOperationInvalid(err error) bool {
	return hasCode(err, libvirt.ErrOperationInvalid)
}
