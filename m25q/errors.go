package m25q

import (
	"bytes"
	"fmt"
)

// UnsupportedDeviceError is returned by Start when the identification does
// not match the whitelists or describes an unaddressable capacity.
type UnsupportedDeviceError struct {
	Identity Identity
	Reason   string
}

func (e *UnsupportedDeviceError) Error() string {
	return fmt.Sprintf("unsupported device %s: %s", e.Identity, e.Reason)
}

// IdentityMismatchError is returned by Start when the identification read
// after the bus width switch differs from the one read before. The device
// did not accept the new protocol.
type IdentityMismatchError struct {
	Expected []byte
	Actual   []byte
}

func (e *IdentityMismatchError) Error() string {
	return fmt.Sprintf("identity mismatch after width switch: expected % X, got % X",
		e.Expected, e.Actual)
}

func contains(list []byte, b byte) bool {
	return bytes.IndexByte(list, b) >= 0
}
