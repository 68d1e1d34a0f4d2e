package jesd216

import (
	"errors"
	"fmt"
)

// Transport errors.
var (
	// ErrUnsupportedWidth indicates a frame asks for more data lines than
	// the port provides.
	ErrUnsupportedWidth = errors.New("jesd216: unsupported bus width")

	// ErrNotStarted indicates a transaction on a bus that is not started.
	ErrNotStarted = errors.New("jesd216: bus not started")

	// ErrNotSupported indicates the port lacks an optional capability.
	ErrNotSupported = errors.New("jesd216: not supported")

	// ErrNoSFDP indicates the device did not return an SFDP signature.
	ErrNoSFDP = errors.New("jesd216: device does not support SFDP")
)

// TransferError wraps a port failure with the opcode of the transaction.
type TransferError struct {
	// Opcode is the wire opcode of the failed transaction
	Opcode byte

	// Err is the underlying port error
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("transfer 0x%02X failed: %v", e.Opcode, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsTransferError returns true if err is or wraps a TransferError.
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}
