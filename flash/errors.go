package flash

import (
	"errors"
	"fmt"
)

// Device errors. A nil error means the operation completed.
var (
	// ErrBusyErasing indicates an erase is outstanding.
	ErrBusyErasing = errors.New("flash: busy erasing")

	// ErrProgram indicates the device reported a program failure.
	ErrProgram = errors.New("flash: program error")

	// ErrErase indicates the device reported an erase failure.
	ErrErase = errors.New("flash: erase error")

	// ErrVerify indicates a byte did not read back as erased.
	ErrVerify = errors.New("flash: verify error")
)

// DeviceError reports a failure flagged in a device status register. The
// driver clears the status before returning it.
type DeviceError struct {
	// Op is the operation that failed
	Op string

	// Offset is the device offset of the failing command
	Offset uint32

	// Status is the raw status register value
	Status byte

	// Err is ErrProgram or ErrErase
	Err error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s at 0x%08X failed: %v (status 0x%02X)", e.Op, e.Offset, e.Err, e.Status)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

// VerifyError reports the first byte found not erased.
type VerifyError struct {
	// Offset is the device offset of the byte
	Offset uint32

	// Value is the byte read back
	Value byte
}

func (e *VerifyError) Error() string {
	return fmt.Sprintf("verify failed at 0x%08X: read 0x%02X", e.Offset, e.Value)
}

func (e *VerifyError) Unwrap() error {
	return ErrVerify
}
