package flashprog

import (
	"fmt"
)

// SegmentOutOfRangeError indicates that an image segment does not fit in the
// device.
type SegmentOutOfRangeError struct {
	Offset uint32
	Length int
	Size   uint64
}

func (e *SegmentOutOfRangeError) Error() string {
	return fmt.Sprintf("segment at 0x%08X (%d bytes) is out of range: device size is %d bytes",
		e.Offset, e.Length, e.Size)
}

// ReadbackMismatchError indicates that data read back after programming
// differs from the image.
type ReadbackMismatchError struct {
	Offset   uint32
	Expected byte
	Actual   byte
}

func (e *ReadbackMismatchError) Error() string {
	return fmt.Sprintf("readback mismatch at 0x%08X: expected 0x%02X, got 0x%02X",
		e.Offset, e.Expected, e.Actual)
}
