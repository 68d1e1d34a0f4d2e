package flash

import "time"

// Attributes describes device capabilities.
type Attributes uint32

// Device attributes.
const (
	// AttrErasedIsOne indicates erased bytes read as 0xFF
	AttrErasedIsOne Attributes = 1 << iota

	// AttrMemoryMapped indicates the device can be mapped into the host address space
	AttrMemoryMapped

	// AttrRewritable indicates programmed bits can be programmed again without erase
	AttrRewritable

	// AttrReadECC indicates reads are ECC protected
	AttrReadECC

	// AttrSuspendErase indicates an erase can be suspended
	AttrSuspendErase
)

// Has reports whether all bits in a are set.
func (at Attributes) Has(a Attributes) bool {
	return at&a == a
}

// Descriptor holds the geometry of a flash device. It is computed when the
// driver starts and is read-only afterwards.
type Descriptor struct {
	// Attributes are the device capabilities
	Attributes Attributes

	// PageSize is the largest unit a single program command can write
	PageSize uint32

	// SectorsCount is the number of uniform erase sectors
	SectorsCount uint32

	// SectorSize is the size of one erase sector in bytes
	SectorSize uint32

	// Address is the memory-mapped view of the device while it is mapped,
	// nil otherwise
	Address []byte
}

// Size returns the device size in bytes.
func (d *Descriptor) Size() uint64 {
	return uint64(d.SectorsCount) * uint64(d.SectorSize)
}

// SectorOffset returns the byte offset of the given sector.
func (d *Descriptor) SectorOffset(sector uint32) uint32 {
	return sector * d.SectorSize
}

// SectorOf returns the sector containing the given byte offset.
func (d *Descriptor) SectorOf(offset uint32) uint32 {
	return offset / d.SectorSize
}

// ErasedValue returns the value erased bytes read back as.
func (d *Descriptor) ErasedValue() byte {
	if d.Attributes.Has(AttrErasedIsOne) {
		return 0xFF
	}
	return 0x00
}

// State is the operational state of a flash driver.
type State uint8

// Driver states.
const (
	StateUninit  State = iota // Not initialized
	StateStop                 // Stopped
	StateReady                // Ready for an operation
	StateRead                 // Read in progress
	StateProgram              // Program in progress
	StateErase                // Erase started, not yet observed complete
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateUninit:
		return "uninit"
	case StateStop:
		return "stop"
	case StateReady:
		return "ready"
	case StateRead:
		return "read"
	case StateProgram:
		return "program"
	case StateErase:
		return "erase"
	default:
		return "unknown"
	}
}

// Device is implemented by flash device drivers. Callers depend on this
// interface rather than on a concrete driver.
//
// Read, Program and VerifyErase return ErrBusyErasing while an erase is
// outstanding. QueryErase is the only operation that makes progress on an
// outstanding erase.
type Device interface {
	// Descriptor returns the device geometry. The driver must be started.
	Descriptor() *Descriptor

	// Read reads len(buf) bytes at offset.
	Read(offset uint32, buf []byte) error

	// Program writes buf at offset. Bits can only be cleared.
	Program(offset uint32, buf []byte) error

	// StartEraseAll starts a whole-device erase and returns immediately.
	StartEraseAll() error

	// StartEraseSector starts erasing one sector and returns immediately.
	StartEraseSector(sector uint32) error

	// QueryErase polls an outstanding erase. It returns ErrBusyErasing and
	// a suggested delay while the erase is running.
	QueryErase() (time.Duration, error)

	// VerifyErase checks every byte of the sector reads as erased.
	VerifyErase(sector uint32) error
}

// Logger is an optional logging interface accepted by the drivers and the
// programmer. See package logging for adapters to common loggers.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}
