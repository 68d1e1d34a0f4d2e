package m25q

import (
	"time"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/jesd216"
)

// Options holds the driver configuration fixed at construction.
type Options struct {
	// BusMode selects the protocol the device is driven with
	BusMode jesd216.Mode

	// SubSectors selects 4 KiB subsector erase instead of 64 KiB sectors
	SubSectors bool

	// ReadDummyCycles is the dummy cycle count used by fast reads
	ReadDummyCycles int

	// CompareBufferSize is the read chunk size used by VerifyErase
	CompareBufferSize int

	// PollDelay is slept before each status read while a program runs.
	// Zero spins.
	PollDelay time.Duration

	// Logger is used for logging operations (optional)
	Logger flash.Logger

	// Manufacturers lists the accepted manufacturer IDs
	Manufacturers []byte

	// MemoryTypes lists the accepted memory type IDs
	MemoryTypes []byte
}

// defaultOptions returns the default configuration.
func defaultOptions() Options {
	return Options{
		BusMode:           jesd216.ModeWide4L,
		ReadDummyCycles:   DefaultReadDummyCycles,
		CompareBufferSize: DefaultCompareBufferSize,
		Manufacturers:     DefaultManufacturers,
		MemoryTypes:       DefaultMemoryTypes,
	}
}

// Option is a functional option for configuring the Driver.
type Option func(*Options)

// WithBusMode selects the protocol the device is driven with. Wide modes
// switch the device to 1, 2 or 4 lines during Start; ModeSPI keeps the
// device in its reset protocol.
//
// Example:
//
//	drv := m25q.New(m25q.WithBusMode(jesd216.ModeSPI))
func WithBusMode(mode jesd216.Mode) Option {
	return func(o *Options) {
		o.BusMode = mode
	}
}

// WithSubSectors selects 4 KiB subsector erase. The descriptor then
// reports 4 KiB sectors.
func WithSubSectors(enabled bool) Option {
	return func(o *Options) {
		o.SubSectors = enabled
	}
}

// WithReadDummyCycles sets the fast read dummy cycle count (1 to 15).
// Default is 8.
func WithReadDummyCycles(cycles int) Option {
	return func(o *Options) {
		if cycles > 0 && cycles < 16 {
			o.ReadDummyCycles = cycles
		}
	}
}

// WithCompareBufferSize sets the chunk size VerifyErase reads with.
// Default is 32 bytes.
func WithCompareBufferSize(size int) Option {
	return func(o *Options) {
		if size > 0 {
			o.CompareBufferSize = size
		}
	}
}

// WithPollDelay sleeps d before each status read while waiting for a page
// program, yielding the CPU to other goroutines.
//
// Example:
//
//	drv := m25q.New(m25q.WithPollDelay(time.Millisecond))
func WithPollDelay(d time.Duration) Option {
	return func(o *Options) {
		if d >= 0 {
			o.PollDelay = d
		}
	}
}

// WithLogger sets a logger for driver operations.
//
// Example:
//
//	drv := m25q.New(m25q.WithLogger(logging.Zap(zap.NewExample().Sugar())))
func WithLogger(logger flash.Logger) Option {
	return func(o *Options) {
		o.Logger = logger
	}
}

// WithManufacturers replaces the accepted manufacturer IDs.
func WithManufacturers(ids ...byte) Option {
	return func(o *Options) {
		o.Manufacturers = append([]byte(nil), ids...)
	}
}

// WithMemoryTypes replaces the accepted memory type IDs.
func WithMemoryTypes(ids ...byte) Option {
	return func(o *Options) {
		o.MemoryTypes = append([]byte(nil), ids...)
	}
}
