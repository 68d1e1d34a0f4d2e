package jesd216

// Frame describes a single command transaction on a serial flash bus.
// The data phase is carried separately by the tx/rx buffers passed to
// Port.Exchange.
type Frame struct {
	// Opcode is the 8-bit instruction sent first on the wire
	Opcode byte

	// Addr is the address phase value, meaningful when AddrLen > 0
	Addr uint32

	// AddrLen is the address phase length in bytes (0, 3 or 4)
	AddrLen int

	// Alt is the alternate (mode) byte, sent when AltLen > 0
	Alt byte

	// AltLen is the alternate phase length in bytes (0 or 1)
	AltLen int

	// Dummy is the number of dummy clock cycles before the read phase
	Dummy int

	// Lines is the number of data lines used by every phase (1, 2 or 4)
	Lines int
}

// Config holds a bus configuration. Configurations are compared by
// identity: a Bus restarts its Port when a different *Config is acquired.
type Config struct {
	// Name identifies the configuration in logs (optional)
	Name string

	// ClockHz is the bus clock frequency in Hz (0 selects the port default)
	ClockHz uint64

	// Mode is the transport variant the port is started in
	Mode Mode
}

// Port is a physical bus driver. Implementations exist for simple serial
// links (see SerialExchange) and for wide, command-structured controllers.
type Port interface {
	// Start configures and enables the port.
	Start(cfg *Config) error

	// Stop disables the port.
	Stop() error

	// Exchange runs one transaction: the frame header, then either tx is
	// written or rx is filled. At most one of tx and rx is non-empty.
	Exchange(f *Frame, tx, rx []byte) error

	// Supports reports whether the port can run the given mode.
	Supports(m Mode) bool
}

// Mapper is implemented by wide ports able to map the flash into the host
// address space (execute-in-place). The returned slice stays valid until
// UnmapFlash is called.
type Mapper interface {
	MapFlash(f *Frame) ([]byte, error)
	UnmapFlash() error
}

// Conn is a full-duplex serial link asserting chip select for the duration
// of each Tx call. periph.io spi.Conn satisfies it.
type Conn interface {
	Tx(w, r []byte) error
}

// SFDPReader reads from the serial flash discoverable parameter space.
type SFDPReader interface {
	ReadSFDP(offset uint32, buf []byte) error
}
