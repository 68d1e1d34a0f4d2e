package jesd216

// Mode selects one of the transport variants a command layer can run on.
type Mode uint8

// Transport variants.
const (
	// ModeSPI is a simple serial link: one data line, chip select per transfer
	ModeSPI Mode = iota

	// ModeWide1L is a command-structured (QSPI-style) controller using one line
	ModeWide1L

	// ModeWide2L is a command-structured controller using two lines
	ModeWide2L

	// ModeWide4L is a command-structured controller using four lines
	ModeWide4L
)

// Lines returns the number of data lines used by the mode.
func (m Mode) Lines() int {
	switch m {
	case ModeWide2L:
		return 2
	case ModeWide4L:
		return 4
	default:
		return 1
	}
}

// Wide reports whether the mode runs on a command-structured controller.
func (m Mode) Wide() bool {
	return m != ModeSPI
}

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeSPI:
		return "spi"
	case ModeWide1L:
		return "wide-1l"
	case ModeWide2L:
		return "wide-2l"
	case ModeWide4L:
		return "wide-4l"
	default:
		return "unknown"
	}
}

// Opcode is a command opcode as passed to the Cmd* primitives. The low byte
// is sent on the wire; the remaining bits carry transport flags.
type Opcode uint32

// AddrMode32 requests a 4-byte address phase instead of the default 3 bytes.
const AddrMode32 Opcode = 1 << 31

// Code returns the wire opcode.
func (o Opcode) Code() byte {
	return byte(o)
}

// addrLen returns the address phase length in bytes.
func (o Opcode) addrLen() int {
	if o&AddrMode32 != 0 {
		return 4
	}
	return 3
}

// Address phase lengths.
const (
	AddrLen24 = 3
	AddrLen32 = 4
)

// SFDP layout constants (JESD216).
const (
	// SFDPSignature is "SFDP" read as a little-endian dword
	SFDPSignature = 0x50444653

	// SFDPHeaderSize is the size of the SFDP header in bytes
	SFDPHeaderSize = 8

	// SFDPParamHeaderSize is the size of one parameter header in bytes
	SFDPParamHeaderSize = 8

	// SFDPBasicTableID is the parameter id of the basic flash parameter table
	SFDPBasicTableID = 0xFF00

	// SFDPDummyCycles is the number of dummy cycles after a read-SFDP address
	SFDPDummyCycles = 8

	// sfdpEraseDword is the basic table dword holding the 4 KiB erase opcode
	sfdpEraseDword = 0

	// sfdpDensityDword is the basic table dword holding the flash density
	sfdpDensityDword = 1
)
