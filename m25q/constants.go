package m25q

import (
	"time"

	"github.com/moffa90/go-snor/jesd216"
)

// Command opcodes for the Micron M25Q/N25Q family.
const (
	CmdResetEnable            jesd216.Opcode = 0x66
	CmdResetMemory            jesd216.Opcode = 0x99
	CmdReadID                 jesd216.Opcode = 0x9F
	CmdMultipleIOReadID       jesd216.Opcode = 0xAF
	CmdReadSFDP               jesd216.Opcode = 0x5A
	CmdRead                   jesd216.Opcode = 0x03
	CmdFastRead               jesd216.Opcode = 0x0B
	CmdWriteEnable            jesd216.Opcode = 0x06
	CmdWriteDisable           jesd216.Opcode = 0x04
	CmdReadStatusRegister     jesd216.Opcode = 0x05
	CmdReadFlagStatusRegister jesd216.Opcode = 0x70
	CmdClearFlagStatusReg     jesd216.Opcode = 0x50
	CmdWriteVCR               jesd216.Opcode = 0x81
	CmdReadVCR                jesd216.Opcode = 0x85
	CmdWriteEVCR              jesd216.Opcode = 0x61
	CmdReadEVCR               jesd216.Opcode = 0x65
	CmdEnter4ByteAddress      jesd216.Opcode = 0xB7
	CmdPageProgram            jesd216.Opcode = 0x02
	CmdSubsectorErase         jesd216.Opcode = 0x20
	CmdSectorErase            jesd216.Opcode = 0xD8
	CmdBulkErase              jesd216.Opcode = 0xC7
)

// Flag status register bits.
const (
	FlagProgramEraseReady = 0x80
	FlagEraseSuspend      = 0x40
	FlagEraseError        = 0x20
	FlagProgramError      = 0x10
	FlagVppError          = 0x08
	FlagProgramSuspend    = 0x04
	FlagProtectionError   = 0x02
	FlagAddressing        = 0x01

	// FlagAllErrors is the mask of every error bit.
	FlagAllErrors = FlagEraseError | FlagProgramError | FlagVppError | FlagProtectionError
)

// Enhanced volatile configuration register values selecting the protocol.
const (
	EVCRSingle = 0xCF
	EVCRDual   = 0x8F
	EVCRQuad   = 0x4F
)

// Volatile configuration register: dummy cycles in bits 7:4, bit 3 clear
// enables XIP.
const (
	vcrXIPDisabled = 0x0F
	vcrXIPEnabled  = 0x07
)

// Geometry.
const (
	PageSize      = 256
	PageMask      = PageSize - 1
	SectorSize    = 0x10000
	SubsectorSize = 0x1000

	// IdentitySize is the number of identification bytes read at start.
	IdentitySize = 20

	// Largest capacity addressable with 24-bit addresses.
	maxAddr24 = 1 << 24
)

// Defaults.
const (
	DefaultReadDummyCycles   = 8
	DefaultCompareBufferSize = 32

	// QueryEraseDelay is the retry delay suggested while an erase runs.
	QueryEraseDelay = time.Millisecond
)

// Default identification whitelists.
var (
	DefaultManufacturers = []byte{0x20}
	DefaultMemoryTypes   = []byte{0xBA, 0xBB}
)

// evcrFor returns the enhanced volatile configuration value selecting the
// protocol with the given line count.
func evcrFor(lines int) byte {
	switch lines {
	case 2:
		return EVCRDual
	case 4:
		return EVCRQuad
	default:
		return EVCRSingle
	}
}
