package jesd216

import (
	"encoding/binary"
	"fmt"
)

// SFDP is a parsed serial flash discoverable parameter space.
type SFDP struct {
	// MinorRev and MajorRev are the SFDP revision
	MinorRev uint8
	MajorRev uint8

	// Parameters holds every parameter table advertised by the header
	Parameters []SFDPParameter
}

// SFDPParameter is one parameter header plus its table.
type SFDPParameter struct {
	// ID is IdMSB:IdLSB (0xFF00 for the basic flash parameter table)
	ID uint16

	// MinorRev and MajorRev are the table revision
	MinorRev uint8
	MajorRev uint8

	// Pointer is the table location in the SFDP space
	Pointer uint32

	// Table holds the little-endian dwords of the table
	Table []uint32
}

// ParseSFDP reads the SFDP header, the parameter headers and their tables.
//
// Header layout:
//
//	[SIG(4)="SFDP"][MINOR][MAJOR][NPH(count-1)][ACCESS]
//
// Parameter header layout:
//
//	[ID_LSB][MINOR][MAJOR][LEN(dwords)][PTR(3, LE)][ID_MSB]
func ParseSFDP(r SFDPReader) (*SFDP, error) {
	hdr := make([]byte, SFDPHeaderSize)
	if err := r.ReadSFDP(0, hdr); err != nil {
		return nil, fmt.Errorf("read SFDP header: %w", err)
	}
	if binary.LittleEndian.Uint32(hdr[0:4]) != SFDPSignature {
		return nil, ErrNoSFDP
	}

	count := int(hdr[6]) + 1
	s := &SFDP{
		MinorRev:   hdr[4],
		MajorRev:   hdr[5],
		Parameters: make([]SFDPParameter, count),
	}

	phs := make([]byte, count*SFDPParamHeaderSize)
	if err := r.ReadSFDP(SFDPHeaderSize, phs); err != nil {
		return nil, fmt.Errorf("read SFDP parameter headers: %w", err)
	}

	for i := range s.Parameters {
		ph := phs[i*SFDPParamHeaderSize : (i+1)*SFDPParamHeaderSize]
		p := &s.Parameters[i]
		p.ID = uint16(ph[7])<<8 | uint16(ph[0])
		p.MinorRev = ph[1]
		p.MajorRev = ph[2]
		p.Pointer = uint32(ph[4]) | uint32(ph[5])<<8 | uint32(ph[6])<<16

		raw := make([]byte, int(ph[3])*4)
		if err := r.ReadSFDP(p.Pointer, raw); err != nil {
			return nil, fmt.Errorf("read SFDP table 0x%04X: %w", p.ID, err)
		}
		p.Table = make([]uint32, len(raw)/4)
		for j := range p.Table {
			p.Table[j] = binary.LittleEndian.Uint32(raw[j*4:])
		}
	}

	return s, nil
}

// Dword returns dword n of the table with the given id.
func (s *SFDP) Dword(id uint16, n int) (uint32, error) {
	for _, p := range s.Parameters {
		if p.ID != id {
			continue
		}
		if n < 0 || n >= len(p.Table) {
			return 0, fmt.Errorf("SFDP table 0x%04X has no dword %d", id, n)
		}
		return p.Table[n], nil
	}
	return 0, fmt.Errorf("SFDP table 0x%04X not present", id)
}

// Density returns the flash size in bytes from the basic parameter table.
func (s *SFDP) Density() (uint64, error) {
	d, err := s.Dword(SFDPBasicTableID, sfdpDensityDword)
	if err != nil {
		return 0, err
	}
	if d&0x80000000 != 0 {
		// bits 30:0 hold N for a 2^N bit device
		return (uint64(1) << (d & 0x7FFFFFFF)) / 8, nil
	}
	return (uint64(d) + 1) / 8, nil
}

// Erase4KOpcode returns the 4 KiB erase opcode from the basic parameter table.
func (s *SFDP) Erase4KOpcode() (byte, error) {
	d, err := s.Dword(SFDPBasicTableID, sfdpEraseDword)
	if err != nil {
		return 0xFF, err
	}
	op := byte(d >> 8)
	if op == 0xFF {
		return 0xFF, fmt.Errorf("4 KiB erase not supported")
	}
	return op, nil
}

// SFDPBuffer holds a raw SFDP image. It implements SFDPReader and is handy
// for simulators and tests.
type SFDPBuffer []byte

// ReadSFDP implements SFDPReader. Reads past the end return 0xFF.
func (b SFDPBuffer) ReadSFDP(offset uint32, buf []byte) error {
	for i := range buf {
		o := int(offset) + i
		if o < len(b) {
			buf[i] = b[o]
		} else {
			buf[i] = 0xFF
		}
	}
	return nil
}
