package jesd216

import (
	"encoding/binary"
	"errors"
	"testing"
)

// buildSFDP returns an SFDP image with a basic parameter table of 9 dwords
// at 0x30 holding the given first two dwords.
func buildSFDP(dw0, dw1 uint32) SFDPBuffer {
	b := make([]byte, 0x30+9*4)
	copy(b[0:4], "SFDP")
	b[4] = 0x06 // minor
	b[5] = 0x01 // major
	b[6] = 0x00 // one parameter header
	b[7] = 0xFF

	ph := b[8:16]
	ph[0] = 0x00 // id LSB
	ph[1] = 0x06
	ph[2] = 0x01
	ph[3] = 9    // dwords
	ph[4] = 0x30 // pointer
	ph[5] = 0x00
	ph[6] = 0x00
	ph[7] = 0xFF // id MSB

	binary.LittleEndian.PutUint32(b[0x30:], dw0)
	binary.LittleEndian.PutUint32(b[0x34:], dw1)
	return SFDPBuffer(b)
}

func TestParseSFDP(t *testing.T) {
	// 128 Mbit = 16 MiB, density stored as bits-1
	buf := buildSFDP(0x000020E5, 128*1024*1024-1)

	s, err := ParseSFDP(buf)
	if err != nil {
		t.Fatalf("ParseSFDP() error = %v", err)
	}

	if s.MajorRev != 1 || s.MinorRev != 6 {
		t.Errorf("revision = %d.%d, want 1.6", s.MajorRev, s.MinorRev)
	}
	if len(s.Parameters) != 1 {
		t.Fatalf("parameters = %d, want 1", len(s.Parameters))
	}
	if s.Parameters[0].ID != SFDPBasicTableID {
		t.Errorf("ID = 0x%04X, want 0x%04X", s.Parameters[0].ID, SFDPBasicTableID)
	}
	if len(s.Parameters[0].Table) != 9 {
		t.Errorf("table dwords = %d, want 9", len(s.Parameters[0].Table))
	}

	size, err := s.Density()
	if err != nil {
		t.Fatalf("Density() error = %v", err)
	}
	if size != 16*1024*1024 {
		t.Errorf("Density() = %d, want %d", size, 16*1024*1024)
	}

	op, err := s.Erase4KOpcode()
	if err != nil {
		t.Fatalf("Erase4KOpcode() error = %v", err)
	}
	if op != 0x20 {
		t.Errorf("Erase4KOpcode() = 0x%02X, want 0x20", op)
	}
}

func TestParseSFDPLargeDensity(t *testing.T) {
	// bit 31 set: 2^33 bits = 1 GiB
	buf := buildSFDP(0x0000FFE5, 0x80000000|33)

	s, err := ParseSFDP(buf)
	if err != nil {
		t.Fatalf("ParseSFDP() error = %v", err)
	}

	size, err := s.Density()
	if err != nil {
		t.Fatalf("Density() error = %v", err)
	}
	if size != 1<<30 {
		t.Errorf("Density() = %d, want %d", size, 1<<30)
	}

	if _, err := s.Erase4KOpcode(); err == nil {
		t.Error("Erase4KOpcode() expected error for 0xFF opcode")
	}
}

func TestParseSFDPNoSignature(t *testing.T) {
	buf := SFDPBuffer(make([]byte, 16))

	if _, err := ParseSFDP(buf); !errors.Is(err, ErrNoSFDP) {
		t.Errorf("error = %v, want ErrNoSFDP", err)
	}
}

func TestSFDPDwordMissingTable(t *testing.T) {
	s, err := ParseSFDP(buildSFDP(0, 0))
	if err != nil {
		t.Fatalf("ParseSFDP() error = %v", err)
	}

	if _, err := s.Dword(0xFF84, 0); err == nil {
		t.Error("expected error for missing table")
	}
	if _, err := s.Dword(SFDPBasicTableID, 9); err == nil {
		t.Error("expected error for out of range dword")
	}
}

func TestSFDPBufferReadsPastEnd(t *testing.T) {
	buf := SFDPBuffer{0x01, 0x02}
	out := make([]byte, 4)

	if err := buf.ReadSFDP(1, out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []byte{0x02, 0xFF, 0xFF, 0xFF}
	for i := range want {
		if out[i] != want[i] {
			t.Errorf("out[%d] = 0x%02X, want 0x%02X", i, out[i], want[i])
		}
	}
}
