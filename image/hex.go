package image

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Intel HEX record types.
const (
	RecordData                = 0x00
	RecordEOF                 = 0x01
	RecordExtendedSegmentAddr = 0x02
	RecordStartSegmentAddr    = 0x03
	RecordExtendedLinearAddr  = 0x04
	RecordStartLinearAddr     = 0x05
)

const (
	// recordOverhead is length + address(2) + type + checksum
	recordOverhead      = 5
	minimumRecordLength = 1 + 2*recordOverhead
)

// ParseHexFile parses an Intel HEX file from the given path.
//
// Example:
//
//	img, err := image.ParseHexFile("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes in %d segments\n", img.Size(), len(img.Segments))
func ParseHexFile(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ParseHex(f)
}

// ParseHex parses Intel HEX records from any io.Reader. Record checksums
// are verified and contiguous data is merged into segments. The input must
// end with an end of file record.
func ParseHex(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)
	img := &Image{}

	var base uint32
	lineNum := 0
	eof := false
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines
		if line == "" {
			continue
		}
		if eof {
			return nil, fmt.Errorf("line %d: data after end of file record", lineNum)
		}

		rec, err := parseRecord(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}

		switch rec.typ {
		case RecordData:
			offset := uint64(base) + uint64(rec.addr)
			if offset+uint64(len(rec.data)) > 1<<32 {
				return nil, fmt.Errorf("line %d: data exceeds 32-bit address space", lineNum)
			}
			img.add(uint32(offset), rec.data)
		case RecordEOF:
			eof = true
		case RecordExtendedSegmentAddr:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended segment address needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case RecordExtendedLinearAddr:
			if len(rec.data) != 2 {
				return nil, fmt.Errorf("line %d: extended linear address needs 2 bytes", lineNum)
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		case RecordStartSegmentAddr, RecordStartLinearAddr:
			if len(rec.data) != 4 {
				return nil, fmt.Errorf("line %d: start address needs 4 bytes", lineNum)
			}
			img.Entry = uint32(rec.data[0])<<24 | uint32(rec.data[1])<<16 |
				uint32(rec.data[2])<<8 | uint32(rec.data[3])
			img.HasEntry = true
		default:
			return nil, fmt.Errorf("line %d: unknown record type 0x%02X", lineNum, rec.typ)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if !eof {
		return nil, fmt.Errorf("missing end of file record")
	}
	if len(img.Segments) == 0 {
		return nil, fmt.Errorf("no data records found")
	}
	if err := img.normalize(); err != nil {
		return nil, err
	}
	return img, nil
}

type record struct {
	typ  byte
	addr uint16
	data []byte
}

// parseRecord parses a single record.
//
// Record format:
//
//	:[Length(2)][Address(4)][Type(2)][Data(2*Length)][Checksum(2)]
//
// The address is big-endian. The checksum is the two's complement of the
// sum of all preceding bytes.
func parseRecord(line string) (*record, error) {
	if line[0] != ':' {
		return nil, fmt.Errorf("record does not start with ':'")
	}
	if len(line) < minimumRecordLength {
		return nil, fmt.Errorf("record too short: got %d characters, minimum is %d", len(line), minimumRecordLength)
	}

	raw, err := hex.DecodeString(line[1:])
	if err != nil {
		return nil, fmt.Errorf("invalid hex data: %w", err)
	}

	n := int(raw[0])
	if len(raw) != n+recordOverhead {
		return nil, fmt.Errorf("data length mismatch: got %d bytes, expected %d", len(raw), n+recordOverhead)
	}

	if sum := checksum(raw[:len(raw)-1]); sum != raw[len(raw)-1] {
		return nil, fmt.Errorf("checksum mismatch: got 0x%02X, expected 0x%02X", raw[len(raw)-1], sum)
	}

	return &record{
		typ:  raw[3],
		addr: uint16(raw[1])<<8 | uint16(raw[2]),
		data: raw[4 : 4+n],
	}, nil
}

// checksum computes the two's complement of the byte sum.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return ^sum + 1
}
