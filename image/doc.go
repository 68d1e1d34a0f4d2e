// Package image loads firmware images to be written to flash.
//
// # Formats
//
// Intel HEX files are parsed record by record:
//
//	:[Length(2)][Address(4)][Type(2)][Data(2*Length)][Checksum(2)]
//
// Example record:
//
//	:0400000001020304F2
//	  04 = Data length
//	  0000 = Address (big-endian)
//	  00 = Record type (data)
//	  01020304 = Data
//	  F2 = Checksum
//
// Extended segment (02) and extended linear (04) records set the upper
// address bits of the following data records. Start address records (03,
// 05) set Image.Entry.
//
// Raw binary files become one segment at a caller supplied base offset.
//
// # Usage
//
//	img, err := image.Load("firmware.hex", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	for _, seg := range img.Segments {
//	    fmt.Printf("0x%08X: %d bytes\n", seg.Offset, len(seg.Data))
//	}
//
// # Error Handling
//
// Parse errors carry the line number and what failed:
//   - Missing ':' start code or invalid hex encoding
//   - Length and checksum mismatches
//   - Unknown record types
//   - Overlapping data
//   - Missing end of file record
package image
