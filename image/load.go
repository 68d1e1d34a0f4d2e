package image

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/exp/mmap"
)

// LoadBinary reads a raw binary file as a single segment at base.
func LoadBinary(path string, base uint32) (*Image, error) {
	r, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() { _ = r.Close() }()

	if r.Len() == 0 {
		return nil, fmt.Errorf("empty file")
	}
	if uint64(base)+uint64(r.Len()) > 1<<32 {
		return nil, fmt.Errorf("%d bytes at 0x%08X exceed 32-bit address space", r.Len(), base)
	}

	data := make([]byte, r.Len())
	if _, err := r.ReadAt(data, 0); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return &Image{Segments: []*Segment{{Offset: base, Data: data}}}, nil
}

// Load reads a firmware image, choosing the format by extension: .hex,
// .ihex and .ihx are Intel HEX, anything else is raw binary. HEX addresses
// are relocated by base.
//
// Example:
//
//	img, err := image.Load("app.bin", 0x10000)
func Load(path string, base uint32) (*Image, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".hex", ".ihex", ".ihx":
		img, err := ParseHexFile(path)
		if err != nil {
			return nil, err
		}
		if err := img.Relocate(base); err != nil {
			return nil, err
		}
		return img, nil
	default:
		return LoadBinary(path, base)
	}
}
