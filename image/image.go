package image

import (
	"fmt"
	"sort"
)

// Image is firmware laid out as data segments at flash offsets.
type Image struct {
	// Segments are sorted by offset and do not overlap
	Segments []*Segment

	// Entry is the start address from a start address record, if any
	Entry uint32

	// HasEntry reports whether Entry was set by the file
	HasEntry bool
}

// Segment is a contiguous run of data to be programmed at Offset.
type Segment struct {
	// Offset is the flash offset of the first byte
	Offset uint32

	// Data is the segment content
	Data []byte
}

// End returns the offset one past the last byte of the segment.
func (s *Segment) End() uint64 {
	return uint64(s.Offset) + uint64(len(s.Data))
}

// Size returns the total number of data bytes in the image.
func (img *Image) Size() int {
	n := 0
	for _, s := range img.Segments {
		n += len(s.Data)
	}
	return n
}

// Span returns the lowest offset and one past the highest offset covered
// by the image. An empty image spans [0, 0).
func (img *Image) Span() (start uint32, end uint64) {
	if len(img.Segments) == 0 {
		return 0, 0
	}
	return img.Segments[0].Offset, img.Segments[len(img.Segments)-1].End()
}

// Relocate adds base to every segment offset.
func (img *Image) Relocate(base uint32) error {
	for _, s := range img.Segments {
		if uint64(s.Offset)+uint64(base)+uint64(len(s.Data)) > 1<<32 {
			return fmt.Errorf("segment at 0x%08X relocated by 0x%08X exceeds 32-bit address space", s.Offset, base)
		}
		s.Offset += base
	}
	return nil
}

// add appends data at offset, extending the last segment when contiguous.
func (img *Image) add(offset uint32, data []byte) {
	if n := len(img.Segments); n > 0 {
		last := img.Segments[n-1]
		if last.End() == uint64(offset) {
			last.Data = append(last.Data, data...)
			return
		}
	}
	img.Segments = append(img.Segments, &Segment{
		Offset: offset,
		Data:   append([]byte(nil), data...),
	})
}

// normalize sorts segments, merges adjacent ones and rejects overlaps.
func (img *Image) normalize() error {
	sort.SliceStable(img.Segments, func(i, j int) bool {
		return img.Segments[i].Offset < img.Segments[j].Offset
	})

	merged := img.Segments[:0]
	for _, s := range img.Segments {
		if n := len(merged); n > 0 {
			last := merged[n-1]
			switch {
			case last.End() > uint64(s.Offset):
				return fmt.Errorf("segments overlap at 0x%08X", s.Offset)
			case last.End() == uint64(s.Offset):
				last.Data = append(last.Data, s.Data...)
				continue
			}
		}
		merged = append(merged, s)
	}
	img.Segments = merged
	return nil
}
