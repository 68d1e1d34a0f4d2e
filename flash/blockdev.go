package flash

import (
	"context"
	"fmt"
)

// BlockDevice exposes a Device as fixed-size erase blocks, the shape
// expected by flash filesystems. One block is one device sector.
type BlockDevice struct {
	dev Device
	ctx context.Context
}

// NewBlockDevice wraps dev. Erases block until complete or ctx is done.
func NewBlockDevice(ctx context.Context, dev Device) *BlockDevice {
	if dev == nil {
		panic("device cannot be nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return &BlockDevice{dev: dev, ctx: ctx}
}

// BlockSize returns the erase block size in bytes.
func (b *BlockDevice) BlockSize() uint32 {
	return b.dev.Descriptor().SectorSize
}

// BlockCount returns the number of erase blocks.
func (b *BlockDevice) BlockCount() uint32 {
	return b.dev.Descriptor().SectorsCount
}

func (b *BlockDevice) offset(block, off uint32, n int) (uint32, error) {
	desc := b.dev.Descriptor()
	if block >= desc.SectorsCount {
		return 0, fmt.Errorf("block %d out of range (count %d)", block, desc.SectorsCount)
	}
	if uint64(off)+uint64(n) > uint64(desc.SectorSize) {
		return 0, fmt.Errorf("access [%d, %d) exceeds block size %d", off, uint64(off)+uint64(n), desc.SectorSize)
	}
	return desc.SectorOffset(block) + off, nil
}

// ReadBlock reads len(buf) bytes at off within block.
func (b *BlockDevice) ReadBlock(block, off uint32, buf []byte) error {
	addr, err := b.offset(block, off, len(buf))
	if err != nil {
		return err
	}
	return b.dev.Read(addr, buf)
}

// ProgramBlock programs buf at off within block.
func (b *BlockDevice) ProgramBlock(block, off uint32, buf []byte) error {
	addr, err := b.offset(block, off, len(buf))
	if err != nil {
		return err
	}
	return b.dev.Program(addr, buf)
}

// EraseBlock erases block and waits for completion.
func (b *BlockDevice) EraseBlock(block uint32) error {
	if _, err := b.offset(block, 0, 0); err != nil {
		return err
	}
	return EraseSector(b.ctx, b.dev, block)
}

// Sync is a no-op. Program and erase complete before returning.
func (b *BlockDevice) Sync() error {
	return nil
}
