package m25q

import "fmt"

// Identity is the identification read with the READ ID command.
type Identity [IdentitySize]byte

// Manufacturer returns the JEDEC manufacturer ID.
func (id Identity) Manufacturer() byte { return id[0] }

// MemoryType returns the memory type byte.
func (id Identity) MemoryType() byte { return id[1] }

// Capacity returns the capacity code. The device size is 1<<Capacity bytes.
func (id Identity) Capacity() byte { return id[2] }

// Size returns the device size in bytes.
func (id Identity) Size() uint64 { return 1 << id.Capacity() }

func (id Identity) String() string {
	return fmt.Sprintf("%02X %02X %02X", id[0], id[1], id[2])
}
