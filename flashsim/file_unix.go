//go:build unix

package flashsim

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// OpenFile creates a simulated device whose storage is a shared memory
// mapping of path, so programmed data persists across runs. The file is
// created, or resized and erased when its size does not match the
// capacity. Close unmaps it.
func OpenFile(path string, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	size := int64(1) << o.Capacity

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open backing file: %w", err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat backing file: %w", err)
	}
	fresh := st.Size() != size
	if fresh {
		if err := f.Truncate(size); err != nil {
			return nil, fmt.Errorf("resize backing file: %w", err)
		}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap backing file: %w", err)
	}
	if fresh {
		fill(mem, 0xFF)
	}

	return newDevice(o, mem, func() error {
		if err := unix.Msync(mem, unix.MS_SYNC); err != nil {
			unix.Munmap(mem)
			return err
		}
		return unix.Munmap(mem)
	}), nil
}
