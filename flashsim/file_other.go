//go:build !unix

package flashsim

import (
	"fmt"
	"os"
)

// OpenFile creates a simulated device backed by path. The file is read at
// open and written back by Close.
func OpenFile(path string, opts ...Option) (*Device, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	size := 1 << o.Capacity

	mem, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read backing file: %w", err)
	}
	if len(mem) != size {
		mem = make([]byte, size)
		fill(mem, 0xFF)
	}

	return newDevice(o, mem, func() error {
		return os.WriteFile(path, mem, 0o644)
	}), nil
}
