package jesd216

import (
	"fmt"
	"sync"
)

// Bus is a shared serial flash bus. Device drivers acquire it around every
// operation; the bus restarts its port when a driver brings a configuration
// other than the one last active.
//
// Bus is safe for concurrent use by multiple drivers as long as each one
// brackets its transactions with Acquire and Release.
type Bus struct {
	port Port

	mu      sync.Mutex
	active  *Config
	running bool
	lines   int
}

// NewBus creates a bus driving the given port. The bus starts stopped.
//
// Example:
//
//	bus := jesd216.NewBus(port)
//	cfg := &jesd216.Config{Name: "flash0", ClockHz: 50_000_000, Mode: jesd216.ModeWide4L}
//	if err := bus.Start(cfg); err != nil {
//	    log.Fatal(err)
//	}
func NewBus(port Port) *Bus {
	if port == nil {
		panic("port cannot be nil")
	}
	return &Bus{port: port, lines: 1}
}

// Port returns the underlying port.
func (b *Bus) Port() Port {
	return b.port
}

// Start starts the port with cfg and makes it the active configuration.
// The caller must hold the bus or be its only user.
func (b *Bus) Start(cfg *Config) error {
	if cfg == nil {
		panic("config cannot be nil")
	}
	if !b.port.Supports(cfg.Mode) {
		return fmt.Errorf("start bus: mode %s: %w", cfg.Mode, ErrNotSupported)
	}
	if err := b.port.Start(cfg); err != nil {
		return fmt.Errorf("start bus: %w", err)
	}
	b.active = cfg
	b.running = true
	return nil
}

// Stop stops the port. Stopping a stopped bus is a no-op.
func (b *Bus) Stop() error {
	if !b.running {
		return nil
	}
	b.running = false
	b.active = nil
	if err := b.port.Stop(); err != nil {
		return fmt.Errorf("stop bus: %w", err)
	}
	return nil
}

// Acquire gains exclusive use of the bus. When cfg is non-nil and differs
// from the active configuration the port is restarted with cfg before
// Acquire returns. On error the bus is released.
func (b *Bus) Acquire(cfg *Config) error {
	b.mu.Lock()
	if cfg == nil || cfg == b.active {
		return nil
	}
	if b.running {
		if err := b.port.Stop(); err != nil {
			b.mu.Unlock()
			return fmt.Errorf("acquire bus: %w", err)
		}
		b.running = false
	}
	if err := b.Start(cfg); err != nil {
		b.mu.Unlock()
		return fmt.Errorf("acquire bus: %w", err)
	}
	return nil
}

// Release gives up exclusive use of the bus.
func (b *Bus) Release() {
	b.mu.Unlock()
}

// Active returns the configuration the port was last started with, or nil
// when the bus is stopped.
func (b *Bus) Active() *Config {
	return b.active
}

// Running reports whether the port is started.
func (b *Bus) Running() bool {
	return b.running
}

// SetLines selects the number of data lines used by subsequent Cmd* frames.
func (b *Bus) SetLines(n int) {
	if n != 1 && n != 2 && n != 4 {
		panic(fmt.Sprintf("invalid line count %d", n))
	}
	b.lines = n
}

// Lines returns the number of data lines used by Cmd* frames.
func (b *Bus) Lines() int {
	return b.lines
}

// Exchange runs a raw frame on the port.
func (b *Bus) Exchange(f *Frame, tx, rx []byte) error {
	if !b.running {
		return &TransferError{Opcode: f.Opcode, Err: ErrNotStarted}
	}
	if err := b.port.Exchange(f, tx, rx); err != nil {
		return &TransferError{Opcode: f.Opcode, Err: err}
	}
	return nil
}

// MapFlash maps the flash into the host address space using f as the read
// command template. It fails with ErrNotSupported on ports without Mapper.
func (b *Bus) MapFlash(f *Frame) ([]byte, error) {
	m, ok := b.port.(Mapper)
	if !ok {
		return nil, ErrNotSupported
	}
	if !b.running {
		return nil, ErrNotStarted
	}
	return m.MapFlash(f)
}

// UnmapFlash leaves memory-mapped mode.
func (b *Bus) UnmapFlash() error {
	m, ok := b.port.(Mapper)
	if !ok {
		return ErrNotSupported
	}
	return m.UnmapFlash()
}
