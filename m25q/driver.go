package m25q

import (
	"errors"
	"fmt"
	"time"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/jesd216"
)

// Config is the start configuration of a Driver.
type Config struct {
	// Bus is the shared bus the device is attached to
	Bus *jesd216.Bus

	// BusConfig is acquired around every operation. When nil the driver
	// uses a configuration in its own bus mode.
	BusConfig *jesd216.Config
}

// Driver drives one M25Q device. It implements flash.Device.
//
// A Driver is not safe for concurrent use: callers must not run two
// operations on the same driver at once. Several drivers may share one Bus.
type Driver struct {
	opts  Options
	state flash.State

	bus    *jesd216.Bus
	busCfg *jesd216.Config

	// Device protocol state recorded by deviceInit.
	lines  int
	addr32 bool
	id     Identity
	desc   flash.Descriptor
	sfdp   *jesd216.SFDP
	mapped bool
}

var _ flash.Device = (*Driver)(nil)

// New creates a stopped driver.
//
// Example:
//
//	bus := jesd216.NewBus(port)
//	drv := m25q.New(m25q.WithBusMode(jesd216.ModeWide4L))
//	if err := drv.Start(&m25q.Config{Bus: bus}); err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Stop()
func New(opts ...Option) *Driver {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Driver{opts: o, state: flash.StateStop, lines: 1}
}

// State returns the driver state.
func (d *Driver) State() flash.State {
	return d.state
}

// Start resets and identifies the device, switches it to the configured
// protocol and computes the descriptor. Starting a started driver is a
// no-op. On error the driver stays stopped.
func (d *Driver) Start(cfg *Config) error {
	if cfg == nil || cfg.Bus == nil {
		panic("config and bus cannot be nil")
	}
	d.assertState("start", flash.StateStop, flash.StateReady)
	if d.state == flash.StateReady {
		return nil
	}

	busCfg := cfg.BusConfig
	if busCfg == nil {
		busCfg = &jesd216.Config{Name: "m25q", Mode: d.opts.BusMode}
	}
	if busCfg.Mode.Wide() != d.opts.BusMode.Wide() {
		panic(fmt.Sprintf("bus mode %s cannot drive protocol %s", busCfg.Mode, d.opts.BusMode))
	}

	d.bus = cfg.Bus
	d.busCfg = busCfg
	d.sfdp = nil

	if err := d.bus.Acquire(busCfg); err != nil {
		d.bus, d.busCfg = nil, nil
		return fmt.Errorf("start: %w", err)
	}
	err := d.deviceInit()
	d.bus.Release()
	if err != nil {
		d.logError("start failed", "error", err)
		d.bus, d.busCfg = nil, nil
		return fmt.Errorf("start: %w", err)
	}

	d.state = flash.StateReady
	d.logInfo("started",
		"id", d.id.String(),
		"mode", d.opts.BusMode.String(),
		"sectors", d.desc.SectorsCount,
		"sector_size", d.desc.SectorSize,
	)
	return nil
}

// Stop stops the bus and the driver. Stopping a stopped driver is a no-op.
func (d *Driver) Stop() error {
	d.assertState("stop", flash.StateStop, flash.StateReady)
	if d.state == flash.StateStop {
		return nil
	}
	if d.mapped {
		panic("stop while memory mapped")
	}

	if err := d.bus.Acquire(d.busCfg); err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	err := d.bus.Stop()
	d.bus.Release()

	d.bus, d.busCfg = nil, nil
	d.state = flash.StateStop
	d.logInfo("stopped")
	if err != nil {
		return fmt.Errorf("stop: %w", err)
	}
	return nil
}

// Descriptor returns the device geometry. The driver must be started.
func (d *Driver) Descriptor() *flash.Descriptor {
	if d.state == flash.StateUninit || d.state == flash.StateStop {
		panic(fmt.Sprintf("descriptor: invalid state %s", d.state))
	}
	return &d.desc
}

// Identity returns the identification read at start.
func (d *Driver) Identity() Identity {
	return d.id
}

// Read reads len(buf) bytes at offset.
func (d *Driver) Read(offset uint32, buf []byte) error {
	d.assertState("read", flash.StateReady, flash.StateErase)
	d.assertUnmapped("read")
	d.assertRange(offset, len(buf))
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateRead
	err := d.deviceRead(offset, buf)
	d.state = flash.StateReady
	return err
}

// Program writes buf at offset, one page program command per page touched.
// It blocks until the last page completes.
func (d *Driver) Program(offset uint32, buf []byte) error {
	d.assertState("program", flash.StateReady, flash.StateErase)
	d.assertUnmapped("program")
	d.assertRange(offset, len(buf))
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateProgram
	err := d.deviceProgram(offset, buf)
	d.state = flash.StateReady
	if err != nil {
		d.logError("program failed", "offset", fmt.Sprintf("0x%08X", offset), "error", err)
	}
	return err
}

// StartEraseAll starts a bulk erase. The driver stays in the erase state
// until QueryErase observes completion.
func (d *Driver) StartEraseAll() error {
	d.assertState("erase all", flash.StateReady, flash.StateErase)
	d.assertUnmapped("erase all")
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateErase
	if err := d.deviceStartEraseAll(); err != nil {
		d.state = flash.StateReady
		return err
	}
	d.logDebug("bulk erase started")
	return nil
}

// StartEraseSector starts erasing one sector. The driver stays in the
// erase state until QueryErase observes completion.
func (d *Driver) StartEraseSector(sector uint32) error {
	d.assertState("erase sector", flash.StateReady, flash.StateErase)
	d.assertUnmapped("erase sector")
	d.assertSector(sector)
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateErase
	if err := d.deviceStartEraseSector(sector); err != nil {
		d.state = flash.StateReady
		return err
	}
	d.logDebug("sector erase started", "sector", sector)
	return nil
}

// QueryErase polls an outstanding erase. While the erase runs it returns
// flash.ErrBusyErasing and the suggested delay before the next poll. When no
// erase is outstanding it returns nil.
func (d *Driver) QueryErase() (time.Duration, error) {
	d.assertState("query erase", flash.StateReady, flash.StateErase)
	d.assertUnmapped("query erase")
	if d.state == flash.StateReady {
		return 0, nil
	}

	if err := d.acquire(); err != nil {
		return 0, err
	}
	defer d.bus.Release()

	delay, err := d.deviceQueryErase()
	var devErr *flash.DeviceError
	switch {
	case err == nil:
		d.state = flash.StateReady
		d.logDebug("erase complete")
	case errors.As(err, &devErr):
		d.state = flash.StateReady
		d.logError("erase failed", "status", fmt.Sprintf("0x%02X", devErr.Status))
	}
	return delay, err
}

// VerifyErase checks every byte of sector reads as erased, in
// compare-buffer sized chunks from the lowest offset up. It stops at the
// first byte that is not erased.
func (d *Driver) VerifyErase(sector uint32) error {
	d.assertState("verify erase", flash.StateReady, flash.StateErase)
	d.assertUnmapped("verify erase")
	d.assertSector(sector)
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateRead
	err := d.deviceVerifyErase(sector)
	d.state = flash.StateReady
	return err
}

// ReadSFDP reads from the discoverable parameter space. *Driver satisfies
// jesd216.SFDPReader.
func (d *Driver) ReadSFDP(offset uint32, buf []byte) error {
	d.assertState("read sfdp", flash.StateReady, flash.StateErase)
	d.assertUnmapped("read sfdp")
	if d.state == flash.StateErase {
		return flash.ErrBusyErasing
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	d.state = flash.StateRead
	err := d.deviceReadSFDP(offset, buf)
	d.state = flash.StateReady
	return err
}

// SFDP reads and decodes the discoverable parameters. The result is cached
// until the next Start.
func (d *Driver) SFDP() (*jesd216.SFDP, error) {
	if d.sfdp != nil {
		return d.sfdp, nil
	}
	s, err := jesd216.ParseSFDP(d)
	if err != nil {
		return nil, err
	}
	d.sfdp = s
	return s, nil
}

// MemoryMap enables execute-in-place and maps the device into the host
// address space. The mapping is also published in Descriptor().Address.
// Only wide buses with a mapping-capable port support it.
func (d *Driver) MemoryMap() ([]byte, error) {
	d.assertState("memory map", flash.StateReady)
	if !d.opts.BusMode.Wide() {
		return nil, fmt.Errorf("memory map: %w", jesd216.ErrNotSupported)
	}
	if d.mapped {
		return d.desc.Address, nil
	}

	if err := d.acquire(); err != nil {
		return nil, err
	}
	defer d.bus.Release()

	mem, err := d.deviceMap()
	if err != nil {
		return nil, fmt.Errorf("memory map: %w", err)
	}
	d.mapped = true
	d.desc.Address = mem
	d.logDebug("memory mapped", "size", len(mem))
	return mem, nil
}

// MemoryUnmap leaves execute-in-place mode. Unmapping an unmapped device is
// a no-op.
func (d *Driver) MemoryUnmap() error {
	d.assertState("memory unmap", flash.StateReady)
	if !d.mapped {
		return nil
	}

	if err := d.acquire(); err != nil {
		return err
	}
	defer d.bus.Release()

	if err := d.deviceUnmap(); err != nil {
		return fmt.Errorf("memory unmap: %w", err)
	}
	d.mapped = false
	d.desc.Address = nil
	return nil
}

// acquire gains the bus and restores the device line count on it.
func (d *Driver) acquire() error {
	if err := d.bus.Acquire(d.busCfg); err != nil {
		return err
	}
	d.bus.SetLines(d.lines)
	return nil
}

// assertState panics unless the driver is in one of the allowed states.
func (d *Driver) assertState(op string, allowed ...flash.State) {
	for _, s := range allowed {
		if d.state == s {
			return
		}
	}
	panic(fmt.Sprintf("%s: invalid state %s", op, d.state))
}

// assertUnmapped panics while the device is in execute-in-place mode, where
// it does not decode commands.
func (d *Driver) assertUnmapped(op string) {
	if d.mapped {
		panic(fmt.Sprintf("%s: device is memory mapped", op))
	}
}

func (d *Driver) assertRange(offset uint32, n int) {
	if uint64(offset)+uint64(n) > d.desc.Size() {
		panic(fmt.Sprintf("access [0x%08X, +%d) outside device of %d bytes", offset, n, d.desc.Size()))
	}
}

func (d *Driver) assertSector(sector uint32) {
	if sector >= d.desc.SectorsCount {
		panic(fmt.Sprintf("sector %d out of range (count %d)", sector, d.desc.SectorsCount))
	}
}

// logDebug logs a debug message if a logger is configured.
func (d *Driver) logDebug(msg string, keysAndValues ...interface{}) {
	if d.opts.Logger != nil {
		d.opts.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (d *Driver) logInfo(msg string, keysAndValues ...interface{}) {
	if d.opts.Logger != nil {
		d.opts.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (d *Driver) logError(msg string, keysAndValues ...interface{}) {
	if d.opts.Logger != nil {
		d.opts.Logger.Error(msg, keysAndValues...)
	}
}
