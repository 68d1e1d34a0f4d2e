package flashsim

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/moffa90/go-snor/jesd216"
)

// Opcodes decoded by the simulator.
const (
	opResetEnable   = 0x66
	opResetMemory   = 0x99
	opReadID        = 0x9F
	opMultiIOReadID = 0xAF
	opReadSFDP      = 0x5A
	opRead          = 0x03
	opFastRead      = 0x0B
	opWriteEnable   = 0x06
	opWriteDisable  = 0x04
	opReadStatus    = 0x05
	opReadFlags     = 0x70
	opClearFlags    = 0x50
	opWriteVCR      = 0x81
	opReadVCR       = 0x85
	opWriteEVCR     = 0x61
	opReadEVCR      = 0x65
	opEnter4Byte    = 0xB7
	opPageProgram   = 0x02
	opSubsectorErs  = 0x20
	opSectorErase   = 0xD8
	opBulkErase     = 0xC7
)

// Flag status bits.
const (
	FlagReady         = 0x80
	FlagEraseError    = 0x20
	FlagProgramError  = 0x10
	FlagProtectError  = 0x02
	FlagAddressing    = 0x01
	flagErrorMask     = 0x3A
	statusWIP         = 0x01
	statusWEL         = 0x02
	pageSize          = 256
	sectorSize        = 0x10000
	subsectorSize     = 0x1000
	resetVCR          = 0xFB
	resetEVCR         = 0xDF
	identityExtLength = 0x10
)

// ErrNotStarted is returned by Exchange before Start.
var ErrNotStarted = errors.New("flashsim: port not started")

// Transaction is one frame seen by the device.
type Transaction struct {
	Opcode  byte
	Addr    uint32
	AddrLen int
	Alt     byte
	AltLen  int
	Dummy   int
	Lines   int
	TxLen   int
	RxLen   int

	// Ignored is set when the device did not decode the frame: wrong line
	// count, busy, execute-in-place or missing write enable.
	Ignored bool
}

// Device is a behavioural model of an M25Q serial NOR flash and the wide
// bus controller it sits on. It implements jesd216.Port and jesd216.Mapper;
// Conn returns a byte-level jesd216.Conn view for serial buses.
//
// Device is safe for concurrent use.
type Device struct {
	mu   sync.Mutex
	opts Options
	mem  []byte
	sfdp []byte

	closeFn func() error

	started bool
	mode    jesd216.Mode

	lines        int
	wel          bool
	resetEnabled bool
	addr4        bool
	busy         int
	flags        byte
	vcr          byte
	evcr         byte
	xip          bool
	mapped       bool

	failProgram bool
	failErase   bool

	log []Transaction
}

var (
	_ jesd216.Port   = (*Device)(nil)
	_ jesd216.Mapper = (*Device)(nil)
)

// New creates a simulated device with erased, in-memory storage.
//
// Example:
//
//	sim := flashsim.New(flashsim.WithCapacity(0x14))
//	bus := jesd216.NewBus(sim)
func New(opts ...Option) *Device {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	mem := make([]byte, 1<<o.Capacity)
	for i := range mem {
		mem[i] = 0xFF
	}
	return newDevice(o, mem, nil)
}

func newDevice(o Options, mem []byte, closeFn func() error) *Device {
	d := &Device{
		opts:    o,
		mem:     mem,
		closeFn: closeFn,
	}
	d.sfdp = buildSFDP(uint64(len(mem)))
	d.powerOn()
	return d
}

// powerOn puts the volatile state in its reset values.
func (d *Device) powerOn() {
	d.lines = 1
	d.wel = false
	d.resetEnabled = false
	d.addr4 = false
	d.busy = 0
	d.flags = FlagReady
	d.vcr = resetVCR
	d.evcr = resetEVCR
	d.xip = false
}

// Close releases the backing storage.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closeFn == nil {
		return nil
	}
	err := d.closeFn()
	d.closeFn = nil
	d.mem = nil
	return err
}

// Start implements jesd216.Port.
func (d *Device) Start(cfg *jesd216.Config) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = true
	d.mode = cfg.Mode
	return nil
}

// Stop implements jesd216.Port.
func (d *Device) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.started = false
	return nil
}

// Supports implements jesd216.Port. The simulated controller runs every
// mode.
func (d *Device) Supports(m jesd216.Mode) bool {
	return m <= jesd216.ModeWide4L
}

// Exchange implements jesd216.Port.
func (d *Device) Exchange(f *jesd216.Frame, tx, rx []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return ErrNotStarted
	}
	d.exec(f, tx, rx)
	return nil
}

// MapFlash implements jesd216.Mapper. It needs XIP enabled in the volatile
// configuration and a fast read template with mode byte 0x00.
func (d *Device) MapFlash(f *jesd216.Frame) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.started {
		return nil, ErrNotStarted
	}
	if d.vcr&0x08 != 0 {
		return nil, errors.New("flashsim: xip disabled in volatile configuration")
	}
	if f.Opcode != opFastRead || f.AltLen != 1 || f.Alt != 0x00 || f.Lines != d.lines {
		return nil, fmt.Errorf("flashsim: invalid xip read template 0x%02X", f.Opcode)
	}
	d.record(f, nil, nil, false)
	d.xip = true
	d.mapped = true
	return d.mem, nil
}

// UnmapFlash implements jesd216.Mapper. The device stays in XIP until it
// sees a fast read with mode byte 0xFF or a reset.
func (d *Device) UnmapFlash() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mapped = false
	return nil
}

// Log returns a copy of the transactions seen so far.
func (d *Device) Log() []Transaction {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Transaction(nil), d.log...)
}

// ResetLog clears the transaction log.
func (d *Device) ResetLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.log = nil
}

// FlagStatus returns the flag status register without side effects.
func (d *Device) FlagStatus() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flagStatus()
}

// Lines returns the protocol width the device currently decodes.
func (d *Device) Lines() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lines
}

// VCR returns the volatile configuration register.
func (d *Device) VCR() byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.vcr
}

// XIP reports whether the device is in execute-in-place mode.
func (d *Device) XIP() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.xip
}

// FourByteAddressing reports whether the device decodes 32-bit addresses.
func (d *Device) FourByteAddressing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.addr4
}

// Memory returns the backing storage. Writes bypass NOR semantics.
func (d *Device) Memory() []byte {
	return d.mem
}

// FailNextProgram makes the next page program report a program error.
func (d *Device) FailNextProgram() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failProgram = true
}

// FailNextErase makes the next erase report an erase error.
func (d *Device) FailNextErase() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failErase = true
}

// SetProtocol forces the protocol width, as a warm reset of the host would
// find a device left in a wide protocol.
func (d *Device) SetProtocol(lines int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lines = lines
}

func (d *Device) flagStatus() byte {
	f := d.flags
	if d.busy > 0 {
		f &^= FlagReady
	} else {
		f |= FlagReady
	}
	if d.addr4 {
		f |= FlagAddressing
	}
	return f
}

func (d *Device) record(f *jesd216.Frame, tx, rx []byte, ignored bool) {
	d.log = append(d.log, Transaction{
		Opcode:  f.Opcode,
		Addr:    f.Addr,
		AddrLen: f.AddrLen,
		Alt:     f.Alt,
		AltLen:  f.AltLen,
		Dummy:   f.Dummy,
		Lines:   f.Lines,
		TxLen:   len(tx),
		RxLen:   len(rx),
		Ignored: ignored,
	})
}

func fill(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}

// exec decodes one frame. Frames the device does not decode leave rx
// floating high.
func (d *Device) exec(f *jesd216.Frame, tx, rx []byte) {
	ignored := !d.decode(f, tx, rx)
	if ignored {
		fill(rx, 0xFF)
	}
	d.record(f, tx, rx, ignored)
}

func (d *Device) decode(f *jesd216.Frame, tx, rx []byte) bool {
	if d.xip {
		if f.Opcode != opFastRead || f.AltLen != 1 {
			return false
		}
		if f.Alt == 0xFF {
			// Mode byte of all ones on every line ends XIP.
			d.xip = false
			return true
		}
		d.read(f.Addr, rx)
		return true
	}

	if f.Lines != d.lines {
		return false
	}

	resetEnabled := d.resetEnabled
	d.resetEnabled = false

	if d.busy > 0 {
		switch f.Opcode {
		case opReadStatus, opReadFlags:
		default:
			return false
		}
	}

	switch f.Opcode {
	case opResetEnable:
		d.resetEnabled = true
	case opResetMemory:
		if !resetEnabled {
			return false
		}
		d.powerOn()
	case opReadID, opMultiIOReadID:
		d.identity(rx)
	case opReadSFDP:
		d.readSFDP(f.Addr, rx)
	case opRead, opFastRead:
		d.read(f.Addr, rx)
	case opWriteEnable:
		d.wel = true
	case opWriteDisable:
		d.wel = false
	case opReadStatus:
		d.readStatus(rx)
	case opReadFlags:
		d.readFlags(rx)
	case opClearFlags:
		d.flags &^= flagErrorMask
	case opReadVCR:
		fill(rx, d.vcr)
	case opReadEVCR:
		fill(rx, d.evcr)
	case opWriteVCR, opWriteEVCR, opEnter4Byte, opPageProgram, opSubsectorErs, opSectorErase, opBulkErase:
		if !d.wel {
			return false
		}
		d.wel = false
		d.write(f, tx)
	default:
		return false
	}
	return true
}

// write runs the commands guarded by the write enable latch.
func (d *Device) write(f *jesd216.Frame, tx []byte) {
	switch f.Opcode {
	case opWriteVCR:
		if len(tx) > 0 {
			d.vcr = tx[0]
		}
	case opWriteEVCR:
		if len(tx) > 0 {
			d.evcr = tx[0]
			d.lines = protocolLines(d.evcr)
		}
	case opEnter4Byte:
		d.addr4 = true
	case opPageProgram:
		d.program(f.Addr, tx)
	case opSubsectorErs:
		d.erase(f.Addr, subsectorSize)
	case opSectorErase:
		d.erase(f.Addr, sectorSize)
	case opBulkErase:
		d.erase(0, uint32(len(d.mem)))
	}
}

// protocolLines decodes the protocol selected by the enhanced volatile
// configuration: bit 7 clear selects quad, bit 6 clear selects dual.
func protocolLines(evcr byte) int {
	switch {
	case evcr&0x80 == 0:
		return 4
	case evcr&0x40 == 0:
		return 2
	default:
		return 1
	}
}

func (d *Device) addr(a uint32) uint32 {
	if !d.addr4 {
		a &= 0xFFFFFF
	}
	return a % uint32(len(d.mem))
}

func (d *Device) read(a uint32, rx []byte) {
	a = d.addr(a)
	for i := range rx {
		rx[i] = d.mem[(int(a)+i)%len(d.mem)]
	}
}

// program clears bits within one page. Data past the page end wraps to the
// start of the page; only the last 256 bytes sent are kept.
func (d *Device) program(a uint32, data []byte) {
	a = d.addr(a)
	d.busy = d.opts.ProgramLatency
	if d.failProgram {
		d.failProgram = false
		d.flags |= FlagProgramError
		return
	}
	if len(data) > pageSize {
		a += uint32(len(data) - pageSize)
		data = data[len(data)-pageSize:]
	}
	base := a &^ (pageSize - 1)
	col := a & (pageSize - 1)
	for i, b := range data {
		d.mem[base+(col+uint32(i))%pageSize] &= b
	}
}

func (d *Device) erase(a, size uint32) {
	a = d.addr(a) &^ (size - 1)
	d.busy = d.opts.EraseLatency
	if d.failErase {
		d.failErase = false
		d.flags |= FlagEraseError
		return
	}
	fill(d.mem[a:a+size], 0xFF)
}

func (d *Device) readFlags(rx []byte) {
	fill(rx, d.flagStatus())
	if d.busy > 0 {
		d.busy--
	}
}

func (d *Device) readStatus(rx []byte) {
	var s byte
	if d.busy > 0 {
		s |= statusWIP
	}
	if d.wel {
		s |= statusWEL
	}
	fill(rx, s)
	if d.busy > 0 {
		d.busy--
	}
}

// identity serves the 20 identification bytes: manufacturer, memory type,
// capacity, extended length, then extended and unique ID bytes.
func (d *Device) identity(rx []byte) {
	var id [20]byte
	id[0] = d.opts.Manufacturer
	id[1] = d.opts.MemoryType
	id[2] = d.opts.Capacity
	id[3] = identityExtLength
	for i := 4; i < len(id); i++ {
		id[i] = byte(0x40 + i)
	}
	for i := range rx {
		if i < len(id) {
			rx[i] = id[i]
		} else {
			rx[i] = 0xFF
		}
	}
}

func (d *Device) readSFDP(a uint32, rx []byte) {
	for i := range rx {
		p := int(a&0xFFFFFF) + i
		if p < len(d.sfdp) {
			rx[i] = d.sfdp[p]
		} else {
			rx[i] = 0xFF
		}
	}
}

// buildSFDP returns an SFDP space holding a basic parameter table that
// advertises 4 KiB erase with opcode 0x20 and the device density.
func buildSFDP(size uint64) []byte {
	const tableDwords = 9
	const tablePtr = 0x30

	b := make([]byte, tablePtr+tableDwords*4)
	fill(b, 0xFF)
	binary.LittleEndian.PutUint32(b[0:], jesd216.SFDPSignature)
	b[4] = 0x00 // minor
	b[5] = 0x01 // major
	b[6] = 0x00 // one parameter header
	b[7] = 0xFF

	ph := b[jesd216.SFDPHeaderSize : jesd216.SFDPHeaderSize+jesd216.SFDPParamHeaderSize]
	ph[0] = 0x00 // basic table id LSB
	ph[1] = 0x00
	ph[2] = 0x01
	ph[3] = tableDwords
	ph[4] = tablePtr
	ph[5] = 0x00
	ph[6] = 0x00
	ph[7] = 0xFF // basic table id MSB

	table := b[tablePtr:]
	binary.LittleEndian.PutUint32(table[0:], 0xFFF120E5)

	bits := size * 8
	if bits <= 1<<31 {
		binary.LittleEndian.PutUint32(table[4:], uint32(bits-1))
	} else {
		n := 0
		for bits > 1 {
			bits >>= 1
			n++
		}
		binary.LittleEndian.PutUint32(table[4:], 0x80000000|uint32(n))
	}
	return b
}
