package jesd216

import "fmt"

// HeaderLen returns the number of bytes the frame header occupies on a
// simple serial link: opcode, address, alternate byte and dummy bytes.
func HeaderLen(f *Frame) int {
	return 1 + f.AddrLen + f.AltLen + f.Dummy/8
}

// EncodeHeader writes the serial encoding of the frame header into dst,
// which must be at least HeaderLen(f) bytes. The address is big-endian.
//
// Wire layout:
//
//	[OPCODE][ADDR(0|3|4)][ALT(0|1)][DUMMY(cycles/8)]
func EncodeHeader(dst []byte, f *Frame) int {
	n := 0
	dst[n] = f.Opcode
	n++
	for i := f.AddrLen - 1; i >= 0; i-- {
		dst[n] = byte(f.Addr >> (8 * uint(i)))
		n++
	}
	if f.AltLen > 0 {
		dst[n] = f.Alt
		n++
	}
	for i := 0; i < f.Dummy/8; i++ {
		dst[n] = 0xFF
		n++
	}
	return n
}

// SerialExchange runs a frame on a simple serial link as a single
// chip-select cycle. Only single-line frames with byte-aligned dummy phases
// can be represented.
//
// Example:
//
//	f := &jesd216.Frame{Opcode: 0x9F, Lines: 1}
//	id := make([]byte, 3)
//	err := jesd216.SerialExchange(conn, f, nil, id)
func SerialExchange(c Conn, f *Frame, tx, rx []byte) error {
	if f.Lines > 1 {
		return ErrUnsupportedWidth
	}
	if f.Dummy%8 != 0 {
		return fmt.Errorf("dummy cycles %d not byte aligned: %w", f.Dummy, ErrUnsupportedWidth)
	}
	if len(tx) > 0 && len(rx) > 0 {
		return fmt.Errorf("frame 0x%02X has both send and receive data", f.Opcode)
	}

	hdr := HeaderLen(f)
	w := make([]byte, hdr+len(tx)+len(rx))
	EncodeHeader(w, f)
	copy(w[hdr:], tx)

	if len(rx) == 0 {
		return c.Tx(w, nil)
	}

	r := make([]byte, len(w))
	if err := c.Tx(w, r); err != nil {
		return err
	}
	copy(rx, r[hdr:])
	return nil
}

// SerialPort runs frames on a Conn with SerialExchange. It only supports
// ModeSPI.
type SerialPort struct {
	conn Conn
}

// NewSerialPort returns a Port over c.
func NewSerialPort(c Conn) *SerialPort {
	if c == nil {
		panic("conn cannot be nil")
	}
	return &SerialPort{conn: c}
}

// Start implements Port.
func (p *SerialPort) Start(cfg *Config) error { return nil }

// Stop implements Port.
func (p *SerialPort) Stop() error { return nil }

// Supports implements Port.
func (p *SerialPort) Supports(m Mode) bool { return m == ModeSPI }

// Exchange implements Port.
func (p *SerialPort) Exchange(f *Frame, tx, rx []byte) error {
	return SerialExchange(p.conn, f, tx, rx)
}
