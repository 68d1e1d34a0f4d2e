package flashsim

import (
	"errors"

	"github.com/moffa90/go-snor/jesd216"
)

// Conn returns a single line, byte-level view of the device. Each Tx is
// one chip select cycle: the command header is decoded from w and read data
// is returned in r after the header bytes.
func (d *Device) Conn() jesd216.Conn {
	return serialConn{d}
}

type serialConn struct {
	d *Device
}

// header returns the address length and dummy bytes following op on a
// single line bus.
func (c serialConn) header(op byte) (addrLen, dummy int) {
	switch op {
	case opReadSFDP:
		return 3, 1
	case opFastRead:
		dummy = 1
	case opRead, opPageProgram, opSubsectorErs, opSectorErase:
	default:
		return 0, 0
	}
	if c.d.addr4 {
		return 4, dummy
	}
	return 3, dummy
}

func isSend(op byte) bool {
	switch op {
	case opPageProgram, opWriteVCR, opWriteEVCR:
		return true
	}
	return false
}

func (c serialConn) Tx(w, r []byte) error {
	if len(w) == 0 {
		return errors.New("flashsim: empty transfer")
	}
	if r != nil && len(r) != len(w) {
		return errors.New("flashsim: read and write buffers differ in length")
	}

	c.d.mu.Lock()
	defer c.d.mu.Unlock()

	op := w[0]
	addrLen, dummy := c.header(op)
	hdr := 1 + addrLen + dummy
	if len(w) < hdr {
		return errors.New("flashsim: truncated command header")
	}

	f := jesd216.Frame{Opcode: op, AddrLen: addrLen, Dummy: dummy * 8, Lines: 1}
	for _, b := range w[1 : 1+addrLen] {
		f.Addr = f.Addr<<8 | uint32(b)
	}

	var tx, rx []byte
	if isSend(op) {
		tx = w[hdr:]
	} else if len(w) > hdr {
		if r != nil {
			rx = r[hdr:]
		} else {
			rx = make([]byte, len(w)-hdr)
		}
	}

	c.d.exec(&f, tx, rx)
	if r != nil {
		fill(r[:hdr], 0xFF)
	}
	return nil
}
