package jesd216

// The Cmd* primitives issue one transaction each on an acquired bus. The
// frame width is the bus line count (see Bus.SetLines); the address phase is
// 3 bytes unless the opcode carries AddrMode32.

// Cmd sends a command with no address or data phase.
//
// Frame structure:
//
//	[OPCODE]
func Cmd(b *Bus, op Opcode) error {
	f := Frame{Opcode: op.Code(), Lines: b.lines}
	return b.Exchange(&f, nil, nil)
}

// CmdReceive sends a command and reads len(buf) bytes.
//
// Frame structure:
//
//	[OPCODE][DATA IN...]
func CmdReceive(b *Bus, op Opcode, buf []byte) error {
	f := Frame{Opcode: op.Code(), Lines: b.lines}
	return b.Exchange(&f, nil, buf)
}

// CmdSend sends a command followed by the bytes in buf.
//
// Frame structure:
//
//	[OPCODE][DATA OUT...]
func CmdSend(b *Bus, op Opcode, buf []byte) error {
	f := Frame{Opcode: op.Code(), Lines: b.lines}
	return b.Exchange(&f, buf, nil)
}

// CmdAddr sends a command with an address phase and no data.
//
// Frame structure:
//
//	[OPCODE][ADDR(3|4)]
func CmdAddr(b *Bus, op Opcode, offset uint32) error {
	f := addrFrame(b, op, offset)
	return b.Exchange(&f, nil, nil)
}

// CmdAddrSend sends a command with an address phase followed by buf.
//
// Frame structure:
//
//	[OPCODE][ADDR(3|4)][DATA OUT...]
func CmdAddrSend(b *Bus, op Opcode, offset uint32, buf []byte) error {
	f := addrFrame(b, op, offset)
	return b.Exchange(&f, buf, nil)
}

// CmdAddrReceive sends a command with an address phase and reads len(buf)
// bytes.
//
// Frame structure:
//
//	[OPCODE][ADDR(3|4)][DATA IN...]
func CmdAddrReceive(b *Bus, op Opcode, offset uint32, buf []byte) error {
	f := addrFrame(b, op, offset)
	return b.Exchange(&f, nil, buf)
}

// CmdAddrDummyReceive sends a command with an address phase, waits dummy
// clock cycles and reads len(buf) bytes. Fast-read opcodes need the gap.
//
// Frame structure:
//
//	[OPCODE][ADDR(3|4)][DUMMY(cycles)][DATA IN...]
func CmdAddrDummyReceive(b *Bus, op Opcode, offset uint32, dummy int, buf []byte) error {
	f := addrFrame(b, op, offset)
	f.Dummy = dummy
	return b.Exchange(&f, nil, buf)
}

func addrFrame(b *Bus, op Opcode, offset uint32) Frame {
	return Frame{
		Opcode:  op.Code(),
		Addr:    offset,
		AddrLen: op.addrLen(),
		Lines:   b.lines,
	}
}
