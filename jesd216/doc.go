// Package jesd216 implements the command transport shared by serial NOR
// flash drivers.
//
// # Overview
//
// Serial flash devices are driven by short command transactions:
//
//	[OPCODE][ADDR(0|3|4)][ALT(0|1)][DUMMY(cycles)][DATA...]
//
// The package abstracts two kinds of bus behind one call surface:
//   - Simple serial links (SPI): the frame is serialized into bytes and
//     clocked out in a single chip-select cycle, see SerialExchange.
//   - Wide, command-structured controllers (QSPI-style): the port receives
//     the Frame directly and may run it on 1, 2 or 4 lines.
//
// # Bus Sharing
//
// A Bus wraps a Port and serializes its users:
//
//	if err := bus.Acquire(cfg); err != nil {
//	    return err
//	}
//	defer bus.Release()
//	err := jesd216.CmdReceive(bus, 0x9F, id)
//
// Acquire compares configurations by identity and restarts the port when a
// different configuration was last active, so several device drivers can
// multiplex one physical bus.
//
// # Command Primitives
//
//	jesd216.Cmd(bus, op)
//	jesd216.CmdReceive(bus, op, buf)
//	jesd216.CmdSend(bus, op, buf)
//	jesd216.CmdAddr(bus, op, offset)
//	jesd216.CmdAddrSend(bus, op, offset, buf)
//	jesd216.CmdAddrReceive(bus, op, offset, buf)
//	jesd216.CmdAddrDummyReceive(bus, op, offset, dummy, buf)
//
// The address phase is 24 bits unless the opcode carries AddrMode32.
//
// # Discoverable Parameters
//
// ParseSFDP reads and decodes the SFDP header and parameter tables through
// any SFDPReader.
package jesd216
