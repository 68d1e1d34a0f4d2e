package m25q

import (
	"bytes"
	"fmt"
	"time"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/jesd216"
)

// The device* methods issue flash commands on an acquired bus. They hold no
// state beyond what deviceInit records in the driver.

// op adds the 32-bit address flag to addressed commands on large devices.
func (d *Driver) op(o jesd216.Opcode) jesd216.Opcode {
	if d.addr32 {
		return o | jesd216.AddrMode32
	}
	return o
}

func (d *Driver) addrLen() int {
	if d.addr32 {
		return jesd216.AddrLen32
	}
	return jesd216.AddrLen24
}

func (d *Driver) setLines(n int) {
	d.lines = n
	d.bus.SetLines(n)
}

// writeEnable sets the write enable latch.
func (d *Driver) writeEnable() error {
	return jesd216.Cmd(d.bus, CmdWriteEnable)
}

// writeVCR writes the volatile configuration register.
func (d *Driver) writeVCR(xip bool) error {
	v := byte(d.opts.ReadDummyCycles<<4) | vcrXIPDisabled
	if xip {
		v = byte(d.opts.ReadDummyCycles<<4) | vcrXIPEnabled
	}
	if err := d.writeEnable(); err != nil {
		return err
	}
	return jesd216.CmdSend(d.bus, CmdWriteVCR, []byte{v})
}

// readFlagStatus reads the flag status register.
func (d *Driver) readFlagStatus() (byte, error) {
	var sts [1]byte
	if err := jesd216.CmdReceive(d.bus, CmdReadFlagStatusRegister, sts[:]); err != nil {
		return 0, err
	}
	return sts[0], nil
}

func (d *Driver) clearFlags() error {
	return jesd216.Cmd(d.bus, CmdClearFlagStatusReg)
}

// resetXIP leaves execute-in-place mode with a fast read carrying the mode
// byte 0xFF. Sent on four lines it ends continuous read on every protocol.
func (d *Driver) resetXIP(lines int) error {
	f := d.xipFrame(0xFF, lines)
	var b [1]byte
	return d.bus.Exchange(&f, nil, b[:])
}

// xipFrame builds a fast read with a mode byte. The mode byte consumes
// 8/lines of the configured dummy cycles.
func (d *Driver) xipFrame(mode byte, lines int) jesd216.Frame {
	dummy := d.opts.ReadDummyCycles - 8/lines
	if dummy < 0 {
		dummy = 0
	}
	return jesd216.Frame{
		Opcode:  CmdFastRead.Code(),
		AddrLen: d.addrLen(),
		Alt:     mode,
		AltLen:  1,
		Dummy:   dummy,
		Lines:   lines,
	}
}

// resetMemory brings the device back to its power-on protocol. On wide
// buses the device protocol is unknown, so the reset is sent on 4, 2 and
// then 1 lines.
func (d *Driver) resetMemory() error {
	widths := []int{1}
	if d.opts.BusMode.Wide() {
		widths = []int{4, 2, 1}
	}
	for _, n := range widths {
		d.setLines(n)
		if err := jesd216.Cmd(d.bus, CmdResetEnable); err != nil {
			return err
		}
		if err := jesd216.Cmd(d.bus, CmdResetMemory); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) deviceInit() error {
	d.addr32 = false

	if d.opts.BusMode.Wide() {
		if err := d.resetXIP(4); err != nil {
			return fmt.Errorf("reset xip: %w", err)
		}
	}
	if err := d.resetMemory(); err != nil {
		return fmt.Errorf("reset memory: %w", err)
	}

	var id Identity
	if err := jesd216.CmdReceive(d.bus, CmdReadID, id[:]); err != nil {
		return fmt.Errorf("read id: %w", err)
	}
	d.logDebug("device identified",
		"manufacturer", fmt.Sprintf("0x%02X", id.Manufacturer()),
		"memory_type", fmt.Sprintf("0x%02X", id.MemoryType()),
		"capacity", fmt.Sprintf("0x%02X", id.Capacity()),
	)

	if !contains(d.opts.Manufacturers, id.Manufacturer()) {
		return &UnsupportedDeviceError{Identity: id, Reason: "manufacturer not in whitelist"}
	}
	if !contains(d.opts.MemoryTypes, id.MemoryType()) {
		return &UnsupportedDeviceError{Identity: id, Reason: "memory type not in whitelist"}
	}
	if id.Capacity() > 32 {
		return &UnsupportedDeviceError{Identity: id, Reason: "capacity exceeds 32-bit address space"}
	}

	if d.opts.BusMode.Wide() {
		lines := d.opts.BusMode.Lines()
		if err := d.writeEnable(); err != nil {
			return fmt.Errorf("switch width: %w", err)
		}
		if err := jesd216.CmdSend(d.bus, CmdWriteEVCR, []byte{evcrFor(lines)}); err != nil {
			return fmt.Errorf("switch width: %w", err)
		}
		d.setLines(lines)

		var check Identity
		if err := jesd216.CmdReceive(d.bus, CmdMultipleIOReadID, check[:]); err != nil {
			return fmt.Errorf("read id after width switch: %w", err)
		}
		if !bytes.Equal(id[:3], check[:3]) {
			return &IdentityMismatchError{
				Expected: append([]byte(nil), id[:3]...),
				Actual:   append([]byte(nil), check[:3]...),
			}
		}
		d.logDebug("bus width switched", "lines", lines)
	}

	sectorSize := uint32(SectorSize)
	if d.opts.SubSectors {
		sectorSize = SubsectorSize
	}
	d.id = id
	d.desc = flash.Descriptor{
		Attributes:   flash.AttrErasedIsOne | flash.AttrRewritable | flash.AttrSuspendErase,
		PageSize:     PageSize,
		SectorsCount: uint32(id.Size() / uint64(sectorSize)),
		SectorSize:   sectorSize,
	}

	if id.Size() > maxAddr24 {
		if err := d.writeEnable(); err != nil {
			return fmt.Errorf("enter 4-byte address mode: %w", err)
		}
		if err := jesd216.Cmd(d.bus, CmdEnter4ByteAddress); err != nil {
			return fmt.Errorf("enter 4-byte address mode: %w", err)
		}
		d.addr32 = true
	}

	if d.opts.BusMode.Wide() {
		d.desc.Attributes |= flash.AttrMemoryMapped
		if err := d.writeVCR(false); err != nil {
			return fmt.Errorf("write vcr: %w", err)
		}
	}
	return nil
}

func (d *Driver) deviceRead(offset uint32, buf []byte) error {
	if d.opts.BusMode.Wide() {
		return jesd216.CmdAddrDummyReceive(d.bus, d.op(CmdFastRead), offset, d.opts.ReadDummyCycles, buf)
	}
	return jesd216.CmdAddrReceive(d.bus, d.op(CmdRead), offset, buf)
}

func (d *Driver) deviceProgram(offset uint32, buf []byte) error {
	for len(buf) > 0 {
		// Bytes left in the current page.
		chunk := ((offset | PageMask) + 1) - offset
		if chunk > uint32(len(buf)) {
			chunk = uint32(len(buf))
		}

		if err := d.writeEnable(); err != nil {
			return err
		}
		if err := jesd216.CmdAddrSend(d.bus, d.op(CmdPageProgram), offset, buf[:chunk]); err != nil {
			return err
		}
		if err := d.pollStatus("program", offset); err != nil {
			return err
		}

		offset += chunk
		buf = buf[chunk:]
	}
	return nil
}

func (d *Driver) deviceStartEraseAll() error {
	if err := d.writeEnable(); err != nil {
		return err
	}
	return jesd216.Cmd(d.bus, CmdBulkErase)
}

func (d *Driver) deviceStartEraseSector(sector uint32) error {
	op := CmdSectorErase
	if d.opts.SubSectors {
		op = CmdSubsectorErase
	}
	if err := d.writeEnable(); err != nil {
		return err
	}
	return jesd216.CmdAddr(d.bus, d.op(op), d.desc.SectorOffset(sector))
}

func (d *Driver) deviceQueryErase() (time.Duration, error) {
	sts, err := d.readFlagStatus()
	if err != nil {
		return 0, err
	}

	if sts&FlagProgramEraseReady == 0 || sts&FlagEraseSuspend != 0 {
		return QueryEraseDelay, flash.ErrBusyErasing
	}

	if sts&FlagAllErrors != 0 {
		if err := d.clearFlags(); err != nil {
			return 0, err
		}
		return 0, &flash.DeviceError{Op: "erase", Status: sts, Err: flash.ErrErase}
	}
	return 0, nil
}

func (d *Driver) deviceVerifyErase(sector uint32) error {
	buf := make([]byte, d.opts.CompareBufferSize)
	offset := d.desc.SectorOffset(sector)
	end := uint64(offset) + uint64(d.desc.SectorSize)

	for pos := uint64(offset); pos < end; pos += uint64(len(buf)) {
		n := uint64(len(buf))
		if end-pos < n {
			n = end - pos
		}
		chunk := buf[:n]
		if err := d.deviceRead(uint32(pos), chunk); err != nil {
			return err
		}
		for i, b := range chunk {
			if b != 0xFF {
				return &flash.VerifyError{Offset: uint32(pos) + uint32(i), Value: b}
			}
		}
	}
	return nil
}

// pollStatus waits for the program/erase controller to become ready. Error
// bits are only checked once the device reports ready.
func (d *Driver) pollStatus(op string, offset uint32) error {
	var sts byte
	for {
		if d.opts.PollDelay > 0 {
			time.Sleep(d.opts.PollDelay)
		}
		s, err := d.readFlagStatus()
		if err != nil {
			return err
		}
		if s&FlagProgramEraseReady != 0 {
			sts = s
			break
		}
	}

	if sts&FlagAllErrors != 0 {
		if err := d.clearFlags(); err != nil {
			return err
		}
		return &flash.DeviceError{Op: op, Offset: offset, Status: sts, Err: flash.ErrProgram}
	}
	return nil
}

func (d *Driver) deviceReadSFDP(offset uint32, buf []byte) error {
	return jesd216.CmdAddrDummyReceive(d.bus, CmdReadSFDP, offset, jesd216.SFDPDummyCycles, buf)
}

// deviceMap enables XIP only on ports that can map, and disables it again
// when the mapping fails. A device left in XIP stops decoding commands.
func (d *Driver) deviceMap() ([]byte, error) {
	if _, ok := d.bus.Port().(jesd216.Mapper); !ok {
		return nil, jesd216.ErrNotSupported
	}
	if err := d.writeVCR(true); err != nil {
		return nil, err
	}
	f := d.xipFrame(0x00, d.lines)
	mem, err := d.bus.MapFlash(&f)
	if err != nil {
		if verr := d.writeVCR(false); verr != nil {
			return nil, fmt.Errorf("%w (restore vcr: %v)", err, verr)
		}
		return nil, err
	}
	return mem, nil
}

func (d *Driver) deviceUnmap() error {
	if err := d.bus.UnmapFlash(); err != nil {
		return err
	}
	if err := d.resetXIP(d.lines); err != nil {
		return err
	}
	return d.writeVCR(false)
}
