// Package m25q drives Micron M25Q/N25Q serial NOR flash over a jesd216 bus.
//
// # Overview
//
// A Driver owns the device state machine:
//
//	stop --Start--> ready --Read/Program/VerifyErase--> ready
//	                ready --StartErase*--> erase --QueryErase(done)--> ready
//
// Read, Program and VerifyErase run to completion before returning. Erases
// only start: the driver stays in the erase state until QueryErase observes
// completion, and every other operation returns flash.ErrBusyErasing
// meanwhile.
//
// # Usage
//
//	bus := jesd216.NewBus(port)
//	drv := m25q.New(m25q.WithBusMode(jesd216.ModeWide4L))
//	if err := drv.Start(&m25q.Config{Bus: bus}); err != nil {
//	    return err
//	}
//	defer drv.Stop()
//
//	if err := flash.EraseSector(ctx, drv, 0); err != nil {
//	    return err
//	}
//	if err := drv.Program(0, data); err != nil {
//	    return err
//	}
//
// # Bus Modes
//
// With ModeSPI the device stays in its single line reset protocol and reads
// use READ (0x03). Wide modes reset the device on every width, write the
// enhanced volatile configuration to select 1, 2 or 4 lines, confirm the
// identity on the new width and read with FAST READ (0x0B).
//
// Devices larger than 16 MiB are switched to 4-byte addressing.
//
// # Errors
//
// Status register failures are returned as *flash.DeviceError after the
// flags are cleared; the driver is ready again afterwards. Start returns
// *UnsupportedDeviceError for identities outside the whitelists and
// *IdentityMismatchError when the width switch fails.
//
// Calling an operation in the wrong state, or with an offset or sector
// outside the device, panics.
package m25q
