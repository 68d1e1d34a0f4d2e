// Package flash defines the device-independent contract for flash storage
// drivers.
//
// # Overview
//
// A flash driver implements Device. Code that stores data, programs
// firmware or runs a filesystem depends only on this interface:
//
//	drv := m25q.New()
//	if err := drv.Start(&m25q.Config{Bus: bus}); err != nil {
//	    return err
//	}
//	var dev flash.Device = drv
//	desc := dev.Descriptor()
//	fmt.Printf("%d sectors of %d bytes\n", desc.SectorsCount, desc.SectorSize)
//
// # Erasing
//
// Erases are asynchronous. StartEraseSector and StartEraseAll return as
// soon as the device accepted the command, and QueryErase reports progress:
//
//	if err := dev.StartEraseSector(3); err != nil {
//	    return err
//	}
//	if err := flash.WaitErase(ctx, dev); err != nil {
//	    return err
//	}
//
// While an erase is outstanding Read, Program and VerifyErase return
// ErrBusyErasing.
//
// # Errors
//
// Device-reported failures are *DeviceError values that unwrap to
// ErrProgram or ErrErase:
//
//	if errors.Is(err, flash.ErrProgram) {
//	    // program failed
//	}
//
// Blank-check failures are *VerifyError values that unwrap to ErrVerify.
package flash
