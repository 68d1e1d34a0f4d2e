// Package flashsim simulates an M25Q serial NOR flash behind a wide bus
// controller, for tests and for running the tools without hardware.
//
// The model decodes the command set at the frame level (jesd216.Port) or at
// the byte level (Conn). It tracks the protocol width selected through the
// enhanced volatile configuration and ignores frames sent on another width,
// as the part does. Programs only clear bits and wrap inside a page. Erases
// and programs keep the device busy for a configurable number of status
// reads, and FailNextProgram/FailNextErase inject status register errors.
//
//	sim := flashsim.New(flashsim.WithCapacity(0x14))
//	bus := jesd216.NewBus(sim)
//	drv := m25q.New()
//	err := drv.Start(&m25q.Config{Bus: bus})
//
// OpenFile backs the storage with a memory mapped file.
package flashsim
