// Package flashprog writes firmware images to serial NOR flash devices.
//
// # Overview
//
// This package orchestrates the complete programming sequence on any
// flash.Device:
//   - Checking the image fits in the device
//   - Erasing the sectors the image touches (or the whole device)
//   - Optionally blank checking the erased sectors
//   - Programming the image data in chunks
//   - Reading back and comparing the programmed data
//
// # Basic Usage
//
// The simplest way to program a device:
//
//	// Start a driver on a bus
//	drv := m25q.New()
//	if err := drv.Start(&m25q.Config{Bus: jesd216.NewBus(port)}); err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Stop()
//
//	// Load firmware
//	img, err := image.Load("firmware.hex", 0)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	// Program it
//	prog := flashprog.New(drv)
//	if err := prog.Program(context.Background(), img); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Track programming progress with a callback:
//
//	prog := flashprog.New(drv,
//	    flashprog.WithProgressCallback(func(p flashprog.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d\n",
//	            p.Phase, p.Percentage, p.Current, p.Total)
//	    }),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	prog := flashprog.New(drv,
//	    flashprog.WithProgressCallback(progressFunc),
//	    flashprog.WithLogger(logging.Zap(sugar)),
//	    flashprog.WithChunkSize(4096),
//	    flashprog.WithEraseAll(true),
//	    flashprog.WithBlankCheck(true),
//	    flashprog.WithVerifyAfterProgram(true),
//	)
//
// # Tracing
//
// Program opens a "flashprog.Program" span with one child span per phase
// ("flashprog.erasing", "flashprog.programming", "flashprog.verifying").
// Dump opens a "flashprog.Dump" span. Spans go to the global tracer
// provider unless WithTracer is given.
//
// # Context Support
//
// Operations check the context between sectors and chunks:
//
//	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
//	defer cancel()
//
//	err := prog.Program(ctx, img)
//
// # Error Handling
//
// The package provides structured error types:
//   - SegmentOutOfRangeError: Image data lies outside the device
//   - ReadbackMismatchError: Programmed data reads back differently
//   - flash.VerifyError: Blank check found a programmed byte
//   - flash.DeviceError: The device flagged a program or erase failure
package flashprog
