// Command snorctl inspects, erases and programs M25Q serial NOR flash.
//
// Usage:
//
//	snorctl info --backend ftdi
//	snorctl program firmware.hex --backend spidev --spi-port SPI0.0
//	snorctl read --backend file --file flash.bin --offset 0x1000 --length 256
//
// The sim and file backends run against a simulated part; file keeps the
// flash contents in a memory-mapped file between runs.
package main

import (
	"context"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
