package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	backend   string
	file      string
	spiPort   string
	capacity  string
	mode      string
	clockHz   uint64
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:          "snorctl",
		Short:        "Serial NOR flash utility",
		Long:         "Identify, read, erase and program Micron M25Q serial NOR flash over SPI or a simulated part",
		SilenceUsage: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&g.backend, "backend", "sim", "device backend: sim|file|spidev|ftdi")
	pf.StringVar(&g.file, "file", "flash.bin", "backing file for the file backend")
	pf.StringVar(&g.spiPort, "spi-port", "", "SPI port name for the spidev backend (empty selects the first)")
	pf.StringVar(&g.capacity, "capacity", "0x18", "capacity code of the simulated part (0x14 = 1 MiB, 0x18 = 16 MiB)")
	pf.StringVar(&g.mode, "mode", "", "bus mode: spi|wide-1l|wide-2l|wide-4l (default wide-4l for simulated parts, spi otherwise)")
	pf.Uint64Var(&g.clockHz, "clock", 0, "bus clock in Hz (0 selects the backend default)")
	pf.StringVar(&g.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	pf.StringVar(&g.logFormat, "log-format", "console", "log format: console|json")

	root.AddCommand(
		newInfoCmd(g),
		newReadCmd(g),
		newEraseCmd(g),
		newProgramCmd(g),
		newVerifyEraseCmd(g),
		newSFDPCmd(g),
	)

	return root
}

// parseUint32 parses a decimal, 0x-prefixed hex or 0-prefixed octal number.
func parseUint32(name, s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid --%s %q: %w", name, s, err)
	}
	return uint32(v), nil
}
