package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/flashsim"
	"github.com/moffa90/go-snor/jesd216"
	"github.com/moffa90/go-snor/logging"
	"github.com/moffa90/go-snor/m25q"
	"github.com/moffa90/go-snor/periphbus"
	"go.uber.org/zap"
	"periph.io/x/host/v3"
	"periph.io/x/host/v3/ftdi"
)

// FTDI USB vendor ID; any FT232H class part (FT232H, FT2232H) is accepted.
const ftdiVendorID = 0x0403

var initHost = sync.OnceValue(func() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("host initialization failed: %w", err)
	}
	return nil
})

// session is a started driver plus everything that has to be released
// with it.
type session struct {
	drv     *m25q.Driver
	log     *zap.Logger
	closers []func() error
}

// openSession opens the backend selected by g and starts an M25Q driver on
// it.
func openSession(g *globalFlags) (*session, error) {
	mode, err := g.busMode()
	if err != nil {
		return nil, err
	}
	logger, err := newLogger(g.logLevel, g.logFormat)
	if err != nil {
		return nil, err
	}
	s := &session{log: logger}

	port, err := s.openPort(g, mode)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.drv = m25q.New(
		m25q.WithBusMode(mode),
		m25q.WithLogger(logging.Zap(logger.Sugar())),
	)
	cfg := &m25q.Config{
		Bus:       jesd216.NewBus(port),
		BusConfig: &jesd216.Config{Name: g.backend, ClockHz: g.clockHz, Mode: mode},
	}
	if err := s.drv.Start(cfg); err != nil {
		s.drv = nil
		s.Close()
		return nil, err
	}

	return s, nil
}

// openPort opens the backend port and registers its cleanup.
func (s *session) openPort(g *globalFlags, mode jesd216.Mode) (jesd216.Port, error) {
	switch g.backend {
	case "sim", "file":
		capacity, err := parseUint32("capacity", g.capacity)
		if err != nil {
			return nil, err
		}
		if capacity < 0x10 || capacity > 0x1C {
			return nil, fmt.Errorf("--capacity 0x%X out of range 0x10-0x1C", capacity)
		}
		opt := flashsim.WithCapacity(byte(capacity))

		var sim *flashsim.Device
		if g.backend == "file" {
			if sim, err = flashsim.OpenFile(g.file, opt); err != nil {
				return nil, err
			}
		} else {
			sim = flashsim.New(opt)
		}
		s.closers = append(s.closers, sim.Close)

		if mode == jesd216.ModeSPI {
			return jesd216.NewSerialPort(sim.Conn()), nil
		}
		return sim, nil

	case "spidev":
		if err := initHost(); err != nil {
			return nil, err
		}
		p, err := periphbus.Open(g.spiPort)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, p.Close)
		return p, nil

	case "ftdi":
		if err := initHost(); err != nil {
			return nil, err
		}
		ft, err := findFT232H()
		if err != nil {
			return nil, err
		}
		sp, err := ft.SPI()
		if err != nil {
			return nil, fmt.Errorf("failed to get SPI port: %w", err)
		}
		s.closers = append(s.closers, sp.Close)
		// ADBUS4 is the flash chip select on FT232H breakout boards
		return periphbus.New(sp, periphbus.WithChipSelect(ft.D4)), nil

	default:
		return nil, fmt.Errorf("unknown --backend %q: want sim, file, spidev or ftdi", g.backend)
	}
}

// busMode returns the mode from --mode, defaulting per backend.
func (g *globalFlags) busMode() (jesd216.Mode, error) {
	hardware := g.backend == "spidev" || g.backend == "ftdi"

	switch g.mode {
	case "":
		if hardware {
			return jesd216.ModeSPI, nil
		}
		return jesd216.ModeWide4L, nil
	case "spi":
		return jesd216.ModeSPI, nil
	case "wide-1l", "wide-2l", "wide-4l":
		if hardware {
			return 0, fmt.Errorf("backend %s supports only spi mode", g.backend)
		}
		return map[string]jesd216.Mode{
			"wide-1l": jesd216.ModeWide1L,
			"wide-2l": jesd216.ModeWide2L,
			"wide-4l": jesd216.ModeWide4L,
		}[g.mode], nil
	default:
		return 0, fmt.Errorf("unknown --mode %q", g.mode)
	}
}

// findFT232H returns the first FTDI device with an MPSSE engine.
func findFT232H() (*ftdi.FT232H, error) {
	info := ftdi.Info{}
	for _, dev := range ftdi.All() {
		dev.Info(&info)
		if info.VenID != ftdiVendorID {
			continue
		}
		if ft, ok := dev.(*ftdi.FT232H); ok {
			return ft, nil
		}
	}
	return nil, errors.New("no FT232H device found")
}

// Close stops the driver and releases the backend.
func (s *session) Close() error {
	var errs []error
	if s.drv != nil {
		// An interrupted erase has to finish before the driver can stop
		if s.drv.State() == flash.StateErase {
			if err := flash.WaitErase(context.Background(), s.drv); err != nil {
				errs = append(errs, err)
			}
		}
		if s.drv.State() != flash.StateErase {
			if err := s.drv.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	_ = s.log.Sync()
	return errors.Join(errs...)
}
