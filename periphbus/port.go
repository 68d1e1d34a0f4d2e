// Package periphbus runs jesd216 frames on a periph.io SPI port.
//
// Frames are serialized with jesd216.SerialExchange, so only ModeSPI is
// supported. When a chip select pin is configured the port is connected
// with spi.NoCS and the pin is driven around each transfer.
//
//	if _, err := host.Init(); err != nil {
//	    log.Fatal(err)
//	}
//	port, err := periphbus.Open("SPI0.0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//	bus := jesd216.NewBus(port)
package periphbus

import (
	"fmt"
	"io"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/moffa90/go-snor/jesd216"
)

// DefaultClock is used when the bus configuration leaves ClockHz at zero.
const DefaultClock = 10 * physic.MegaHertz

// Port is a jesd216.Port over a periph.io SPI port.
type Port struct {
	port   spi.Port
	closer io.Closer
	opts   Options
	conn   jesd216.Conn
}

var _ jesd216.Port = (*Port)(nil)

// Options configures a Port.
type Options struct {
	// ChipSelect is driven low for each transfer when set
	ChipSelect gpio.PinOut

	// Mode is the SPI clock mode; M25Q parts accept modes 0 and 3
	Mode spi.Mode
}

// Option is a functional option for configuring the Port.
type Option func(*Options)

// WithChipSelect drives pin as chip select instead of the controller's
// own chip select line.
func WithChipSelect(pin gpio.PinOut) Option {
	return func(o *Options) {
		o.ChipSelect = pin
	}
}

// WithSPIMode sets the SPI clock mode. Default is mode 0.
func WithSPIMode(mode spi.Mode) Option {
	return func(o *Options) {
		o.Mode = mode
	}
}

// New wraps an SPI port. The port is connected on the first Start.
func New(p spi.Port, opts ...Option) *Port {
	if p == nil {
		panic("spi port cannot be nil")
	}
	o := Options{Mode: spi.Mode0}
	for _, opt := range opts {
		opt(&o)
	}
	return &Port{port: p, opts: o}
}

// Open opens a registered SPI port by name, for example "SPI0.0" or "" for
// the first one. host.Init must have been called.
func Open(name string, opts ...Option) (*Port, error) {
	pc, err := spireg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", name, err)
	}
	p := New(pc, opts...)
	p.closer = pc
	return p, nil
}

// Start connects the SPI port at cfg.ClockHz. A periph.io port can only be
// connected once, so later starts reuse the connection.
func (p *Port) Start(cfg *jesd216.Config) error {
	if p.conn != nil {
		return nil
	}

	freq := DefaultClock
	if cfg.ClockHz != 0 {
		freq = physic.Frequency(cfg.ClockHz) * physic.Hertz
	}
	mode := p.opts.Mode
	if p.opts.ChipSelect != nil {
		mode |= spi.NoCS
		if err := p.opts.ChipSelect.Out(gpio.High); err != nil {
			return fmt.Errorf("chip select: %w", err)
		}
	}

	c, err := p.port.Connect(freq, mode, 8)
	if err != nil {
		return fmt.Errorf("connect %s: %w", p.port, err)
	}
	if p.opts.ChipSelect != nil {
		p.conn = &csConn{conn: c, cs: p.opts.ChipSelect}
	} else {
		p.conn = c
	}
	return nil
}

// Stop implements jesd216.Port. The connection stays open until Close.
func (p *Port) Stop() error {
	return nil
}

// Supports reports true for ModeSPI only.
func (p *Port) Supports(m jesd216.Mode) bool {
	return m == jesd216.ModeSPI
}

// Exchange runs one frame as a single transfer.
func (p *Port) Exchange(f *jesd216.Frame, tx, rx []byte) error {
	if p.conn == nil {
		return jesd216.ErrNotStarted
	}
	return jesd216.SerialExchange(p.conn, f, tx, rx)
}

// Close closes the SPI port when it was opened by Open.
func (p *Port) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer.Close()
}

// csConn drives a GPIO chip select around each transfer.
type csConn struct {
	conn spi.Conn
	cs   gpio.PinOut
}

func (c *csConn) Tx(w, r []byte) error {
	if err := c.cs.Out(gpio.Low); err != nil {
		return fmt.Errorf("chip select: %w", err)
	}
	err := c.conn.Tx(w, r)
	if csErr := c.cs.Out(gpio.High); err == nil && csErr != nil {
		err = fmt.Errorf("chip select: %w", csErr)
	}
	return err
}
