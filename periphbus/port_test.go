package periphbus

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/moffa90/go-snor/jesd216"
)

// fakePort records Connect calls and hands out a fakeConn
type fakePort struct {
	connects []physic.Frequency
	modes    []spi.Mode
	conn     *fakeConn
	err      error
}

func (p *fakePort) String() string { return "fake" }

func (p *fakePort) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.connects = append(p.connects, f)
	p.modes = append(p.modes, mode)
	return p.conn, nil
}

// fakeConn answers each transfer with resp and records chip select state
type fakeConn struct {
	writes [][]byte
	resp   []byte
	cs     *gpiotest.Pin
	csLow  []bool
}

func (c *fakeConn) String() string { return "fake" }

func (c *fakeConn) Duplex() conn.Duplex { return conn.Full }

func (c *fakeConn) TxPackets(p []spi.Packet) error { return errors.New("not implemented") }

func (c *fakeConn) Tx(w, r []byte) error {
	c.writes = append(c.writes, append([]byte(nil), w...))
	if c.cs != nil {
		c.csLow = append(c.csLow, c.cs.Read() == gpio.Low)
	}
	if r != nil {
		copy(r, c.resp)
	}
	return nil
}

func TestPortExchange(t *testing.T) {
	fc := &fakeConn{resp: []byte{0xFF, 0x20, 0xBA, 0x18}}
	fp := &fakePort{conn: fc}
	bus := jesd216.NewBus(New(fp))

	if err := bus.Start(&jesd216.Config{Mode: jesd216.ModeSPI, ClockHz: 25_000_000}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	id := make([]byte, 3)
	if err := jesd216.CmdReceive(bus, 0x9F, id); err != nil {
		t.Fatalf("CmdReceive() error = %v", err)
	}
	if diff := cmp.Diff([]byte{0x20, 0xBA, 0x18}, id); diff != "" {
		t.Errorf("id mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]physic.Frequency{25 * physic.MegaHertz}, fp.connects); diff != "" {
		t.Errorf("connect frequency mismatch (-want +got):\n%s", diff)
	}
	if fp.modes[0] != spi.Mode0 {
		t.Errorf("mode = %v, want Mode0", fp.modes[0])
	}

	if err := jesd216.CmdAddrSend(bus, 0x02, 0x000100, []byte{0xAA}); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]byte{0x02, 0x00, 0x01, 0x00, 0xAA}, fc.writes[1]); diff != "" {
		t.Errorf("wire bytes mismatch (-want +got):\n%s", diff)
	}
}

func TestPortConnectsOnce(t *testing.T) {
	fp := &fakePort{conn: &fakeConn{}}
	p := New(fp)

	for i := 0; i < 3; i++ {
		if err := p.Start(&jesd216.Config{Mode: jesd216.ModeSPI}); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		if err := p.Stop(); err != nil {
			t.Fatalf("Stop() error = %v", err)
		}
	}
	if len(fp.connects) != 1 {
		t.Errorf("connects = %d, want 1", len(fp.connects))
	}
	if fp.connects[0] != DefaultClock {
		t.Errorf("frequency = %v, want %v", fp.connects[0], DefaultClock)
	}
}

func TestPortChipSelect(t *testing.T) {
	cs := &gpiotest.Pin{N: "CS", L: gpio.Low}
	fc := &fakeConn{cs: cs}
	fp := &fakePort{conn: fc}
	p := New(fp, WithChipSelect(cs), WithSPIMode(spi.Mode3))

	if err := p.Start(&jesd216.Config{Mode: jesd216.ModeSPI}); err != nil {
		t.Fatal(err)
	}
	if fp.modes[0] != spi.Mode3|spi.NoCS {
		t.Errorf("mode = %v, want Mode3|NoCS", fp.modes[0])
	}
	if cs.Read() != gpio.High {
		t.Error("chip select not idle high after Start")
	}

	if err := p.Exchange(&jesd216.Frame{Opcode: 0x06, Lines: 1}, nil, nil); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]bool{true}, fc.csLow); diff != "" {
		t.Errorf("chip select during transfer (-want +got):\n%s", diff)
	}
	if cs.Read() != gpio.High {
		t.Error("chip select not released")
	}
}

func TestPortErrors(t *testing.T) {
	p := New(&fakePort{conn: &fakeConn{}})

	if err := p.Exchange(&jesd216.Frame{Opcode: 0x06, Lines: 1}, nil, nil); !errors.Is(err, jesd216.ErrNotStarted) {
		t.Errorf("Exchange() before Start error = %v, want ErrNotStarted", err)
	}
	if p.Supports(jesd216.ModeWide4L) {
		t.Error("Supports(ModeWide4L) = true")
	}

	want := errors.New("busy")
	p = New(&fakePort{err: want})
	if err := p.Start(&jesd216.Config{Mode: jesd216.ModeSPI}); !errors.Is(err, want) {
		t.Errorf("Start() error = %v, want %v", err, want)
	}
}
