package flashprog

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/flashsim"
	"github.com/moffa90/go-snor/image"
	"github.com/moffa90/go-snor/jesd216"
	"github.com/moffa90/go-snor/m25q"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

const (
	testSectors    = 4
	testSectorSize = 4096
)

// MockDevice is an in-memory flash.Device that records the calls it gets
type MockDevice struct {
	desc     flash.Descriptor
	mem      []byte
	pending  bool
	erased   []uint32
	eraseAll int
	programs int
	stuck    map[uint32]bool
	flip     map[uint32]byte
	readErr  error
}

func NewMockDevice() *MockDevice {
	d := &MockDevice{
		desc: flash.Descriptor{
			Attributes:   flash.AttrErasedIsOne,
			PageSize:     256,
			SectorsCount: testSectors,
			SectorSize:   testSectorSize,
		},
		mem:   bytes.Repeat([]byte{0x00}, testSectors*testSectorSize),
		stuck: make(map[uint32]bool),
		flip:  make(map[uint32]byte),
	}
	return d
}

func (m *MockDevice) Descriptor() *flash.Descriptor { return &m.desc }

func (m *MockDevice) Read(offset uint32, buf []byte) error {
	if m.readErr != nil {
		return m.readErr
	}
	if m.pending {
		return flash.ErrBusyErasing
	}
	copy(buf, m.mem[offset:])
	for i := range buf {
		buf[i] ^= m.flip[offset+uint32(i)]
	}
	return nil
}

func (m *MockDevice) Program(offset uint32, buf []byte) error {
	if m.pending {
		return flash.ErrBusyErasing
	}
	m.programs++
	for i, b := range buf {
		m.mem[int(offset)+i] &= b
	}
	return nil
}

func (m *MockDevice) StartEraseAll() error {
	m.eraseAll++
	m.fill(0, len(m.mem))
	m.pending = true
	return nil
}

func (m *MockDevice) StartEraseSector(sector uint32) error {
	m.erased = append(m.erased, sector)
	m.fill(int(m.desc.SectorOffset(sector)), int(m.desc.SectorSize))
	m.pending = true
	return nil
}

func (m *MockDevice) fill(at, n int) {
	for i := at; i < at+n; i++ {
		if !m.stuck[uint32(i)] {
			m.mem[i] = 0xFF
		}
	}
}

// QueryErase reports busy once per erase
func (m *MockDevice) QueryErase() (time.Duration, error) {
	if m.pending {
		m.pending = false
		return 0, flash.ErrBusyErasing
	}
	return 0, nil
}

func (m *MockDevice) VerifyErase(sector uint32) error {
	start := m.desc.SectorOffset(sector)
	for i := start; i < start+m.desc.SectorSize; i++ {
		if m.mem[i] != 0xFF {
			return &flash.VerifyError{Offset: i, Value: m.mem[i]}
		}
	}
	return nil
}

// Mock logger for testing
type MockLogger struct {
	debugMsgs []string
	infoMsgs  []string
	errorMsgs []string
}

func (l *MockLogger) Debug(msg string, kv ...interface{}) {
	l.debugMsgs = append(l.debugMsgs, msg)
}

func (l *MockLogger) Info(msg string, kv ...interface{}) {
	l.infoMsgs = append(l.infoMsgs, msg)
}

func (l *MockLogger) Error(msg string, kv ...interface{}) {
	l.errorMsgs = append(l.errorMsgs, msg)
}

func data(n int, seed byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = seed + byte(i*7)
	}
	return b
}

// testImage has one segment straddling sectors 0 and 1 and one in sector 3
func testImage() *image.Image {
	return &image.Image{Segments: []*image.Segment{
		{Offset: testSectorSize - 100, Data: data(300, 1)},
		{Offset: 3*testSectorSize + 16, Data: data(64, 9)},
	}}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		options []Option
		check   func(t *testing.T, c Config)
	}{
		{
			name: "defaults",
			check: func(t *testing.T, c Config) {
				if c.ChunkSize != DefaultChunkSize || !c.VerifyAfterProgram || c.EraseAll || c.BlankCheck {
					t.Errorf("unexpected defaults: %+v", c)
				}
			},
		},
		{
			name: "with all options",
			options: []Option{
				WithProgressCallback(func(p Progress) {}),
				WithLogger(&MockLogger{}),
				WithChunkSize(64),
				WithEraseAll(true),
				WithBlankCheck(true),
				WithVerifyAfterProgram(false),
			},
			check: func(t *testing.T, c Config) {
				if c.ChunkSize != 64 || c.VerifyAfterProgram || !c.EraseAll || !c.BlankCheck {
					t.Errorf("options not applied: %+v", c)
				}
			},
		},
		{
			name:    "invalid chunk size ignored",
			options: []Option{WithChunkSize(0), WithChunkSize(-5)},
			check: func(t *testing.T, c Config) {
				if c.ChunkSize != DefaultChunkSize {
					t.Errorf("ChunkSize = %d, want %d", c.ChunkSize, DefaultChunkSize)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prog := New(NewMockDevice(), tt.options...)
			if prog.tracer == nil {
				t.Error("tracer not set")
			}
			tt.check(t, prog.config)
		})
	}
}

func TestNewNilDevicePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New(nil) did not panic")
		}
	}()
	New(nil)
}

func TestProgram(t *testing.T) {
	dev := NewMockDevice()
	img := testImage()

	var progressCalls []Progress
	prog := New(dev, WithChunkSize(128), WithProgressCallback(func(p Progress) {
		progressCalls = append(progressCalls, p)
	}))

	if err := prog.Program(context.Background(), img); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]uint32{0, 1, 3}, dev.erased); diff != "" {
		t.Errorf("erased sectors mismatch (-want +got):\n%s", diff)
	}
	for _, seg := range img.Segments {
		got := dev.mem[seg.Offset : seg.Offset+uint32(len(seg.Data))]
		if diff := cmp.Diff(seg.Data, got); diff != "" {
			t.Errorf("segment 0x%X mismatch (-want +got):\n%s", seg.Offset, diff)
		}
	}
	// Bytes around the image are left erased
	if dev.mem[testSectorSize-101] != 0xFF {
		t.Errorf("byte before image = 0x%02X, want 0xFF", dev.mem[testSectorSize-101])
	}
	// 300 bytes in 128 byte chunks, 64 bytes in one chunk
	if dev.programs != 4 {
		t.Errorf("program calls = %d, want 4", dev.programs)
	}

	phases := make(map[string]bool)
	last := -1.0
	for _, p := range progressCalls {
		phases[p.Phase] = true
		if p.Percentage < last {
			t.Errorf("percentage went backwards: %.1f after %.1f", p.Percentage, last)
		}
		last = p.Percentage
	}
	for _, phase := range []string{PhaseErasing, PhaseProgramming, PhaseVerifying, PhaseComplete} {
		if !phases[phase] {
			t.Errorf("missing phase: %s", phase)
		}
	}

	final := progressCalls[len(progressCalls)-1]
	if final.Phase != PhaseComplete || final.Percentage != 100 || final.BytesWritten != 364 {
		t.Errorf("final progress = %+v", final)
	}
}

func TestProgramEraseAll(t *testing.T) {
	dev := NewMockDevice()
	prog := New(dev, WithEraseAll(true))

	if err := prog.Program(context.Background(), testImage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dev.eraseAll != 1 {
		t.Errorf("erase all calls = %d, want 1", dev.eraseAll)
	}
	if len(dev.erased) != 0 {
		t.Errorf("sector erases = %v, want none", dev.erased)
	}
	// Sector 2 is untouched by the image but erased with the device
	if dev.mem[2*testSectorSize] != 0xFF {
		t.Error("sector 2 not erased")
	}
}

func TestProgramErrors(t *testing.T) {
	tests := []struct {
		name    string
		img     *image.Image
		opts    []Option
		setup   func(d *MockDevice)
		check   func(t *testing.T, err error)
		wantErr string
	}{
		{
			name:    "nil image",
			wantErr: "image cannot be nil",
		},
		{
			name: "segment out of range",
			img: &image.Image{Segments: []*image.Segment{
				{Offset: testSectors*testSectorSize - 4, Data: data(8, 0)},
			}},
			check: func(t *testing.T, err error) {
				var rangeErr *SegmentOutOfRangeError
				if !errors.As(err, &rangeErr) {
					t.Fatalf("error = %v, want SegmentOutOfRangeError", err)
				}
				if rangeErr.Size != testSectors*testSectorSize {
					t.Errorf("Size = %d", rangeErr.Size)
				}
			},
			wantErr: "out of range",
		},
		{
			name:  "blank check",
			img:   testImage(),
			opts:  []Option{WithBlankCheck(true)},
			setup: func(d *MockDevice) { d.stuck[3*testSectorSize+2] = true },
			check: func(t *testing.T, err error) {
				var verr *flash.VerifyError
				if !errors.As(err, &verr) || verr.Offset != 3*testSectorSize+2 {
					t.Errorf("error = %v, want VerifyError at 0x%X", err, 3*testSectorSize+2)
				}
			},
			wantErr: "blank check sector 3",
		},
		{
			name:  "readback mismatch",
			img:   testImage(),
			setup: func(d *MockDevice) { d.flip[testSectorSize+10] = 0x04 },
			check: func(t *testing.T, err error) {
				var mismatch *ReadbackMismatchError
				if !errors.As(err, &mismatch) {
					t.Fatalf("error = %v, want ReadbackMismatchError", err)
				}
				if mismatch.Offset != testSectorSize+10 || mismatch.Expected^mismatch.Actual != 0x04 {
					t.Errorf("mismatch = %+v", mismatch)
				}
			},
			wantErr: "verify",
		},
		{
			name:  "readback disabled",
			img:   testImage(),
			opts:  []Option{WithVerifyAfterProgram(false)},
			setup: func(d *MockDevice) { d.flip[testSectorSize+10] = 0x04 },
		},
		{
			name:  "read error",
			img:   testImage(),
			setup: func(d *MockDevice) { d.readErr = errors.New("bus fault") },
			check: func(t *testing.T, err error) {
				if !strings.Contains(err.Error(), "bus fault") {
					t.Errorf("error = %v, want bus fault", err)
				}
			},
			wantErr: "read 0x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := NewMockDevice()
			if tt.setup != nil {
				tt.setup(dev)
			}

			err := New(dev, tt.opts...).Program(context.Background(), tt.img)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want substring %q", err, tt.wantErr)
			}
			if tt.check != nil {
				tt.check(t, err)
			}
		})
	}
}

func TestProgramWithContextCancellation(t *testing.T) {
	dev := NewMockDevice()
	ctx, cancel := context.WithCancel(context.Background())

	prog := New(dev, WithProgressCallback(func(p Progress) {
		if p.Phase == PhaseErasing && p.Current == 1 {
			cancel()
		}
	}))

	err := prog.Program(ctx, testImage())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if len(dev.erased) != 1 {
		t.Errorf("erased sectors = %v, want only the first", dev.erased)
	}
	if dev.programs != 0 {
		t.Errorf("program calls = %d, want 0", dev.programs)
	}
}

func TestProgramWithLogging(t *testing.T) {
	logger := &MockLogger{}
	prog := New(NewMockDevice(), WithLogger(logger))

	if err := prog.Program(context.Background(), testImage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if diff := cmp.Diff([]string{"programming image", "programming complete"}, logger.infoMsgs); diff != "" {
		t.Errorf("info messages mismatch (-want +got):\n%s", diff)
	}
	if len(logger.debugMsgs) == 0 {
		t.Error("expected debug log messages, got none")
	}
	if len(logger.errorMsgs) != 0 {
		t.Errorf("unexpected error messages: %v", logger.errorMsgs)
	}
}

func TestProgramSpans(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))

	dev := NewMockDevice()
	prog := New(dev, WithTracer(tp.Tracer("test")))
	if err := prog.Program(context.Background(), testImage()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var names []string
	for _, s := range sr.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"flashprog.erasing", "flashprog.programming", "flashprog.verifying", "flashprog.Program"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("span names mismatch (-want +got):\n%s", diff)
	}

	root := sr.Ended()[3]
	for _, s := range sr.Ended()[:3] {
		if s.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("span %s is not a child of %s", s.Name(), root.Name())
		}
	}

	// A failed phase marks both its span and the root as errors
	sr2 := tracetest.NewSpanRecorder()
	tp2 := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr2))
	dev = NewMockDevice()
	dev.flip[testSectorSize] = 0x80
	prog = New(dev, WithTracer(tp2.Tracer("test")))
	if err := prog.Program(context.Background(), testImage()); err == nil {
		t.Fatal("expected error, got nil")
	}

	for _, s := range sr2.Ended() {
		wantCode := codes.Unset
		if s.Name() == "flashprog.verifying" || s.Name() == "flashprog.Program" {
			wantCode = codes.Error
		}
		if s.Status().Code != wantCode {
			t.Errorf("span %s status = %v, want %v", s.Name(), s.Status().Code, wantCode)
		}
	}
}

func TestDump(t *testing.T) {
	dev := NewMockDevice()
	copy(dev.mem[100:], data(1000, 3))
	prog := New(dev, WithChunkSize(128))

	var buf bytes.Buffer
	if err := prog.Dump(context.Background(), &buf, 100, 1000); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if diff := cmp.Diff(data(1000, 3), buf.Bytes()); diff != "" {
		t.Errorf("dump mismatch (-want +got):\n%s", diff)
	}

	var rangeErr *SegmentOutOfRangeError
	if err := prog.Dump(context.Background(), &buf, testSectors*testSectorSize-10, 11); !errors.As(err, &rangeErr) {
		t.Errorf("error = %v, want SegmentOutOfRangeError", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := prog.Dump(ctx, &buf, 0, 10); !errors.Is(err, context.Canceled) {
		t.Errorf("error = %v, want context.Canceled", err)
	}
}

func TestProgramM25Q(t *testing.T) {
	sim := flashsim.New(flashsim.WithCapacity(0x14))
	drv := m25q.New()
	if err := drv.Start(&m25q.Config{Bus: jesd216.NewBus(sim)}); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer drv.Stop()

	img := &image.Image{Segments: []*image.Segment{
		{Offset: m25q.SectorSize - 10, Data: data(700, 5)},
	}}

	prog := New(drv, WithBlankCheck(true), WithChunkSize(300))
	if err := prog.Program(context.Background(), img); err != nil {
		t.Fatalf("Program() error = %v", err)
	}

	mem := sim.Memory()
	if diff := cmp.Diff(img.Segments[0].Data, mem[m25q.SectorSize-10:m25q.SectorSize+690]); diff != "" {
		t.Errorf("flash contents mismatch (-want +got):\n%s", diff)
	}
	if drv.State() != flash.StateReady {
		t.Errorf("State() = %v, want ready", drv.State())
	}

	var buf bytes.Buffer
	if err := prog.Dump(context.Background(), &buf, m25q.SectorSize-10, 700); err != nil {
		t.Fatalf("Dump() error = %v", err)
	}
	if !bytes.Equal(buf.Bytes(), img.Segments[0].Data) {
		t.Error("dump differs from programmed image")
	}
}
