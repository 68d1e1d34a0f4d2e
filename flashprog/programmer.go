package flashprog

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/moffa90/go-snor/flash"
	"github.com/moffa90/go-snor/image"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

const tracerName = "github.com/moffa90/go-snor/flashprog"

// Share of the overall percentage given to each phase.
const (
	erasePercent   = 30
	programPercent = 60
)

// Programmer writes firmware images to a flash device. It handles erasing,
// chunked programming, readback verification and progress tracking.
//
// A Programmer drives a single device and is not safe for concurrent use.
type Programmer struct {
	dev    flash.Device
	config Config
	tracer trace.Tracer
}

// New creates a new Programmer for a started device.
//
// Example:
//
//	drv := m25q.New()
//	if err := drv.Start(&m25q.Config{Bus: bus}); err != nil {
//	    log.Fatal(err)
//	}
//	prog := flashprog.New(drv,
//	    flashprog.WithProgressCallback(progressFunc),
//	    flashprog.WithBlankCheck(true),
//	)
func New(dev flash.Device, opts ...Option) *Programmer {
	if dev == nil {
		panic("device cannot be nil")
	}

	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	return &Programmer{
		dev:    dev,
		config: cfg,
		tracer: tracer,
	}
}

// run tracks one Program call.
type run struct {
	start   time.Time
	total   int
	written int
}

// Program performs the complete programming sequence:
//  1. Check every segment fits in the device
//  2. Erase the sectors the image touches, or the whole device
//  3. Blank check the erased sectors if enabled
//  4. Program all segments in chunks
//  5. Read back and compare if enabled
//
// The operation can be cancelled via context between steps. A cancelled
// erase leaves the device erasing; the caller polls QueryErase before
// issuing other operations.
//
// Example:
//
//	img, _ := image.Load("firmware.hex", 0)
//	err := prog.Program(context.Background(), img)
func (p *Programmer) Program(ctx context.Context, img *image.Image) (err error) {
	if img == nil {
		return fmt.Errorf("image cannot be nil")
	}

	ctx, span := p.tracer.Start(ctx, "flashprog.Program", trace.WithAttributes(
		attribute.Int("image.segments", len(img.Segments)),
		attribute.Int("image.bytes", img.Size()),
	))
	defer func() { endSpan(span, err) }()

	desc := p.dev.Descriptor()
	for _, seg := range img.Segments {
		if seg.End() > desc.Size() {
			return &SegmentOutOfRangeError{
				Offset: seg.Offset,
				Length: len(seg.Data),
				Size:   desc.Size(),
			}
		}
	}

	r := &run{start: time.Now(), total: img.Size()}
	sectors := touchedSectors(desc, img)

	p.logInfo("programming image",
		"segments", len(img.Segments),
		"bytes", r.total,
		"sectors", len(sectors),
		"erase_all", p.config.EraseAll,
	)

	err = p.phase(ctx, PhaseErasing, func(ctx context.Context) error {
		return p.erase(ctx, sectors, r)
	})
	if err != nil {
		return fmt.Errorf("erase: %w", err)
	}

	err = p.phase(ctx, PhaseProgramming, func(ctx context.Context) error {
		return p.program(ctx, img, r)
	})
	if err != nil {
		return fmt.Errorf("program: %w", err)
	}

	if p.config.VerifyAfterProgram {
		err = p.phase(ctx, PhaseVerifying, func(ctx context.Context) error {
			return p.verify(ctx, img, r)
		})
		if err != nil {
			return fmt.Errorf("verify: %w", err)
		}
	}

	p.reportProgress(Progress{
		Phase:        PhaseComplete,
		Current:      r.total,
		Total:        r.total,
		Percentage:   100,
		BytesWritten: r.written,
		ElapsedTime:  time.Since(r.start),
	})

	p.logInfo("programming complete",
		"bytes", r.written,
		"elapsed", time.Since(r.start).String(),
	)

	return nil
}

// phase runs fn inside a child span named after the phase.
func (p *Programmer) phase(ctx context.Context, name string, fn func(context.Context) error) (err error) {
	ctx, span := p.tracer.Start(ctx, "flashprog."+name)
	defer func() { endSpan(span, err) }()

	p.logDebug("phase started", "phase", name)
	if err = fn(ctx); err != nil {
		p.logError("phase failed", "phase", name, "error", err)
	}
	return err
}

// erase erases the touched sectors (or the whole device) and blank checks
// them if enabled.
func (p *Programmer) erase(ctx context.Context, sectors []uint32, r *run) error {
	if p.config.EraseAll {
		p.reportProgress(Progress{
			Phase:       PhaseErasing,
			Total:       1,
			ElapsedTime: time.Since(r.start),
		})
		if err := flash.EraseAll(ctx, p.dev); err != nil {
			return err
		}
		p.reportProgress(Progress{
			Phase:       PhaseErasing,
			Current:     1,
			Total:       1,
			Percentage:  erasePercent,
			ElapsedTime: time.Since(r.start),
		})
	} else {
		for i, sector := range sectors {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cancelled: %w", err)
			}

			if err := flash.EraseSector(ctx, p.dev, sector); err != nil {
				return fmt.Errorf("sector %d: %w", sector, err)
			}

			p.reportProgress(Progress{
				Phase:       PhaseErasing,
				Current:     i + 1,
				Total:       len(sectors),
				Percentage:  erasePercent * float64(i+1) / float64(len(sectors)),
				ElapsedTime: time.Since(r.start),
			})
		}
	}

	if !p.config.BlankCheck {
		return nil
	}

	for _, sector := range sectors {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}
		if err := p.dev.VerifyErase(sector); err != nil {
			return fmt.Errorf("blank check sector %d: %w", sector, err)
		}
	}
	p.logDebug("blank check passed", "sectors", len(sectors))

	return nil
}

// program writes every segment in ChunkSize pieces.
func (p *Programmer) program(ctx context.Context, img *image.Image, r *run) error {
	share := programPercent
	if !p.config.VerifyAfterProgram {
		share = 100 - erasePercent
	}

	for _, seg := range img.Segments {
		for off := 0; off < len(seg.Data); off += p.config.ChunkSize {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cancelled: %w", err)
			}

			end := min(off+p.config.ChunkSize, len(seg.Data))
			addr := seg.Offset + uint32(off)
			if err := p.dev.Program(addr, seg.Data[off:end]); err != nil {
				return fmt.Errorf("0x%08X: %w", addr, err)
			}

			r.written += end - off
			p.reportProgress(Progress{
				Phase:        PhaseProgramming,
				Current:      r.written,
				Total:        r.total,
				Percentage:   erasePercent + float64(share)*float64(r.written)/float64(r.total),
				BytesWritten: r.written,
				ElapsedTime:  time.Since(r.start),
			})
		}
	}

	return nil
}

// verify reads every segment back and compares it with the image.
func (p *Programmer) verify(ctx context.Context, img *image.Image, r *run) error {
	buf := make([]byte, p.config.ChunkSize)
	checked := 0

	for _, seg := range img.Segments {
		for off := 0; off < len(seg.Data); off += p.config.ChunkSize {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("cancelled: %w", err)
			}

			end := min(off+p.config.ChunkSize, len(seg.Data))
			addr := seg.Offset + uint32(off)
			want := seg.Data[off:end]
			got := buf[:len(want)]
			if err := p.dev.Read(addr, got); err != nil {
				return fmt.Errorf("read 0x%08X: %w", addr, err)
			}

			if !bytes.Equal(got, want) {
				for i := range want {
					if got[i] != want[i] {
						return &ReadbackMismatchError{
							Offset:   addr + uint32(i),
							Expected: want[i],
							Actual:   got[i],
						}
					}
				}
			}

			checked += len(want)
			p.reportProgress(Progress{
				Phase:        PhaseVerifying,
				Current:      checked,
				Total:        r.total,
				Percentage:   erasePercent + programPercent + float64(100-erasePercent-programPercent)*float64(checked)/float64(r.total),
				BytesWritten: r.written,
				ElapsedTime:  time.Since(r.start),
			})
		}
	}

	return nil
}

// Dump copies n bytes starting at offset to w.
//
// Example:
//
//	f, _ := os.Create("backup.bin")
//	defer f.Close()
//	err := prog.Dump(ctx, f, 0, int(drv.Descriptor().Size()))
func (p *Programmer) Dump(ctx context.Context, w io.Writer, offset uint32, n int) (err error) {
	desc := p.dev.Descriptor()
	if n < 0 || uint64(offset)+uint64(n) > desc.Size() {
		return &SegmentOutOfRangeError{Offset: offset, Length: n, Size: desc.Size()}
	}

	_, span := p.tracer.Start(ctx, "flashprog.Dump", trace.WithAttributes(
		attribute.Int64("flash.offset", int64(offset)),
		attribute.Int("flash.bytes", n),
	))
	defer func() { endSpan(span, err) }()

	buf := make([]byte, p.config.ChunkSize)
	for n > 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("cancelled: %w", err)
		}

		chunk := buf[:min(n, len(buf))]
		if err := p.dev.Read(offset, chunk); err != nil {
			return fmt.Errorf("read 0x%08X: %w", offset, err)
		}
		if _, err := w.Write(chunk); err != nil {
			return fmt.Errorf("write: %w", err)
		}

		offset += uint32(len(chunk))
		n -= len(chunk)
	}

	return nil
}

// touchedSectors returns the sorted set of sectors any segment overlaps.
func touchedSectors(desc *flash.Descriptor, img *image.Image) []uint32 {
	set := make(map[uint32]struct{})
	for _, seg := range img.Segments {
		if len(seg.Data) == 0 {
			continue
		}
		last := desc.SectorOf(uint32(seg.End() - 1))
		for s := desc.SectorOf(seg.Offset); s <= last; s++ {
			set[s] = struct{}{}
		}
	}

	sectors := maps.Keys(set)
	slices.Sort(sectors)
	return sectors
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// reportProgress calls the progress callback if configured.
func (p *Programmer) reportProgress(progress Progress) {
	if p.config.ProgressCallback != nil {
		p.config.ProgressCallback(progress)
	}
}

// logDebug logs a debug message if a logger is configured.
func (p *Programmer) logDebug(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Debug(msg, keysAndValues...)
	}
}

// logInfo logs an info message if a logger is configured.
func (p *Programmer) logInfo(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Info(msg, keysAndValues...)
	}
}

// logError logs an error message if a logger is configured.
func (p *Programmer) logError(msg string, keysAndValues ...interface{}) {
	if p.config.Logger != nil {
		p.config.Logger.Error(msg, keysAndValues...)
	}
}
