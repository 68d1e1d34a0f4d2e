package flashprog

import (
	"github.com/moffa90/go-snor/flash"
	"go.opentelemetry.io/otel/trace"
)

// DefaultChunkSize is the default number of bytes handed to one
// flash.Device.Program call.
const DefaultChunkSize = 256

// Config holds the programmer configuration.
type Config struct {
	// ProgressCallback is called during programming to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger flash.Logger

	// Tracer creates one span per programming phase. Defaults to the
	// global otel tracer provider.
	Tracer trace.Tracer

	// ChunkSize is the maximum data size per program call and per
	// readback comparison
	ChunkSize int

	// EraseAll erases the whole device instead of the sectors the image
	// touches
	EraseAll bool

	// BlankCheck verifies every erased sector reads as erased before
	// programming
	BlankCheck bool

	// VerifyAfterProgram enables readback verification after programming
	VerifyAfterProgram bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		ChunkSize:          DefaultChunkSize,
		VerifyAfterProgram: true,
	}
}

// Option is a functional option for configuring the Programmer.
type Option func(*Config)

// WithProgressCallback sets a callback function to track programming progress.
//
// Example:
//
//	prog := flashprog.New(dev,
//	    flashprog.WithProgressCallback(func(p flashprog.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for the programmer operations.
//
// Example:
//
//	prog := flashprog.New(dev, flashprog.WithLogger(logging.Zap(sugar)))
func WithLogger(logger flash.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithTracer sets the tracer used for phase spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *Config) {
		c.Tracer = tracer
	}
}

// WithChunkSize sets the maximum data size per program call.
// Non-positive sizes are ignored.
//
// Example:
//
//	prog := flashprog.New(dev, flashprog.WithChunkSize(4096))
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithEraseAll erases the whole device before programming.
func WithEraseAll(all bool) Option {
	return func(c *Config) {
		c.EraseAll = all
	}
}

// WithBlankCheck enables blank checking of erased sectors.
func WithBlankCheck(check bool) Option {
	return func(c *Config) {
		c.BlankCheck = check
	}
}

// WithVerifyAfterProgram enables or disables readback verification.
// Default is true.
//
// Example:
//
//	prog := flashprog.New(dev, flashprog.WithVerifyAfterProgram(false))
func WithVerifyAfterProgram(verify bool) Option {
	return func(c *Config) {
		c.VerifyAfterProgram = verify
	}
}
