package flashsim

// Options holds the simulated part configuration.
type Options struct {
	// Manufacturer is the JEDEC manufacturer ID
	Manufacturer byte

	// MemoryType is the memory type ID
	MemoryType byte

	// Capacity is the capacity code; the device holds 1<<Capacity bytes
	Capacity byte

	// EraseLatency is the number of status reads an erase stays busy for
	EraseLatency int

	// ProgramLatency is the number of status reads a page program stays
	// busy for
	ProgramLatency int
}

func defaultOptions() Options {
	return Options{
		Manufacturer:   0x20,
		MemoryType:     0xBA,
		Capacity:       0x18,
		EraseLatency:   2,
		ProgramLatency: 1,
	}
}

// Option configures a simulated device.
type Option func(*Options)

// WithID sets the manufacturer and memory type IDs.
func WithID(manufacturer, memoryType byte) Option {
	return func(o *Options) {
		o.Manufacturer = manufacturer
		o.MemoryType = memoryType
	}
}

// WithCapacity sets the capacity code. 0x14 is 1 MiB, 0x18 is 16 MiB.
func WithCapacity(code byte) Option {
	return func(o *Options) {
		if code >= 0x10 && code <= 0x1C {
			o.Capacity = code
		}
	}
}

// WithEraseLatency sets how many status reads an erase stays busy for.
func WithEraseLatency(polls int) Option {
	return func(o *Options) {
		if polls >= 0 {
			o.EraseLatency = polls
		}
	}
}

// WithProgramLatency sets how many status reads a page program stays busy
// for.
func WithProgramLatency(polls int) Option {
	return func(o *Options) {
		if polls >= 0 {
			o.ProgramLatency = polls
		}
	}
}
