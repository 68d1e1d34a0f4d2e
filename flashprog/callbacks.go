package flashprog

import "time"

// Programming phases reported through Progress.Phase.
const (
	PhaseErasing     = "erasing"
	PhaseProgramming = "programming"
	PhaseVerifying   = "verifying"
	PhaseComplete    = "complete"
)

// Progress contains information about the programming progress.
// Passed to ProgressCallback during programming operations.
type Progress struct {
	// Phase describes the current operation phase:
	//   "erasing"     - Erasing (and optionally blank-checking) sectors
	//   "programming" - Writing image data
	//   "verifying"   - Reading back and comparing
	//   "complete"    - Operation completed successfully
	Phase string

	// Current is the number of units done in this phase: sectors while
	// erasing, bytes while programming or verifying
	Current int

	// Total is the number of units in this phase
	Total int

	// Percentage is the overall completion percentage (0.0 to 100.0)
	Percentage float64

	// BytesWritten is the total number of bytes programmed so far
	BytesWritten int

	// ElapsedTime is the time elapsed since programming started
	ElapsedTime time.Duration
}

// ProgressCallback is called periodically during programming to report progress.
// Implementations should return quickly to avoid blocking the programming operation.
//
// Example:
//
//	prog := flashprog.New(dev,
//	    flashprog.WithProgressCallback(func(p flashprog.Progress) {
//	        fmt.Printf("[%s] %.1f%% - %d/%d\n",
//	            p.Phase, p.Percentage, p.Current, p.Total)
//	    }),
//	)
type ProgressCallback func(Progress)
