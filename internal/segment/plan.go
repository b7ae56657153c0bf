// Package segment computes equal-length time windows over a source file.
package segment

import (
	"errors"
	"fmt"

	"github.com/maauso/dropthemike/internal/media"
)

const (
	// MinParts is the smallest allowed part count.
	MinParts = 2
	// MaxParts is the largest allowed part count, also the re-split ceiling.
	MaxParts = 20
	// DefaultParts is the part count offered for a newly loaded source.
	DefaultParts = 3
)

// Static errors for planning.
var (
	// ErrOutOfRange is returned when the part count is outside [MinParts, MaxParts].
	ErrOutOfRange = errors.New("part count out of range")
	// ErrInvalidDuration is returned when the descriptor duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// PlanError reports why a plan could not be built.
type PlanError struct {
	Parts    int
	Duration float64
	Err      error
}

func (e *PlanError) Error() string {
	if errors.Is(e.Err, ErrOutOfRange) {
		return fmt.Sprintf("plan %d parts: %v (must be between %d and %d)", e.Parts, e.Err, MinParts, MaxParts)
	}
	return fmt.Sprintf("plan %d parts over %.3fs: %v", e.Parts, e.Duration, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// Window is one contiguous slice of the source.
type Window struct {
	// Index is 1-based.
	Index int
	// Start is the offset in seconds from the start of the source.
	Start float64
	// Duration is the explicit length in seconds. Zero when ToEnd is set.
	Duration float64
	// ToEnd marks the final window, which runs to the end of the stream
	// so rounding never cuts it short.
	ToEnd bool
}

// Plan is the ordered set of windows covering [0, TotalSeconds).
type Plan struct {
	TotalSeconds float64
	PartSeconds  float64
	Windows      []Window
}

// Len returns the number of windows.
func (p Plan) Len() int {
	return len(p.Windows)
}

// ValidateParts checks parts against [MinParts, MaxParts].
func ValidateParts(parts int) error {
	if parts < MinParts || parts > MaxParts {
		return &PlanError{Parts: parts, Err: ErrOutOfRange}
	}
	return nil
}

// Build splits the descriptor's duration into parts equal windows.
// Windows 1..N-1 carry duration/parts; window N is open-ended.
func Build(desc media.Descriptor, parts int) (Plan, error) {
	if err := ValidateParts(parts); err != nil {
		return Plan{}, err
	}
	if desc.DurationSeconds <= 0 {
		return Plan{}, &PlanError{Parts: parts, Duration: desc.DurationSeconds, Err: ErrInvalidDuration}
	}

	partSeconds := desc.DurationSeconds / float64(parts)
	windows := make([]Window, parts)
	for i := range windows {
		w := Window{
			Index: i + 1,
			Start: float64(i) * partSeconds,
		}
		if i == parts-1 {
			w.ToEnd = true
		} else {
			w.Duration = partSeconds
		}
		windows[i] = w
	}

	return Plan{
		TotalSeconds: desc.DurationSeconds,
		PartSeconds:  partSeconds,
		Windows:      windows,
	}, nil
}

// NextParts returns the part count for a re-split: one more than last,
// never above MaxParts.
func NextParts(last int) int {
	return min(last+1, MaxParts)
}
