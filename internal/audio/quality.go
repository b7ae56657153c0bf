package audio

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Quality is the user's output quality selection.
type Quality string

const (
	// QualityOriginal keeps the source stream when possible.
	QualityOriginal Quality = "original"
	// QualityHigh re-encodes at 320 kbps.
	QualityHigh Quality = "high"
	// QualityGood re-encodes at 256 kbps.
	QualityGood Quality = "good"
	// QualityMedium re-encodes at 192 kbps.
	QualityMedium Quality = "medium"
	// QualityCompact re-encodes at 128 kbps.
	QualityCompact Quality = "compact"
	// QualitySmall re-encodes at 96 kbps.
	QualitySmall Quality = "small"
)

// ErrUnknownQuality is returned by ParseQuality for unrecognized input.
var ErrUnknownQuality = errors.New("unknown quality")

var qualityKbps = map[Quality]int{
	QualityOriginal: 0,
	QualityHigh:     320,
	QualityGood:     256,
	QualityMedium:   192,
	QualityCompact:  128,
	QualitySmall:    96,
}

// Qualities lists the selectable qualities, highest fidelity first.
func Qualities() []Quality {
	return []Quality{QualityOriginal, QualityHigh, QualityGood, QualityMedium, QualityCompact, QualitySmall}
}

// Kbps returns the explicit bitrate of q, or 0 for QualityOriginal.
func (q Quality) Kbps() int {
	return qualityKbps[q]
}

// IsValid returns true if q is one of the selectable qualities.
func (q Quality) IsValid() bool {
	_, ok := qualityKbps[q]
	return ok
}

// ParseQuality accepts a quality name ("medium") or its bitrate ("192").
// An empty string selects QualityOriginal.
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return QualityOriginal, nil
	}
	if q := Quality(s); q.IsValid() {
		return q, nil
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(s, "k")); err == nil {
		for q, kbps := range qualityKbps {
			if kbps == n && kbps > 0 {
				return q, nil
			}
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownQuality, s)
}
