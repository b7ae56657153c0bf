// Package audio materializes planned segments as compressed audio files.
package audio

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
)

const (
	// OutputExt is the extension of the single supported output container.
	OutputExt = ".mp3"
	// OutputFormat is the ffmpeg muxer name for OutputExt.
	OutputFormat = "mp3"
	// DefaultFallbackKbps is used when a re-encode is needed but the source
	// bitrate is unknown. Tunable through configuration.
	DefaultFallbackKbps = 192
)

// ErrCancelled is returned when a batch is stopped by its context.
var ErrCancelled = errors.New("split cancelled")

// CodecMode selects stream copy or re-encoding.
type CodecMode string

const (
	// ModeCopy re-containerizes without re-encoding.
	ModeCopy CodecMode = "COPY"
	// ModeReencode encodes at an explicit bitrate.
	ModeReencode CodecMode = "REENCODE"
)

// Target is the resolved encoding policy for one segment.
type Target struct {
	// Index is the 1-based segment number.
	Index int
	// OutputPath is overwritten if it exists.
	OutputPath string
	// Start is the seek offset in seconds.
	Start float64
	// Duration is the length in seconds; ignored when ToEnd is set.
	Duration float64
	// ToEnd omits the duration limit so the segment runs to end of stream.
	ToEnd bool
	// Mode is copy or re-encode.
	Mode CodecMode
	// BitrateKbps is 0 for ModeCopy.
	BitrateKbps int
	// StripVideo drops video tracks.
	StripVideo bool
}

// ResolveTarget derives the encoding policy of one window.
//
// An explicit quality always re-encodes at its bitrate. "Original" re-encodes
// video sources and non-mp3 sources at the probed bitrate (fallbackKbps when
// unknown), and stream-copies mp3 sources.
func ResolveTarget(desc media.Descriptor, source string, w segment.Window, outputPath string, q Quality, fallbackKbps int) Target {
	if fallbackKbps <= 0 {
		fallbackKbps = DefaultFallbackKbps
	}

	t := Target{
		Index:      w.Index,
		OutputPath: outputPath,
		Start:      w.Start,
		Duration:   w.Duration,
		ToEnd:      w.ToEnd,
		StripVideo: desc.IsVideo,
	}

	switch {
	case q.Kbps() > 0:
		t.Mode = ModeReencode
		t.BitrateKbps = q.Kbps()
	case desc.IsVideo || strings.ToLower(filepath.Ext(source)) != OutputExt:
		t.Mode = ModeReencode
		t.BitrateKbps = fallbackKbps
		if desc.BitrateKbps > 0 {
			t.BitrateKbps = desc.BitrateKbps
		}
	default:
		t.Mode = ModeCopy
	}

	return t
}

// ProgressFunc receives (current, total) after each completed segment.
type ProgressFunc func(current, total int)

// Encoder defines the interface for writing planned segments to disk.
type Encoder interface {
	// Encode writes one segment and returns its output path.
	Encode(ctx context.Context, source string, target Target) (string, error)

	// EncodeAll writes every target in order and returns the output paths.
	// onProgress fires once per completed segment in ascending order; the
	// first failure aborts the batch and leaves written files in place.
	EncodeAll(ctx context.Context, source string, targets []Target, onProgress ProgressFunc) ([]string, error)
}

// EncodeError reports the failed segment and the transcoder's diagnostic.
type EncodeError struct {
	// Segment is 1-based.
	Segment    int
	Diagnostic string
	Err        error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("ffmpeg error on part %d: %s", e.Segment, e.Diagnostic)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}
