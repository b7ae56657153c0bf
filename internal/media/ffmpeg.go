package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single ffprobe invocation.
const DefaultProbeTimeout = 10 * time.Second

// Static errors for probe failures.
var (
	// ErrNoDuration is returned when the probe output carries no duration.
	ErrNoDuration = errors.New("duration missing from probe output")
	// ErrInvalidDuration is returned when the probed duration is not positive.
	ErrInvalidDuration = errors.New("invalid duration: must be positive")
)

// ProbeError is the single failure surface of the prober. Callers should not
// distinguish further than Reason.
type ProbeError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("probe %s: %s", e.Path, e.Reason)
	}
	return fmt.Sprintf("probe %s: %s: %v", e.Path, e.Reason, e.Err)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// FFprobeProber implements Prober using the ffprobe CLI.
type FFprobeProber struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
	runner      Runner
	timeout     time.Duration
}

// ProberOption configures an FFprobeProber.
type ProberOption func(*FFprobeProber)

// WithRunner sets the process runner, mainly for tests.
func WithRunner(r Runner) ProberOption {
	return func(p *FFprobeProber) {
		p.runner = r
	}
}

// WithTimeout sets the hard timeout of one probe call.
func WithTimeout(d time.Duration) ProberOption {
	return func(p *FFprobeProber) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// NewFFprobeProber creates a new FFprobeProber.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobeProber(ffprobePath string, opts ...ProberOption) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	p := &FFprobeProber{
		ffprobePath: ffprobePath,
		runner:      ExecRunner{},
		timeout:     DefaultProbeTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe runs one ffprobe JSON call against path and normalizes the result.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (Descriptor, error) {
	if err := CheckReadable(path); err != nil {
		return Descriptor{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	out, err := p.runner.Run(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration,size,bit_rate",
		"-show_entries", "stream=codec_name,sample_rate,channels,codec_type",
		"-of", "json",
		path,
	)
	if err != nil {
		return Descriptor{}, &ProbeError{Path: path, Reason: "ffprobe failed", Err: err}
	}

	return ParseDescriptor(path, out)
}

// CheckReadable verifies that path exists and can be opened for reading.
func CheckReadable(path string) error {
	f, err := os.Open(path) // #nosec G304 - path is the user's chosen source file
	if err != nil {
		return &ProbeError{Path: path, Reason: "source not readable", Err: err}
	}
	_ = f.Close()
	return nil
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Duration *string `json:"duration"`
	Size     string  `json:"size"`
	BitRate  string  `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
}

// ParseDescriptor converts raw ffprobe JSON output into a Descriptor.
// Exported for testing without a real ffprobe binary.
func ParseDescriptor(path string, data []byte) (Descriptor, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return Descriptor{}, &ProbeError{Path: path, Reason: "malformed ffprobe output", Err: err}
	}

	if raw.Format.Duration == nil || strings.TrimSpace(*raw.Format.Duration) == "" {
		return Descriptor{}, &ProbeError{Path: path, Reason: "no duration", Err: ErrNoDuration}
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(*raw.Format.Duration), 64)
	if err != nil {
		return Descriptor{}, &ProbeError{Path: path, Reason: "unparseable duration", Err: err}
	}
	if duration <= 0 {
		return Descriptor{}, &ProbeError{
			Path:   path,
			Reason: fmt.Sprintf("duration %.3f", duration),
			Err:    ErrInvalidDuration,
		}
	}

	d := Descriptor{
		Path:            path,
		DurationSeconds: duration,
		SizeBytes:       parseInt64(raw.Format.Size),
		BitrateKbps:     int(parseInt64(raw.Format.BitRate) / 1000),
		AudioCodec:      "unknown",
		SampleRate:      "unknown",
		IsVideo:         IsVideoFile(path),
	}

	if s := selectStream(raw.Streams); s != nil {
		if s.CodecName != "" {
			d.AudioCodec = s.CodecName
		}
		if s.SampleRate != "" {
			d.SampleRate = s.SampleRate
		}
		d.Channels = s.Channels
	}

	return d, nil
}

// selectStream returns the first audio stream, else the first stream.
func selectStream(streams []ffprobeStream) *ffprobeStream {
	for i := range streams {
		if streams[i].CodecType == "audio" {
			return &streams[i]
		}
	}
	if len(streams) > 0 {
		return &streams[0]
	}
	return nil
}

// ffprobe returns numbers as strings.
func parseInt64(s string) int64 {
	n, _ := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	return n
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobeProber)(nil)
