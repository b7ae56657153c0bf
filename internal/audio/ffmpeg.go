package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/maauso/dropthemike/internal/media"
)

// FFmpegEncoder implements Encoder using the ffmpeg CLI, one process per segment.
type FFmpegEncoder struct {
	ffmpegPath  string
	runner      media.Runner
	concurrency int
	logger      *slog.Logger
}

// EncoderOption configures an FFmpegEncoder.
type EncoderOption func(*FFmpegEncoder)

// WithRunner sets the process runner, mainly for tests.
func WithRunner(r media.Runner) EncoderOption {
	return func(e *FFmpegEncoder) {
		e.runner = r
	}
}

// WithConcurrency sets how many segments may encode at once.
// Values below 1 are ignored.
func WithConcurrency(n int) EncoderOption {
	return func(e *FFmpegEncoder) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) EncoderOption {
	return func(e *FFmpegEncoder) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewFFmpegEncoder creates a new FFmpegEncoder.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found in PATH).
func NewFFmpegEncoder(ffmpegPath string, opts ...EncoderOption) *FFmpegEncoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	e := &FFmpegEncoder{
		ffmpegPath:  ffmpegPath,
		runner:      media.ExecRunner{},
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// BuildArgs returns the ffmpeg arguments that materialize target.
func BuildArgs(source string, t Target) []string {
	args := []string{
		"-hide_banner",
		"-v", "error",
		"-i", source,
		"-ss", formatSeconds(t.Start),
	}
	if !t.ToEnd {
		args = append(args, "-t", formatSeconds(t.Duration))
	}
	if t.StripVideo {
		args = append(args, "-vn")
	}
	if t.Mode == ModeCopy {
		args = append(args, "-c:a", "copy")
	} else {
		args = append(args, "-b:a", strconv.Itoa(t.BitrateKbps)+"k")
	}
	return append(args,
		"-f", OutputFormat,
		"-y", // Overwrite output
		t.OutputPath,
	)
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', -1, 64)
}

// Encode implements Encoder.Encode.
func (e *FFmpegEncoder) Encode(ctx context.Context, source string, t Target) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w before part %d: %w", ErrCancelled, t.Index, err)
	}

	start := time.Now()
	if _, err := e.runner.Run(ctx, e.ffmpegPath, BuildArgs(source, t)...); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w during part %d: %w", ErrCancelled, t.Index, ctx.Err())
		}
		diag := err.Error()
		var te *media.ToolError
		if errors.As(err, &te) {
			diag = te.Diagnostic()
		}
		return "", &EncodeError{Segment: t.Index, Diagnostic: diag, Err: err}
	}

	e.logger.Debug("segment encoded",
		slog.Int("part", t.Index),
		slog.String("output", t.OutputPath),
		slog.String("mode", string(t.Mode)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return t.OutputPath, nil
}

// EncodeAll implements Encoder.EncodeAll.
func (e *FFmpegEncoder) EncodeAll(ctx context.Context, source string, targets []Target, onProgress ProgressFunc) ([]string, error) {
	if err := media.CheckReadable(source); err != nil {
		return nil, err
	}
	if onProgress == nil {
		onProgress = func(int, int) {}
	}
	if e.concurrency > 1 && len(targets) > 1 {
		return e.encodeParallel(ctx, source, targets, onProgress)
	}

	total := len(targets)
	outputs := make([]string, 0, total)
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w before part %d: %w", ErrCancelled, i+1, err)
		}
		out, err := e.Encode(ctx, source, t)
		if err != nil {
			return nil, err
		}
		outputs = append(outputs, out)
		onProgress(i+1, total)
	}
	return outputs, nil
}

type segmentResult struct {
	pos  int
	path string
	err  error
}

// encodeParallel runs up to e.concurrency segments at once. Completions are
// buffered so onProgress still fires in ascending index order. After a
// failure at position p, segments above p are cancelled or never started,
// while segments below p run to completion and are still reported.
func (e *FFmpegEncoder) encodeParallel(parent context.Context, source string, targets []Target, onProgress ProgressFunc) ([]string, error) {
	total := len(targets)
	results := make(chan segmentResult, total)
	sem := make(chan struct{}, e.concurrency)

	var mu sync.Mutex
	cancels := make([]context.CancelFunc, total)
	failAt := total // lowest failed position; guarded by mu

	// abandon cancels every segment above pos. It reports whether pos is
	// now the lowest failure.
	abandon := func(pos int) bool {
		mu.Lock()
		defer mu.Unlock()
		if pos >= failAt {
			return false
		}
		failAt = pos
		for _, cancel := range cancels[pos+1:] {
			if cancel != nil {
				cancel()
			}
		}
		return true
	}

	go func() {
		var wg sync.WaitGroup
		for i := range targets {
			select {
			case sem <- struct{}{}:
			case <-parent.Done():
			}
			mu.Lock()
			if i > failAt || parent.Err() != nil {
				mu.Unlock()
				break
			}
			ctx, cancel := context.WithCancel(parent)
			cancels[i] = cancel
			mu.Unlock()

			wg.Add(1)
			go func(pos int) {
				defer wg.Done()
				defer func() { <-sem }()
				defer cancel()
				out, err := e.Encode(ctx, source, targets[pos])
				results <- segmentResult{pos: pos, path: out, err: err}
			}(i)
		}
		wg.Wait()
		close(results)
	}()

	outputs := make([]string, total)
	done := make([]bool, total)
	next := 0
	limit := total
	var failure error

	for r := range results {
		switch {
		case r.err == nil:
			outputs[r.pos] = r.path
			done[r.pos] = true
		case r.pos > limit:
			// Cancelled because a lower segment failed.
		case errors.Is(r.err, ErrCancelled):
			// Parent cancellation; reported below.
		case abandon(r.pos):
			limit, failure = r.pos, r.err
		}
		for next < limit && done[next] {
			next++
			onProgress(next, total)
		}
	}

	if err := parent.Err(); err != nil {
		return nil, fmt.Errorf("%w before part %d: %w", ErrCancelled, next+1, err)
	}
	if failure != nil {
		return nil, failure
	}
	return outputs, nil
}

// Verify interface implementation at compile time.
var _ Encoder = (*FFmpegEncoder)(nil)
