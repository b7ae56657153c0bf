// Package split orchestrates probing, planning and encoding for one loaded
// source file, including the re-split escalation.
package split

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"sync"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
)

// Phase represents the current state of a Session.
type Phase string

const (
	// PhaseIdle means no split has run since the source was loaded or cleared.
	PhaseIdle Phase = "IDLE"
	// PhaseRunning means a split or re-split is in progress.
	PhaseRunning Phase = "RUNNING"
	// PhaseDone means the last split produced every part.
	PhaseDone Phase = "DONE"
	// PhaseFailed means the last split ended with an error.
	PhaseFailed Phase = "FAILED"
)

var (
	// ErrInvalidTransition is returned when an operation is not allowed in the current phase.
	ErrInvalidTransition = errors.New("invalid state transition")
	// ErrBusy is returned when a split is already running.
	ErrBusy = errors.New("split already running")
)

var validTransitions = map[Phase][]Phase{
	PhaseIdle:    {PhaseRunning},
	PhaseRunning: {PhaseDone, PhaseFailed},
	PhaseDone:    {PhaseRunning, PhaseIdle},
	PhaseFailed:  {PhaseRunning, PhaseIdle},
}

// CanTransition reports whether a session may move from one phase to another.
func CanTransition(from, to Phase) bool {
	return slices.Contains(validTransitions[from], to)
}

// Request holds the user's parameters for one split.
type Request struct {
	Parts   int
	Quality audio.Quality
	// OutputDir overrides the source's directory as the parent of the
	// "<base>_split" folder. Empty means the source's directory.
	OutputDir string
}

// Cleaner removes stale part files before a re-split.
type Cleaner interface {
	Cleanup(ctx context.Context, paths []string) error
}

type fileCleaner struct{}

func (fileCleaner) Cleanup(_ context.Context, paths []string) error {
	var errs []error
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Session is the mutable split state for one loaded source file.
// It is safe for concurrent use; the RUNNING phase is the only guard
// against overlapping splits.
type Session struct {
	mu sync.Mutex

	sourcePath   string
	prober       media.Prober
	encoder      audio.Encoder
	cleaner      Cleaner
	logger       *slog.Logger
	fallbackKbps int

	phase         Phase
	request       Request
	lastPartCount int
	lastFiles     []string
	lastErr       error
}

// Option configures a Session.
type Option func(*Session)

// WithCleaner sets how stale parts are removed on re-split.
func WithCleaner(c Cleaner) Option {
	return func(s *Session) {
		if c != nil {
			s.cleaner = c
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFallbackBitrate sets the bitrate used when a re-encode is required
// and the source bitrate is unknown.
func WithFallbackBitrate(kbps int) Option {
	return func(s *Session) {
		if kbps > 0 {
			s.fallbackKbps = kbps
		}
	}
}

// NewSession creates an IDLE session for sourcePath.
func NewSession(sourcePath string, prober media.Prober, encoder audio.Encoder, opts ...Option) *Session {
	s := &Session{
		sourcePath:   sourcePath,
		prober:       prober,
		encoder:      encoder,
		cleaner:      fileCleaner{},
		logger:       slog.Default(),
		fallbackKbps: audio.DefaultFallbackKbps,
		phase:        PhaseIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourcePath returns the loaded source file.
func (s *Session) SourcePath() string {
	return s.sourcePath
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// LastPartCount returns the part count of the last successful split, or 0.
func (s *Session) LastPartCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPartCount
}

// LastFiles returns a copy of the files produced by the last successful split.
func (s *Session) LastFiles() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.lastFiles)
}

// Err returns the error of the last failed split, or nil.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LastRequest returns the parameters of the most recent split.
func (s *Session) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.request
}

// StartSplit runs a split synchronously. It is valid from IDLE, DONE and FAILED.
// progress may be nil.
func (s *Session) StartSplit(ctx context.Context, req Request, progress audio.ProgressFunc) ([]string, error) {
	if err := s.begin(req); err != nil {
		return nil, err
	}
	return s.run(ctx, req, progress)
}

// Resplit runs the split again with one more part, up to segment.MaxParts,
// after removing the previous parts. It is valid only from DONE.
func (s *Session) Resplit(ctx context.Context, progress audio.ProgressFunc) ([]string, error) {
	req, stale, err := s.beginResplit()
	if err != nil {
		return nil, err
	}
	s.removeStale(ctx, stale)
	return s.run(ctx, req, progress)
}

// Clear resets the session to IDLE and forgets produced files.
// Files on disk are kept.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.phase == PhaseRunning:
		return ErrBusy
	case s.phase == PhaseIdle:
		return nil
	case !CanTransition(s.phase, PhaseIdle):
		return ErrInvalidTransition
	}

	s.phase = PhaseIdle
	s.request = Request{}
	s.lastPartCount = 0
	s.lastFiles = nil
	s.lastErr = nil
	return nil
}

// begin atomically moves the session to RUNNING.
func (s *Session) begin(req Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseRunning {
		return ErrBusy
	}
	if !CanTransition(s.phase, PhaseRunning) {
		return ErrInvalidTransition
	}
	s.phase = PhaseRunning
	s.request = req
	return nil
}

// beginResplit atomically moves a DONE session to RUNNING and returns the
// escalated request and the files to remove.
func (s *Session) beginResplit() (Request, []string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == PhaseRunning {
		return Request{}, nil, ErrBusy
	}
	if s.phase != PhaseDone {
		return Request{}, nil, fmt.Errorf("%w: resplit from %s", ErrInvalidTransition, s.phase)
	}

	req := s.request
	req.Parts = segment.NextParts(s.lastPartCount)
	s.phase = PhaseRunning
	s.request = req
	return req, slices.Clone(s.lastFiles), nil
}

// removeStale deletes the previous parts. Failures are logged and ignored
// because the encoder overwrites outputs anyway.
func (s *Session) removeStale(ctx context.Context, paths []string) {
	if len(paths) == 0 {
		return
	}
	if err := s.cleaner.Cleanup(ctx, paths); err != nil {
		s.logger.Warn("failed to remove stale parts",
			slog.String("source", s.sourcePath),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Session) run(ctx context.Context, req Request, progress audio.ProgressFunc) ([]string, error) {
	files, err := s.execute(ctx, req, progress)
	s.finish(req, files, err)
	return files, err
}

func (s *Session) execute(ctx context.Context, req Request, progress audio.ProgressFunc) ([]string, error) {
	quality := req.Quality
	if quality == "" {
		quality = audio.QualityOriginal
	}
	if !quality.IsValid() {
		return nil, fmt.Errorf("%w: %q", audio.ErrUnknownQuality, quality)
	}

	desc, err := s.prober.Probe(ctx, s.sourcePath)
	if err != nil {
		return nil, err
	}
	plan, err := segment.Build(desc, req.Parts)
	if err != nil {
		return nil, err
	}

	dir, err := OutputDir(s.sourcePath, req.OutputDir)
	if err != nil {
		return nil, err
	}

	base := BaseName(s.sourcePath)
	targets := make([]audio.Target, 0, plan.Len())
	for _, w := range plan.Windows {
		targets = append(targets, audio.ResolveTarget(desc, s.sourcePath, w, PartPath(dir, base, w.Index), quality, s.fallbackKbps))
	}

	s.logger.Info("split started",
		slog.String("source", s.sourcePath),
		slog.String("output_dir", dir),
		slog.Int("parts", plan.Len()),
		slog.String("quality", string(quality)),
		slog.String("mode", string(targets[0].Mode)),
		slog.Float64("part_seconds", plan.PartSeconds),
	)

	return s.encoder.EncodeAll(ctx, s.sourcePath, targets, progress)
}

func (s *Session) finish(req Request, files []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		s.phase = PhaseFailed
		s.lastErr = err
		s.logger.Error("split failed",
			slog.String("source", s.sourcePath),
			slog.Int("parts", req.Parts),
			slog.String("error", err.Error()),
		)
		return
	}

	s.phase = PhaseDone
	s.lastErr = nil
	s.lastPartCount = req.Parts
	s.lastFiles = slices.Clone(files)
	s.logger.Info("split completed",
		slog.String("source", s.sourcePath),
		slog.Int("parts", req.Parts),
	)
}

// FailedSegment returns the 1-indexed segment named by err, or 0.
func FailedSegment(err error) int {
	var ee *audio.EncodeError
	if errors.As(err, &ee) {
		return ee.Segment
	}
	return 0
}
