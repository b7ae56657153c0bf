package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/events"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/split"
	"github.com/maauso/dropthemike/internal/storage"
)

var (
	// ErrNotRunning is returned by Cancel when no split is in progress.
	ErrNotRunning = errors.New("no split running")
	// ErrPublishDisabled is returned when PushToS3 is requested without S3.
	ErrPublishDisabled = fmt.Errorf("push to S3 requested: %w", storage.ErrS3NotConfigured)
)

// LoadInput contains the parameters for loading a source.
type LoadInput struct {
	// SourcePath is the media file to split.
	SourcePath string
	// OutputDir optionally overrides the parent of the "<base>_split" folder.
	OutputDir string
}

// SplitInput contains the parameters for one split.
type SplitInput struct {
	Parts    int
	Quality  audio.Quality
	PushToS3 bool
}

// uploadRemover is implemented by storages that own uploaded sources.
type uploadRemover interface {
	RemoveUpload(path string) error
}

// entry holds the live session behind a Job.
type entry struct {
	session *split.Session
	run     *split.Run
}

// SplitService orchestrates split sessions for the HTTP API.
// It keeps one split.Session per loaded source, dispatches runs on the
// session worker and folds their progress and outcome into the Job record.
type SplitService struct {
	repo    Repository
	prober  media.Prober
	encoder audio.Encoder
	storage storage.Storage
	publish bool
	bus     *events.Bus
	logger  *slog.Logger

	fallbackKbps int
	roots        []string

	// baseCtx outlives requests; Shutdown cancels it.
	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu       sync.Mutex
	sessions map[string]*entry
}

// ServiceOption configures a SplitService.
type ServiceOption func(*SplitService)

// WithStorage sets where stale parts are removed and, when publish is
// true, where produced parts are uploaded.
func WithStorage(st storage.Storage, publish bool) ServiceOption {
	return func(s *SplitService) {
		s.storage = st
		s.publish = publish && st != nil
	}
}

// WithBus sets the event bus that receives lifecycle events.
func WithBus(b *events.Bus) ServiceOption {
	return func(s *SplitService) {
		s.bus = b
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *SplitService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithFallbackBitrate sets the re-encode bitrate used when the source
// bitrate is unknown.
func WithFallbackBitrate(kbps int) ServiceOption {
	return func(s *SplitService) {
		s.fallbackKbps = kbps
	}
}

// NewSplitService creates a new SplitService.
func NewSplitService(repo Repository, prober media.Prober, encoder audio.Encoder, opts ...ServiceOption) *SplitService {
	ctx, stop := context.WithCancel(context.Background())
	s := &SplitService{
		repo:         repo,
		prober:       prober,
		encoder:      encoder,
		logger:       slog.Default(),
		fallbackKbps: audio.DefaultFallbackKbps,
		baseCtx:      ctx,
		stop:         stop,
		sessions:     make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load probes a source once and registers an IDLE session for it.
func (s *SplitService) Load(ctx context.Context, input LoadInput) (*Job, error) {
	if err := s.checkPath(input.SourcePath); err != nil {
		return nil, err
	}
	if input.OutputDir != "" {
		if err := s.checkPath(input.OutputDir); err != nil {
			return nil, err
		}
	}

	desc, err := s.prober.Probe(ctx, input.SourcePath)
	if err != nil {
		return nil, err
	}

	job := New(input.SourcePath, desc)
	job.OutputDir = input.OutputDir

	opts := []split.Option{
		split.WithLogger(s.logger.With(slog.String("session_id", job.ID))),
		split.WithFallbackBitrate(s.fallbackKbps),
	}
	if s.storage != nil {
		opts = append(opts, split.WithCleaner(s.storage))
	}
	session := split.NewSession(input.SourcePath, s.prober, s.encoder, opts...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}
	s.sessions[job.ID] = &entry{session: session}

	s.logger.Info("source loaded",
		slog.String("session_id", job.ID),
		slog.String("source", input.SourcePath),
		slog.Float64("duration_seconds", desc.DurationSeconds),
		slog.Bool("is_video", desc.IsVideo),
	)
	return job.Clone(), nil
}

// Get returns the job snapshot for id.
func (s *SplitService) Get(ctx context.Context, id string) (*Job, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns every job snapshot.
func (s *SplitService) List(ctx context.Context) ([]*Job, error) {
	return s.repo.List(ctx)
}

// Preview describes what splitting id into parts would produce.
func (s *SplitService) Preview(ctx context.Context, id string, parts int) (split.PreviewInfo, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return split.PreviewInfo{}, err
	}
	return split.Preview(job.SourcePath, job.Descriptor, parts)
}

// Split starts a split in the background. Progress and the outcome are
// recorded on the job as they arrive.
func (s *SplitService) Split(ctx context.Context, id string, input SplitInput) (*Job, error) {
	if input.PushToS3 && !s.publish {
		return nil, ErrPublishDisabled
	}
	if input.Quality == "" {
		input.Quality = audio.QualityOriginal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e, job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.run != nil {
		return nil, split.ErrBusy
	}

	run, err := e.session.Start(s.baseCtx, split.Request{
		Parts:     input.Parts,
		Quality:   input.Quality,
		OutputDir: job.OutputDir,
	})
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, e, job, run, input.Quality, false, input.PushToS3)
}

// Resplit re-runs the last successful split with one more part.
func (s *SplitService) Resplit(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.run != nil {
		return nil, split.ErrBusy
	}
	if job.PushToS3 && !s.publish {
		return nil, ErrPublishDisabled
	}

	run, err := e.session.StartResplit(s.baseCtx)
	if err != nil {
		return nil, err
	}
	return s.dispatch(ctx, e, job, run, e.session.LastRequest().Quality, true, job.PushToS3)
}

// Cancel stops the running split of id before its next part.
func (s *SplitService) Cancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, _, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if e.run == nil {
		return ErrNotRunning
	}
	e.run.Cancel()
	return nil
}

// Clear resets id to IDLE. Produced files stay on disk.
func (s *SplitService) Clear(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, job, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.run != nil {
		return nil, split.ErrBusy
	}
	if err := e.session.Clear(); err != nil {
		return nil, err
	}
	if err := job.Reset(); err != nil {
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		return nil, err
	}

	s.bus.Publish(events.SessionClearedEvent{SessionID: id, Timestamp: timestamp()})
	return job, nil
}

// Delete forgets id. Uploaded sources are removed together with the parts
// split next to them; sources loaded by path are left alone.
func (s *SplitService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, job, err := s.lookup(ctx, id)
	if err != nil {
		return err
	}
	if e.run != nil {
		return split.ErrBusy
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	delete(s.sessions, id)

	if r, ok := s.storage.(uploadRemover); ok {
		if err := r.RemoveUpload(job.SourcePath); err != nil {
			s.logger.Warn("failed to remove upload",
				slog.String("session_id", id),
				slog.String("error", err.Error()),
			)
		}
	}

	s.bus.Publish(events.SessionClearedEvent{SessionID: id, Deleted: true, Timestamp: timestamp()})
	return nil
}

// Running returns how many sessions have a split in flight.
func (s *SplitService) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.sessions {
		if e.run != nil {
			n++
		}
	}
	return n
}

// Shutdown cancels running splits and waits for them to finish recording.
func (s *SplitService) Shutdown(ctx context.Context) error {
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// lookup returns the live entry and a job snapshot. Callers hold s.mu.
// An entry whose run is set stays busy until its outcome is recorded.
func (s *SplitService) lookup(ctx context.Context, id string) (*entry, *Job, error) {
	e, ok := s.sessions[id]
	if !ok {
		return nil, nil, ErrJobNotFound
	}
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return e, job, nil
}

// dispatch records the run start and hands the run to a drain goroutine.
// Callers hold s.mu.
func (s *SplitService) dispatch(ctx context.Context, e *entry, job *Job, run *split.Run, quality audio.Quality, resplit, push bool) (*Job, error) {
	if err := job.Start(run.Parts, quality, resplit, push); err != nil {
		run.Cancel()
		return nil, err
	}
	if err := s.repo.Save(ctx, job); err != nil {
		run.Cancel()
		return nil, err
	}
	e.run = run

	s.bus.Publish(events.SplitStartedEvent{
		SessionID: job.ID,
		Source:    job.SourcePath,
		Parts:     run.Parts,
		Resplit:   resplit,
		Timestamp: timestamp(),
	})

	s.wg.Add(1)
	go s.drain(job.ID, e, run, push)

	return job, nil
}

// drain consumes a run's progress and outcome in order.
func (s *SplitService) drain(id string, e *entry, run *split.Run, push bool) {
	defer s.wg.Done()
	started := time.Now()

	for p := range run.Progress {
		s.update(id, func(j *Job) { j.UpdateProgress(p.Current, p.Total) })
		s.bus.Publish(events.SegmentEncodedEvent{SessionID: id, Current: p.Current, Total: p.Total})
	}
	outcome := <-run.Done

	if outcome.Err != nil {
		segment := split.FailedSegment(outcome.Err)
		s.settle(id, e, run, func(j *Job) { _ = j.Fail(outcome.Err.Error(), segment) })
		s.bus.Publish(events.SplitFailedEvent{
			SessionID: id,
			Parts:     outcome.Parts,
			Segment:   segment,
			Cancelled: errors.Is(outcome.Err, audio.ErrCancelled),
			Error:     outcome.Err.Error(),
			Timestamp: timestamp(),
		})
	} else {
		var urls []string
		var publishErr error
		if push {
			urls, publishErr = s.publishParts(id, outcome.Files)
		}
		s.settle(id, e, run, func(j *Job) {
			_ = j.Complete(outcome.Files, urls)
			if publishErr != nil {
				j.SetPublishError(publishErr.Error())
			}
		})
		s.bus.Publish(events.SplitCompletedEvent{
			SessionID: id,
			Parts:     outcome.Parts,
			Files:     outcome.Files,
			Elapsed:   time.Since(started).Seconds(),
			Timestamp: timestamp(),
		})
	}
}

// publishParts uploads every part under "<id>/<name>".
func (s *SplitService) publishParts(id string, files []string) ([]string, error) {
	urls := make([]string, 0, len(files))
	for _, f := range files {
		key := path.Join(id, filepath.Base(f))
		url, err := storage.PublishFile(s.baseCtx, s.storage, key, f)
		if err != nil {
			s.logger.Error("failed to publish part",
				slog.String("session_id", id),
				slog.String("file", f),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		urls = append(urls, url)
	}
	return urls, nil
}

// update applies fn to the stored job. Jobs deleted meanwhile are skipped.
func (s *SplitService) update(id string, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateLocked(id, fn)
}

// settle records the outcome of run and releases the entry in one step, so
// a terminal phase is never observed while the entry is still busy.
func (s *SplitService) settle(id string, e *entry, run *split.Run, fn func(*Job)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateLocked(id, fn)
	if e.run == run {
		e.run = nil
	}
}

func (s *SplitService) updateLocked(id string, fn func(*Job)) {
	job, err := s.repo.FindByID(s.baseCtx, id)
	if err != nil {
		return
	}
	fn(job)
	if err := s.repo.Save(s.baseCtx, job); err != nil {
		s.logger.Error("failed to save session",
			slog.String("session_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
