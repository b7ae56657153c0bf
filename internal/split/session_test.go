package split

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (media.Descriptor, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.Descriptor), args.Error(1)
}

// fakeEncoder writes every target to disk and reports progress like the
// real encoder. failOn aborts at that 1-indexed segment; gate, when set,
// holds the batch until it is closed or the context ends.
type fakeEncoder struct {
	mu      sync.Mutex
	batches [][]audio.Target
	failOn  int
	gate    chan struct{}
}

func (f *fakeEncoder) Encode(_ context.Context, _ string, t audio.Target) (string, error) {
	if err := os.WriteFile(t.OutputPath, []byte("mp3"), 0600); err != nil {
		return "", err
	}
	return t.OutputPath, nil
}

func (f *fakeEncoder) EncodeAll(ctx context.Context, source string, targets []audio.Target, onProgress audio.ProgressFunc) ([]string, error) {
	f.mu.Lock()
	f.batches = append(f.batches, targets)
	f.mu.Unlock()

	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
		}
	}

	files := make([]string, 0, len(targets))
	for i, t := range targets {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w before part %d: %w", audio.ErrCancelled, i+1, err)
		}
		if t.Index == f.failOn {
			return nil, &audio.EncodeError{Segment: t.Index, Diagnostic: "Conversion failed!", Err: errors.New("exit status 1")}
		}
		out, err := f.Encode(ctx, source, t)
		if err != nil {
			return nil, err
		}
		files = append(files, out)
		if onProgress != nil {
			onProgress(i+1, len(targets))
		}
	}
	return files, nil
}

func (f *fakeEncoder) lastBatch() []audio.Target {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.batches) == 0 {
		return nil
	}
	return f.batches[len(f.batches)-1]
}

func (f *fakeEncoder) batchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

// recordingCleaner records every cleanup request and delegates to disk.
type recordingCleaner struct {
	calls [][]string
	err   error
}

func (c *recordingCleaner) Cleanup(ctx context.Context, paths []string) error {
	c.calls = append(c.calls, paths)
	if err := (fileCleaner{}).Cleanup(ctx, paths); err != nil {
		return err
	}
	return c.err
}

// newTestSession loads a readable 600s source named name into a new session.
func newTestSession(t *testing.T, name string, enc *fakeEncoder, opts ...Option) (*Session, string) {
	t.Helper()
	source := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(source, []byte("source"), 0600))

	prober := &mockProber{}
	prober.On("Probe", mock.Anything, source).Return(media.Descriptor{
		Path:            source,
		DurationSeconds: 600,
		BitrateKbps:     128,
		IsVideo:         media.IsVideoFile(source),
	}, nil)

	return NewSession(source, prober, enc, opts...), source
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to Phase
		want     bool
	}{
		{PhaseIdle, PhaseRunning, true},
		{PhaseIdle, PhaseDone, false},
		{PhaseRunning, PhaseDone, true},
		{PhaseRunning, PhaseFailed, true},
		{PhaseRunning, PhaseIdle, false},
		{PhaseDone, PhaseRunning, true},
		{PhaseDone, PhaseIdle, true},
		{PhaseFailed, PhaseRunning, true},
		{PhaseFailed, PhaseIdle, true},
		{PhaseFailed, PhaseDone, false},
		{Phase("BOGUS"), PhaseRunning, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanTransition(tt.from, tt.to), "%s -> %s", tt.from, tt.to)
	}
}

func TestSession_StartSplit(t *testing.T) {
	enc := &fakeEncoder{}
	s, source := newTestSession(t, "talk.mp3", enc)
	assert.Equal(t, PhaseIdle, s.Phase())

	var progress [][2]int
	files, err := s.StartSplit(context.Background(), Request{Parts: 3, Quality: audio.QualityOriginal}, func(c, n int) {
		progress = append(progress, [2]int{c, n})
	})
	require.NoError(t, err)

	dir := filepath.Join(filepath.Dir(source), "talk_split")
	assert.Equal(t, []string{
		filepath.Join(dir, "talk_part1.mp3"),
		filepath.Join(dir, "talk_part2.mp3"),
		filepath.Join(dir, "talk_part3.mp3"),
	}, files)
	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, progress)

	assert.Equal(t, PhaseDone, s.Phase())
	assert.Equal(t, 3, s.LastPartCount())
	assert.Equal(t, files, s.LastFiles())
	assert.NoError(t, s.Err())

	targets := enc.lastBatch()
	require.Len(t, targets, 3)
	assert.Equal(t, 0.0, targets[0].Start)
	assert.Equal(t, 200.0, targets[0].Duration)
	assert.Equal(t, 200.0, targets[1].Start)
	assert.Equal(t, 400.0, targets[2].Start)
	assert.True(t, targets[2].ToEnd)
	for _, tg := range targets {
		assert.Equal(t, audio.ModeCopy, tg.Mode)
	}
}

func TestSession_StartSplit_EmptyQualityIsOriginal(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "talk.wav", enc, WithFallbackBitrate(160))

	_, err := s.StartSplit(context.Background(), Request{Parts: 2}, nil)
	require.NoError(t, err)

	for _, tg := range enc.lastBatch() {
		assert.Equal(t, audio.ModeReencode, tg.Mode)
		assert.Equal(t, 128, tg.BitrateKbps, "probed bitrate wins over the fallback")
	}
}

func TestSession_StartSplit_OutputDirOverride(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "Lecture 1.mp4", enc)
	override := filepath.Join(t.TempDir(), "exports")

	files, err := s.StartSplit(context.Background(), Request{Parts: 2, Quality: audio.QualityMedium, OutputDir: override}, nil)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(override, "Lecture 1_split", "Lecture 1_part1.mp3"), files[0])
	assert.DirExists(t, filepath.Join(override, "Lecture 1_split"))
	for _, tg := range enc.lastBatch() {
		assert.True(t, tg.StripVideo)
		assert.Equal(t, 192, tg.BitrateKbps)
	}
}

func TestSession_StartSplit_Idempotent(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "talk.mp3", enc)
	req := Request{Parts: 4, Quality: audio.QualityOriginal}

	first, err := s.StartSplit(context.Background(), req, nil)
	require.NoError(t, err)
	second, err := s.StartSplit(context.Background(), req, nil)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, second, 4)
}

func TestSession_StartSplit_EncodeFailure(t *testing.T) {
	enc := &fakeEncoder{failOn: 2}
	s, source := newTestSession(t, "talk.mp3", enc)

	var calls int
	files, err := s.StartSplit(context.Background(), Request{Parts: 3}, func(int, int) { calls++ })
	require.Error(t, err)
	assert.Nil(t, files)
	assert.Equal(t, 1, calls)

	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Equal(t, err, s.Err())
	assert.Equal(t, 2, FailedSegment(err))
	assert.Empty(t, s.LastFiles())
	assert.FileExists(t, filepath.Join(filepath.Dir(source), "talk_split", "talk_part1.mp3"), "written parts stay on disk")

	// Retry from FAILED with unchanged parameters is allowed.
	enc.failOn = 0
	files, err = s.StartSplit(context.Background(), Request{Parts: 3}, nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)
	assert.Equal(t, PhaseDone, s.Phase())
}

func TestSession_StartSplit_ProbeFailure(t *testing.T) {
	enc := &fakeEncoder{}
	prober := &mockProber{}
	probeErr := &media.ProbeError{Path: "/missing.mp3", Reason: "source not readable", Err: os.ErrNotExist}
	prober.On("Probe", mock.Anything, "/missing.mp3").Return(media.Descriptor{}, probeErr)

	s := NewSession("/missing.mp3", prober, enc)
	_, err := s.StartSplit(context.Background(), Request{Parts: 3}, nil)

	var pe *media.ProbeError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Zero(t, enc.batchCount())
	assert.Zero(t, FailedSegment(err))
	prober.AssertExpectations(t)
}

func TestSession_StartSplit_PlanFailure(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "talk.mp3", enc)

	_, err := s.StartSplit(context.Background(), Request{Parts: 21}, nil)
	assert.ErrorIs(t, err, segment.ErrOutOfRange)
	assert.Equal(t, PhaseFailed, s.Phase())
	assert.Zero(t, enc.batchCount())
}

func TestSession_StartSplit_UnknownQuality(t *testing.T) {
	s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{})

	_, err := s.StartSplit(context.Background(), Request{Parts: 3, Quality: "lossless"}, nil)
	assert.ErrorIs(t, err, audio.ErrUnknownQuality)
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestSession_Resplit(t *testing.T) {
	enc := &fakeEncoder{}
	cleaner := &recordingCleaner{}
	s, _ := newTestSession(t, "talk.mp3", enc, WithCleaner(cleaner))
	override := t.TempDir()

	first, err := s.StartSplit(context.Background(), Request{Parts: 3, Quality: audio.QualityCompact, OutputDir: override}, nil)
	require.NoError(t, err)

	var last [2]int
	files, err := s.Resplit(context.Background(), func(c, n int) { last = [2]int{c, n} })
	require.NoError(t, err)

	require.Len(t, cleaner.calls, 1)
	assert.Equal(t, first, cleaner.calls[0])
	assert.Len(t, files, 4)
	assert.Equal(t, [2]int{4, 4}, last)
	assert.Equal(t, 4, s.LastPartCount())
	assert.Equal(t, Request{Parts: 4, Quality: audio.QualityCompact, OutputDir: override}, s.LastRequest())
	for _, tg := range enc.lastBatch() {
		assert.Equal(t, 128, tg.BitrateKbps, "quality carries over")
	}
}

func TestSession_Resplit_CeilingHolds(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "talk.mp3", enc)

	_, err := s.StartSplit(context.Background(), Request{Parts: segment.MaxParts}, nil)
	require.NoError(t, err)

	files, err := s.Resplit(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, files, segment.MaxParts)
	assert.Equal(t, segment.MaxParts, s.LastPartCount())
	assert.Equal(t, 2, enc.batchCount())
}

func TestSession_Resplit_CleanupErrorIgnored(t *testing.T) {
	cleaner := &recordingCleaner{err: errors.New("permission denied")}
	s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{}, WithCleaner(cleaner))

	_, err := s.StartSplit(context.Background(), Request{Parts: 2}, nil)
	require.NoError(t, err)

	files, err := s.Resplit(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, files, 3)
}

func TestSession_Resplit_DeletesStaleFiles(t *testing.T) {
	s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{failOn: 0})

	first, err := s.StartSplit(context.Background(), Request{Parts: 2}, nil)
	require.NoError(t, err)

	// Plant an extra stale path that the encoder will not rewrite.
	stale := first[1] + ".old"
	require.NoError(t, os.WriteFile(stale, nil, 0600))
	s.lastFiles = append(s.lastFiles, stale)

	_, err = s.Resplit(context.Background(), nil)
	require.NoError(t, err)
	assert.NoFileExists(t, stale)
}

func TestSession_Resplit_InvalidPhases(t *testing.T) {
	t.Run("idle", func(t *testing.T) {
		s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{})
		_, err := s.Resplit(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PhaseIdle, s.Phase())
	})

	t.Run("failed", func(t *testing.T) {
		s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{failOn: 1})
		_, err := s.StartSplit(context.Background(), Request{Parts: 2}, nil)
		require.Error(t, err)

		_, err = s.Resplit(context.Background(), nil)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Equal(t, PhaseFailed, s.Phase())
	})
}

func TestSession_Clear(t *testing.T) {
	s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{})
	require.NoError(t, s.Clear(), "clear from idle is a no-op")

	files, err := s.StartSplit(context.Background(), Request{Parts: 2}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Clear())
	assert.Equal(t, PhaseIdle, s.Phase())
	assert.Nil(t, s.LastFiles())
	assert.Zero(t, s.LastPartCount())
	assert.Equal(t, Request{}, s.LastRequest())
	for _, f := range files {
		assert.FileExists(t, f)
	}

	_, err = s.Resplit(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestSession_Start(t *testing.T) {
	enc := &fakeEncoder{}
	s, _ := newTestSession(t, "talk.mp3", enc)

	run, err := s.Start(context.Background(), Request{Parts: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, run.Parts)

	var got []Progress
	for p := range run.Progress {
		got = append(got, p)
	}
	outcome := <-run.Done

	require.NoError(t, outcome.Err)
	assert.Len(t, outcome.Files, 5)
	assert.Equal(t, 5, outcome.Parts)
	require.Len(t, got, 5)
	for i, p := range got {
		assert.Equal(t, Progress{Current: i + 1, Total: 5}, p)
	}
	assert.Equal(t, PhaseDone, s.Phase())

	_, open := <-run.Done
	assert.False(t, open)
}

func TestSession_Start_Busy(t *testing.T) {
	enc := &fakeEncoder{gate: make(chan struct{})}
	s, _ := newTestSession(t, "talk.mp3", enc)

	run, err := s.Start(context.Background(), Request{Parts: 2})
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, s.Phase())

	_, err = s.Start(context.Background(), Request{Parts: 2})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.StartResplit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.Clear(), ErrBusy)

	close(enc.gate)
	outcome := run.Wait()
	require.NoError(t, outcome.Err)
	assert.Equal(t, PhaseDone, s.Phase())
}

func TestSession_Start_Cancel(t *testing.T) {
	enc := &fakeEncoder{gate: make(chan struct{})}
	s, _ := newTestSession(t, "talk.mp3", enc)

	run, err := s.Start(context.Background(), Request{Parts: 3})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return enc.batchCount() == 1 }, time.Second, time.Millisecond)
	run.Cancel()

	outcome := run.Wait()
	assert.ErrorIs(t, outcome.Err, audio.ErrCancelled)
	assert.Zero(t, FailedSegment(outcome.Err))
	assert.Equal(t, PhaseFailed, s.Phase())
}

func TestSession_StartResplit(t *testing.T) {
	s, _ := newTestSession(t, "talk.mp3", &fakeEncoder{})

	_, err := s.StartResplit(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = s.StartSplit(context.Background(), Request{Parts: 6}, nil)
	require.NoError(t, err)

	run, err := s.StartResplit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 7, run.Parts)

	outcome := run.Wait()
	require.NoError(t, outcome.Err)
	assert.Len(t, outcome.Files, 7)
	assert.Equal(t, 7, s.LastPartCount())
}
