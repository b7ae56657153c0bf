package split

import (
	"context"

	"github.com/maauso/dropthemike/internal/segment"
)

// Progress is one ordered progress event of a Run.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Outcome is the terminal result of a Run.
type Outcome struct {
	Files []string
	Parts int
	Err   error
}

// Run is a split executing on its own goroutine.
//
// Progress receives one event per completed part in ascending order and is
// closed before Done delivers the Outcome. Done is closed after it.
type Run struct {
	Progress <-chan Progress
	Done     <-chan Outcome
	Parts    int

	cancel context.CancelFunc
}

// Cancel stops the run before its next part starts.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait blocks until the run ends, discarding remaining progress.
func (r *Run) Wait() Outcome {
	for range r.Progress {
	}
	return <-r.Done
}

// Start moves the session to RUNNING and runs the split in the background.
// The phase check is synchronous, so ErrBusy is returned here rather than
// through the Outcome.
func (s *Session) Start(ctx context.Context, req Request) (*Run, error) {
	if err := s.begin(req); err != nil {
		return nil, err
	}
	return launch(ctx, req.Parts, func(ctx context.Context, onProgress func(int, int)) ([]string, error) {
		return s.run(ctx, req, onProgress)
	}), nil
}

// StartResplit is the background form of Resplit.
func (s *Session) StartResplit(ctx context.Context) (*Run, error) {
	req, stale, err := s.beginResplit()
	if err != nil {
		return nil, err
	}
	return launch(ctx, req.Parts, func(ctx context.Context, onProgress func(int, int)) ([]string, error) {
		s.removeStale(ctx, stale)
		return s.run(ctx, req, onProgress)
	}), nil
}

func launch(parent context.Context, parts int, fn func(context.Context, func(int, int)) ([]string, error)) *Run {
	ctx, cancel := context.WithCancel(parent)

	// Every accepted plan has at most MaxParts parts, so sends never block.
	progress := make(chan Progress, segment.MaxParts)
	done := make(chan Outcome, 1)

	go func() {
		defer cancel()
		files, err := fn(ctx, func(current, total int) {
			progress <- Progress{Current: current, Total: total}
		})
		close(progress)
		done <- Outcome{Files: files, Parts: parts, Err: err}
		close(done)
	}()

	return &Run{
		Progress: progress,
		Done:     done,
		Parts:    parts,
		cancel:   cancel,
	}
}
