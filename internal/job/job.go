// Package job keeps the per-session records behind the HTTP API: which
// source is loaded, the split in progress and the parts it produced.
package job

import (
	"slices"
	"sync"
	"time"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/job/id"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/split"
)

// Progress is the last reported (current, total) pair of a run.
type Progress struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// Job is the snapshot of one loaded source and its split state.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier for this session.
	ID string
	// SourcePath is the loaded media file.
	SourcePath string
	// OutputDir overrides the parent of the "<base>_split" folder.
	OutputDir string
	// Descriptor is the probe result captured at load time.
	Descriptor media.Descriptor
	// Phase mirrors the split session phase.
	Phase split.Phase
	// Parts is the part count of the current or last run.
	Parts int
	// Quality is the quality of the current or last run.
	Quality audio.Quality
	// Resplit is true when the current or last run was an escalation.
	Resplit bool
	// Progress is the last progress event of the current or last run.
	Progress Progress
	// Files are the parts produced by the last successful run.
	Files []string
	// URLs are the published locations of Files when PushToS3 was set.
	URLs []string
	// PushToS3 indicates whether produced parts are uploaded.
	PushToS3 bool
	// Error contains the diagnostic of the last failed run.
	Error string
	// FailedSegment is the 1-indexed part that failed, 0 if none.
	FailedSegment int
	// PublishError is set when parts were produced but uploading failed.
	PublishError string
	// CreatedAt is when the source was loaded.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// StartedAt is when the current or last run started.
	StartedAt time.Time
	// CompletedAt is when the last run finished.
	CompletedAt time.Time
}

// New creates an IDLE job with a generated ID.
func New(sourcePath string, desc media.Descriptor) *Job {
	return NewWithID(id.Generate(), sourcePath, desc)
}

// NewWithID creates an IDLE job with the specified ID.
// Useful for testing or when ID needs to be externally generated.
func NewWithID(jobID, sourcePath string, desc media.Descriptor) *Job {
	now := time.Now()
	return &Job{
		ID:         jobID,
		SourcePath: sourcePath,
		Descriptor: desc,
		Phase:      split.PhaseIdle,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// transitionLocked changes the phase following the session rules.
// Callers hold j.mu.
func (j *Job) transitionLocked(phase split.Phase) error {
	if !split.CanTransition(j.Phase, phase) {
		return split.ErrInvalidTransition
	}

	j.Phase = phase
	j.UpdatedAt = time.Now()

	switch phase {
	case split.PhaseRunning:
		j.StartedAt = j.UpdatedAt
		j.CompletedAt = time.Time{}
	case split.PhaseDone, split.PhaseFailed:
		j.CompletedAt = j.UpdatedAt
	}
	return nil
}

// Start records a new run and moves the job to RUNNING.
func (j *Job) Start(parts int, quality audio.Quality, resplit, pushToS3 bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(split.PhaseRunning); err != nil {
		return err
	}
	j.Parts = parts
	j.Quality = quality
	j.Resplit = resplit
	j.PushToS3 = pushToS3
	j.Progress = Progress{Total: parts}
	j.Error = ""
	j.FailedSegment = 0
	j.PublishError = ""
	return nil
}

// UpdateProgress records a progress event. Events never move backwards.
func (j *Job) UpdateProgress(current, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if current < j.Progress.Current || current > total {
		return
	}
	j.Progress = Progress{Current: current, Total: total}
	j.UpdatedAt = time.Now()
}

// Complete stores the produced parts and moves the job to DONE.
func (j *Job) Complete(files, urls []string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(split.PhaseDone); err != nil {
		return err
	}
	j.Files = slices.Clone(files)
	j.URLs = slices.Clone(urls)
	return nil
}

// Fail records the diagnostic and moves the job to FAILED.
func (j *Job) Fail(errMsg string, segment int) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if err := j.transitionLocked(split.PhaseFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.FailedSegment = segment
	return nil
}

// SetPublishError records an upload failure after a successful run.
func (j *Job) SetPublishError(msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.PublishError = msg
	j.UpdatedAt = time.Now()
}

// Reset returns the job to IDLE and forgets the produced parts.
func (j *Job) Reset() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Phase == split.PhaseIdle {
		return nil
	}
	if err := j.transitionLocked(split.PhaseIdle); err != nil {
		return err
	}
	j.Parts = 0
	j.Quality = ""
	j.Resplit = false
	j.Progress = Progress{}
	j.Files = nil
	j.URLs = nil
	j.Error = ""
	j.FailedSegment = 0
	j.PublishError = ""
	j.StartedAt = time.Time{}
	j.CompletedAt = time.Time{}
	return nil
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return &Job{
		ID:            j.ID,
		SourcePath:    j.SourcePath,
		OutputDir:     j.OutputDir,
		Descriptor:    j.Descriptor,
		Phase:         j.Phase,
		Parts:         j.Parts,
		Quality:       j.Quality,
		Resplit:       j.Resplit,
		Progress:      j.Progress,
		Files:         slices.Clone(j.Files),
		URLs:          slices.Clone(j.URLs),
		PushToS3:      j.PushToS3,
		Error:         j.Error,
		FailedSegment: j.FailedSegment,
		PublishError:  j.PublishError,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
	}
}
