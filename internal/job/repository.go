package job

import (
	"context"
	"errors"
)

// ErrJobNotFound is returned when no session record has the requested ID.
var ErrJobNotFound = errors.New("session not found")

// Repository persists session records. Implementations store and return
// snapshots, so callers mutate their own copy and Save it back.
type Repository interface {
	// Save inserts or replaces the record with job.ID.
	Save(ctx context.Context, job *Job) error
	// FindByID returns ErrJobNotFound for unknown IDs.
	FindByID(ctx context.Context, id string) (*Job, error)
	// List returns every record, oldest first.
	List(ctx context.Context) ([]*Job, error)
	// Delete returns ErrJobNotFound for unknown IDs.
	Delete(ctx context.Context, id string) error
}
