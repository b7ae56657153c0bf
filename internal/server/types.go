// Package server provides the HTTP API for dropthemike split sessions.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/dropthemike/internal/split"
)

// UploadResponse is the HTTP response after storing an uploaded source.
type UploadResponse struct {
	// Path is the stored file, usable as CreateSessionRequest.SourcePath.
	Path string `json:"path"`
	// SizeBytes is the number of bytes written.
	SizeBytes int64 `json:"size_bytes"`
}

// CreateSessionRequest is the HTTP request body for loading a source.
type CreateSessionRequest struct {
	// SourcePath is the media file to split.
	SourcePath string `json:"source_path" validate:"required,supported_media"`
	// OutputDir overrides the parent of the "<base>_split" folder.
	OutputDir string `json:"output_dir,omitempty"`
}

// SplitRequest is the HTTP request body for starting a split.
type SplitRequest struct {
	// Parts is the number of parts. Zero selects the server default.
	Parts int `json:"parts" validate:"omitempty,min=2,max=20"`
	// Quality is a quality name or bitrate. Empty selects the server default.
	Quality string `json:"quality" validate:"omitempty,quality"`
	// PushToS3 uploads the produced parts when S3 is configured.
	PushToS3 bool `json:"push_to_s3"`
}

// DetailsResponse is the probe result of a loaded source.
type DetailsResponse struct {
	Duration    string  `json:"duration"`
	DurationSec float64 `json:"duration_seconds"`
	Size        string  `json:"size"`
	SizeBytes   int64   `json:"size_bytes"`
	BitrateKbps int     `json:"bitrate_kbps"`
	AudioCodec  string  `json:"audio_codec"`
	SampleRate  string  `json:"sample_rate"`
	Channels    int     `json:"channels"`
	IsVideo     bool    `json:"is_video"`
}

// ProgressResponse is the last progress event of a run.
type ProgressResponse struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// SessionResponse is the HTTP response for session details.
type SessionResponse struct {
	ID            string             `json:"id"`
	Source        string             `json:"source"`
	Phase         string             `json:"phase"`
	Details       DetailsResponse    `json:"details"`
	Parts         int                `json:"parts,omitempty"`
	Quality       string             `json:"quality,omitempty"`
	Resplit       bool               `json:"resplit,omitempty"`
	Progress      ProgressResponse   `json:"progress"`
	Files         []string           `json:"files,omitempty"`
	URLs          []string           `json:"urls,omitempty"`
	PushToS3      bool               `json:"push_to_s3,omitempty"`
	Error         string             `json:"error,omitempty"`
	FailedSegment int                `json:"failed_segment,omitempty"`
	PublishError  string             `json:"publish_error,omitempty"`
	Preview       *split.PreviewInfo `json:"preview,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	StartedAt     *time.Time         `json:"started_at,omitempty"`
	CompletedAt   *time.Time         `json:"completed_at,omitempty"`
}

// SessionListResponse is the HTTP response for listing sessions.
type SessionListResponse struct {
	Sessions []SessionResponse `json:"sessions"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
