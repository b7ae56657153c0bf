// Package media provides probing of source audio and video files.
package media

import (
	"context"
	"path/filepath"
	"strings"
)

// videoExtensions lists the container extensions treated as video sources.
var videoExtensions = map[string]bool{
	".mp4":  true,
	".avi":  true,
	".mkv":  true,
	".mov":  true,
	".webm": true,
	".wmv":  true,
	".flv":  true,
	".m4v":  true,
}

// audioExtensions lists the container extensions accepted as audio sources.
var audioExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".m4a":  true,
	".ogg":  true,
	".flac": true,
	".aac":  true,
	".wma":  true,
}

// Descriptor is the normalized metadata of one source file.
type Descriptor struct {
	// Path is the probed source path.
	Path string `json:"path"`
	// DurationSeconds is the container duration. Always > 0 for a
	// descriptor returned by a Prober.
	DurationSeconds float64 `json:"duration_seconds"`
	// SizeBytes is the container size reported by the probe.
	SizeBytes int64 `json:"size_bytes"`
	// BitrateKbps is the container bitrate, 0 when unknown.
	BitrateKbps int `json:"bitrate_kbps"`
	// AudioCodec is the codec of the selected stream, "unknown" if absent.
	AudioCodec string `json:"audio_codec"`
	// SampleRate is the sample rate as reported, "unknown" if absent.
	SampleRate string `json:"sample_rate"`
	// Channels is the channel count, 0 if absent.
	Channels int `json:"channels"`
	// IsVideo is derived from the file extension only.
	IsVideo bool `json:"is_video"`
}

// Prober defines the interface for reading source media metadata.
type Prober interface {
	// Probe inspects the file at path and returns its descriptor.
	// Every failure is reported as a *ProbeError.
	Probe(ctx context.Context, path string) (Descriptor, error)
}

// IsVideoFile reports whether path has a known video extension.
func IsVideoFile(path string) bool {
	return videoExtensions[strings.ToLower(filepath.Ext(path))]
}

// IsSupportedFile reports whether path has a known audio or video extension.
func IsSupportedFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return videoExtensions[ext] || audioExtensions[ext]
}
