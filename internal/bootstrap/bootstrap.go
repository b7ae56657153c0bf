// Package bootstrap wires storage, media tools, events and metrics into a
// SplitService for the HTTP server.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/config"
	"github.com/maauso/dropthemike/internal/events"
	"github.com/maauso/dropthemike/internal/job"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/metrics"
	"github.com/maauso/dropthemike/internal/storage"
)

// Dependencies is everything the server needs. Call Close on shutdown.
type Dependencies struct {
	SplitService *job.SplitService
	Storage      storage.Storage
	Bus          *events.Bus
	Recorder     *metrics.Recorder

	detach []func()
}

// Close removes the event subscriptions created by NewDependencies.
func (d *Dependencies) Close() {
	for _, fn := range d.detach {
		fn()
	}
	d.detach = nil
}

// NewDependencies builds the dependency graph from cfg.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	ffprobe := cfg.ResolveFFprobe()
	ffmpeg := cfg.ResolveFFmpeg()
	prober := media.NewFFprobeProber(ffprobe, media.WithTimeout(cfg.ProbeTimeout))
	encoder := audio.NewFFmpegEncoder(ffmpeg,
		audio.WithConcurrency(cfg.MaxConcurrentSegments),
		audio.WithLogger(logger),
	)
	logger.Info("media tools located",
		slog.String("ffprobe", ffprobe),
		slog.String("ffmpeg", ffmpeg),
	)

	bus := events.New()
	recorder := metrics.NewRecorder()

	svc := job.NewSplitService(
		job.NewMemoryRepository(),
		prober,
		encoder,
		job.WithStorage(store, cfg.S3Enabled()),
		job.WithBus(bus),
		job.WithLogger(logger),
		job.WithFallbackBitrate(cfg.FallbackBitrateKbps),
		job.WithAllowedRoots(append([]string{cfg.TempDir}, cfg.AllowedRoots...)...),
	)

	recorder.ObserveRunning(svc.Running)

	return &Dependencies{
		SplitService: svc,
		Storage:      store,
		Bus:          bus,
		Recorder:     recorder,
		detach: []func(){
			recorder.Attach(bus),
			logEvents(bus, logger),
		},
	}, nil
}

// logEvents logs terminal split events at info level.
func logEvents(bus *events.Bus, logger *slog.Logger) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.SplitCompletedEvent) {
			logger.Info("split finished",
				slog.String("session_id", e.SessionID),
				slog.Int("parts", e.Parts),
				slog.Float64("elapsed_seconds", e.Elapsed),
			)
		}),
		bus.Subscribe(func(e events.SplitFailedEvent) {
			logger.Warn("split finished with error",
				slog.String("session_id", e.SessionID),
				slog.Int("segment", e.Segment),
				slog.Bool("cancelled", e.Cancelled),
				slog.String("error", e.Error),
			)
		}),
	}
	return func() {
		for _, unsub := range unsubs {
			unsub()
		}
	}
}

// initStorage picks S3 when a bucket is configured and plain local disk
// otherwise. Both keep uploads under cfg.TempDir.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if !cfg.S3Enabled() {
		local, err := storage.NewLocalStorage(cfg.TempDir)
		if err != nil {
			return nil, fmt.Errorf("create local storage: %w", err)
		}
		logger.Info("storage ready", slog.String("backend", "local"), slog.String("temp_dir", cfg.TempDir))
		return local, nil
	}

	remote, err := storage.NewS3Storage(cfg.TempDir, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("storage ready",
		slog.String("backend", "s3"),
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
	)
	return remote, nil
}
