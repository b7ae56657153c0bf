// Package cli implements the dropthemike command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/config"
	"github.com/maauso/dropthemike/internal/media"
)

// bytesPerMB is the unit of --max-part-mb.
const bytesPerMB = 1024 * 1024

// Option overrides a collaborator of the command line, mostly for tests.
type Option func(*app)

// WithProber replaces the ffprobe-backed prober.
func WithProber(p media.Prober) Option {
	return func(a *app) {
		a.prober = p
	}
}

// WithEncoder replaces the ffmpeg-backed encoder.
func WithEncoder(e audio.Encoder) Option {
	return func(a *app) {
		a.encoder = e
	}
}

// WithConfig skips environment loading.
func WithConfig(cfg *config.Config) Option {
	return func(a *app) {
		a.cfg = cfg
	}
}

type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	prober  media.Prober
	encoder audio.Encoder
}

// NewRootCommand builds the dropthemike command tree.
func NewRootCommand(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "dropthemike",
		Short:         "Split long recordings into equal MP3 parts",
		Long:          `dropthemike probes an audio or video file and cuts it into 2 to 20 equal-duration MP3 parts, copying the audio stream when it is already MP3.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd.ErrOrStderr())
		},
	}

	root.AddCommand(newProbeCommand(a), newSplitCommand(a))
	return root
}

// Execute runs the command line with os.Args and SIGINT/SIGTERM cancellation.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// init loads configuration and builds the media tools not injected.
func (a *app) init(stderr io.Writer) error {
	if a.cfg == nil {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		a.cfg = cfg
	}

	// Logs go to stderr so stdout stays a clean listing.
	a.logger = a.cfg.LoggerTo(stderr)

	if a.prober == nil {
		a.prober = media.NewFFprobeProber(a.cfg.ResolveFFprobe(), media.WithTimeout(a.cfg.ProbeTimeout))
	}
	if a.encoder == nil {
		a.encoder = audio.NewFFmpegEncoder(a.cfg.ResolveFFmpeg(),
			audio.WithConcurrency(a.cfg.MaxConcurrentSegments),
			audio.WithLogger(a.logger),
		)
	}
	return nil
}
