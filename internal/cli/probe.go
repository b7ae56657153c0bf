package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/split"
)

func newProbeCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show media details and the parts a split would produce",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			parts, _ := cmd.Flags().GetInt("parts")
			if parts == 0 {
				parts = a.cfg.DefaultParts
			}

			desc, err := a.prober.Probe(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			preview, err := split.Preview(args[0], desc, parts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printDetails(out, args[0], desc)
			fmt.Fprintf(out, "\nPreview (%d parts of %s):\n%s", parts, media.FormatDuration(preview.PartSeconds), preview)
			return nil
		},
	}
	cmd.Flags().IntP("parts", "n", 0, "Number of parts to preview (default DEFAULT_PARTS)")
	return cmd
}

func printDetails(out io.Writer, path string, d media.Descriptor) {
	kind := "audio"
	if d.IsVideo {
		kind = "video (audio track only)"
	}
	bitrate := "unknown"
	if d.BitrateKbps > 0 {
		bitrate = fmt.Sprintf("%d kbps", d.BitrateKbps)
	}
	sampleRate := d.SampleRate
	if sampleRate != "" && sampleRate != "unknown" {
		sampleRate += " Hz"
	}

	fmt.Fprintf(out, "File:        %s\n", filepath.Base(path))
	fmt.Fprintf(out, "Type:        %s\n", kind)
	fmt.Fprintf(out, "Duration:    %s\n", media.FormatDuration(d.DurationSeconds))
	fmt.Fprintf(out, "Size:        %s\n", media.FormatSize(d.SizeBytes))
	fmt.Fprintf(out, "Bitrate:     %s\n", bitrate)
	fmt.Fprintf(out, "Codec:       %s\n", d.AudioCodec)
	fmt.Fprintf(out, "Sample rate: %s\n", sampleRate)
	fmt.Fprintf(out, "Channels:    %d\n", d.Channels)
}
