package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
	"github.com/maauso/dropthemike/internal/split"
)

func newSplitCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "split <file>",
		Short: "Split a file into equal-duration MP3 parts",
		Long: `Split a file into equal-duration MP3 parts written to "<name>_split" next to it.

With --max-part-mb the split is repeated with one more part while the largest
part is bigger than the limit, up to 20 parts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			parts, _ := flags.GetInt("parts")
			rawQuality, _ := flags.GetString("quality")
			output, _ := flags.GetString("output")
			maxPartMB, _ := flags.GetFloat64("max-part-mb")

			if parts == 0 {
				parts = a.cfg.DefaultParts
			}
			quality := a.cfg.Quality()
			if rawQuality != "" {
				q, err := audio.ParseQuality(rawQuality)
				if err != nil {
					return err
				}
				quality = q
			}

			session := split.NewSession(args[0], a.prober, a.encoder,
				split.WithLogger(a.logger),
				split.WithFallbackBitrate(a.cfg.FallbackBitrateKbps),
			)

			out := cmd.OutOrStdout()
			progress := func(current, total int) {
				fmt.Fprintf(out, "  part %d of %d written\n", current, total)
			}

			fmt.Fprintf(out, "Splitting %s into %d parts (%s)\n", filepath.Base(args[0]), parts, quality)
			files, err := session.StartSplit(cmd.Context(), split.Request{
				Parts:     parts,
				Quality:   quality,
				OutputDir: output,
			}, progress)
			if err != nil {
				return err
			}

			limit := int64(maxPartMB * bytesPerMB)
			for limit > 0 {
				name, size, err := largestFile(files)
				if err != nil {
					return err
				}
				if size <= limit {
					break
				}
				if session.LastPartCount() >= segment.MaxParts {
					fmt.Fprintf(out, "Warning: %s is %s, above the limit, but %d parts is the maximum\n",
						filepath.Base(name), media.FormatSize(size), segment.MaxParts)
					break
				}
				fmt.Fprintf(out, "%s is %s, re-splitting into %d parts\n",
					filepath.Base(name), media.FormatSize(size), segment.NextParts(session.LastPartCount()))
				if files, err = session.Resplit(cmd.Context(), progress); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "Done: %d parts in %s\n", len(files), filepath.Dir(files[0]))
			for _, f := range files {
				info, err := os.Stat(f)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "    %s  %s\n", filepath.Base(f), media.FormatSize(info.Size()))
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.IntP("parts", "n", 0, "Number of parts, 2 to 20 (default DEFAULT_PARTS)")
	flags.StringP("quality", "q", "", qualityUsage())
	flags.StringP("output", "o", "", "Directory to create the split folder in (default next to the file)")
	flags.Float64("max-part-mb", 0, "Re-split until every part is at most this many MB")
	return cmd
}

func qualityUsage() string {
	names := make([]string, 0, len(audio.Qualities()))
	for _, q := range audio.Qualities() {
		names = append(names, string(q))
	}
	return strings.Join(names, ", ") + " or a bitrate such as 192 (default DEFAULT_QUALITY)"
}

// largestFile returns the biggest of files and its size.
func largestFile(files []string) (string, int64, error) {
	var name string
	var size int64
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return "", 0, err
		}
		if info.Size() > size {
			name, size = f, info.Size()
		}
	}
	return name, size, nil
}
