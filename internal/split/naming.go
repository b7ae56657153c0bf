package split

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maauso/dropthemike/internal/audio"
	"github.com/maauso/dropthemike/internal/media"
	"github.com/maauso/dropthemike/internal/segment"
)

// previewParts is how many part names a Preview lists before summarizing.
const previewParts = 4

// BaseName returns the source file name without directory or extension.
func BaseName(source string) string {
	name := filepath.Base(source)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// FolderName returns the name of the folder that holds the parts of source.
func FolderName(source string) string {
	return BaseName(source) + "_split"
}

// OutputDir resolves and creates "<parent>/<base>_split", where parent is
// override or, when empty, the directory of source.
func OutputDir(source, override string) (string, error) {
	parent := override
	if parent == "" {
		parent = filepath.Dir(source)
	}
	dir := filepath.Join(parent, FolderName(source))
	if err := os.MkdirAll(dir, 0750); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return dir, nil
}

// PartPath returns the output path of the 1-indexed part i.
func PartPath(dir, base string, i int) string {
	return filepath.Join(dir, base+"_part"+strconv.Itoa(i)+audio.OutputExt)
}

// PreviewPart is one listed entry of a Preview.
type PreviewPart struct {
	Name     string `json:"name"`
	Duration string `json:"duration"`
}

// PreviewInfo describes what a split would produce, without touching disk.
type PreviewInfo struct {
	Folder      string        `json:"folder"`
	Parts       int           `json:"parts"`
	PartSeconds float64       `json:"part_seconds"`
	Files       []PreviewPart `json:"files"`
	More        int           `json:"more"`
}

// String renders the preview as an indented listing.
func (p PreviewInfo) String() string {
	var b strings.Builder
	b.WriteString(p.Folder + "/\n")
	for _, f := range p.Files {
		fmt.Fprintf(&b, "    %s  (%s)\n", f.Name, f.Duration)
	}
	if p.More > 0 {
		fmt.Fprintf(&b, "    ... +%d more files\n", p.More)
	}
	return b.String()
}

// Preview lists the folder and first part names a split of source into parts
// would produce. Durations read "??:??" when desc has no duration.
func Preview(source string, desc media.Descriptor, parts int) (PreviewInfo, error) {
	if err := segment.ValidateParts(parts); err != nil {
		return PreviewInfo{}, err
	}

	base := BaseName(source)
	info := PreviewInfo{
		Folder: FolderName(source),
		Parts:  parts,
	}

	duration := "??:??"
	if desc.DurationSeconds > 0 {
		info.PartSeconds = desc.DurationSeconds / float64(parts)
		duration = media.FormatDuration(info.PartSeconds)
	}

	for i := 1; i <= min(parts, previewParts); i++ {
		info.Files = append(info.Files, PreviewPart{
			Name:     filepath.Base(PartPath("", base, i)),
			Duration: duration,
		})
	}
	info.More = max(parts-previewParts, 0)
	return info, nil
}
