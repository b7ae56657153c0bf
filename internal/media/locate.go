package media

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// LocateBinary finds a bundled ffmpeg/ffprobe binary. It looks next to the
// running executable, then in an "ffmpeg" directory beside it, then in PATH.
// When nothing is found the bare name is returned so exec reports the miss.
func LocateBinary(name string) string {
	exe := name
	if runtime.GOOS == "windows" {
		exe = name + ".exe"
	}

	if self, err := os.Executable(); err == nil {
		dir := filepath.Dir(self)
		for _, candidate := range []string{
			filepath.Join(dir, exe),
			filepath.Join(dir, "ffmpeg", exe),
		} {
			if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
				return candidate
			}
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		return p
	}
	return name
}

// FormatDuration renders seconds as MM:SS, or HH:MM:SS from one hour up.
func FormatDuration(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	total := int(seconds)
	hours := total / 3600
	minutes := (total % 3600) / 60
	secs := total % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// FormatSize renders a byte count with one decimal in B, KB, MB, GB or TB.
func FormatSize(size int64) string {
	v := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if v < 1024 {
			return fmt.Sprintf("%.1f %s", v, unit)
		}
		v /= 1024
	}
	return fmt.Sprintf("%.1f TB", v)
}
