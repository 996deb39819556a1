package library

import (
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"

	"github.com/franz/earshelf/internal/util"
)

// ffprobeInfo is the subset of ffprobe's JSON output we care about
type ffprobeInfo struct {
	Format *ffprobeFormat `json:"format"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
}

// ProbeDuration returns a file's duration in whole seconds via ffprobe.
// Returns util.ErrNotFound when ffprobe is not installed; scan treats any
// probe failure as duration 0 rather than aborting.
func ProbeDuration(path string) (int, error) {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return 0, util.ErrNotFound
	}

	cmd := exec.Command("ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe failed: %w", err)
	}

	var info ffprobeInfo
	if err := json.Unmarshal(output, &info); err != nil {
		return 0, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	if info.Format == nil || info.Format.Duration == "" {
		return 0, nil
	}

	seconds, err := strconv.ParseFloat(info.Format.Duration, 64)
	if err != nil {
		return 0, nil
	}
	return int(seconds), nil
}
