package ffprobe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoDuration is returned when ffprobe succeeds but prints no usable duration.
var ErrNoDuration = errors.New("ffprobe reported no duration")

// Duration returns the container duration of path in seconds.
func Duration(ctx context.Context, binary, path string) (float64, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("ffprobe duration: empty path")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, "-i", path, "-show_entries", "format=duration", "-v", "quiet", "-of", "csv=p=0")
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, fmt.Errorf("ffprobe duration: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return ParseDuration(stdout.String())
}

// ParseDuration decodes ffprobe's csv duration output. Only the first
// non-empty line is considered.
func ParseDuration(output string) (float64, error) {
	for _, line := range strings.Split(output, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		value, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrNoDuration, line)
		}
		if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
			return 0, fmt.Errorf("%w: %q", ErrNoDuration, line)
		}
		return value, nil
	}
	return 0, ErrNoDuration
}
