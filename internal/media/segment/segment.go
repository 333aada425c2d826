// Package segment splits a recording into fixed-length pieces with ffmpeg's
// segment muxer.
package segment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"faceomatic/internal/jobs"
)

// ErrNoSegments is returned when ffmpeg exits cleanly but lists no segments.
var ErrNoSegments = errors.New("split produced no segments")

// Request describes one split.
type Request struct {
	Binary   string
	Input    string
	Manifest string
	// Pattern is the printf-style output name, e.g. ID.mp4_OUTPUT%d.mp4.
	Pattern string
	Seconds int
}

// Args returns the ffmpeg argument list for the request.
func (r Request) Args() []string {
	return []string{
		"-i", r.Input,
		"-acodec", "copy",
		"-f", "segment",
		"-segment_time", strconv.Itoa(r.Seconds),
		"-vcodec", "copy",
		"-reset_timestamps", "1",
		"-map", "0",
		"-segment_list", r.Manifest,
		r.Pattern,
	}
}

// Split runs ffmpeg and returns the segment paths listed in the manifest, in
// playback order.
func Split(ctx context.Context, req Request) ([]string, error) {
	binary := strings.TrimSpace(req.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	if req.Seconds <= 0 {
		return nil, fmt.Errorf("split: segment length must be positive, got %d", req.Seconds)
	}
	_ = os.Remove(req.Manifest)

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, req.Args()...)
	cmd.Dir = filepath.Dir(req.Input)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg split: %w: %s", err, tail(stderr.String(), 512))
	}

	data, err := os.ReadFile(req.Manifest)
	if err != nil {
		return nil, fmt.Errorf("read segment list: %w", err)
	}
	paths := jobs.ParseManifest(data, filepath.Dir(req.Manifest))
	if len(paths) == 0 {
		return nil, ErrNoSegments
	}
	return paths, nil
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
