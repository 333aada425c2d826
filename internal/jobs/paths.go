package jobs

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"faceomatic/internal/config"
)

// Layout locates the per-job artifacts outside the marker directory.
type Layout struct {
	VideosDir  string
	ResultsDir string
}

// LayoutFromConfig builds the artifact layout from configuration.
func LayoutFromConfig(cfg *config.Config) Layout {
	return Layout{VideosDir: cfg.Paths.VideosDir, ResultsDir: cfg.Paths.ResultsDir}
}

// VideoPath is where the full broadcast recording is downloaded.
func (l Layout) VideoPath(id string) string {
	return filepath.Join(l.VideosDir, id+".mp4")
}

// ManifestPath is the split tool's segment list.
func (l Layout) ManifestPath(id string) string {
	return filepath.Join(l.VideosDir, id+"_ffmpeg.out")
}

// SegmentPattern is the printf-style output pattern for segment files. A
// literal % in the directory or id is doubled so ffmpeg keeps it verbatim.
func (l Layout) SegmentPattern(id string) string {
	return strings.ReplaceAll(l.VideoPath(id), "%", "%%") + "_OUTPUT%d.mp4"
}

// RawResultsPath holds the per-segment classification payloads.
func (l Layout) RawResultsPath(id string) string {
	return filepath.Join(l.ResultsDir, id+".json")
}

// ProcessedResultsPath holds the aggregated intervals.
func (l Layout) ProcessedResultsPath(id string) string {
	return filepath.Join(l.ResultsDir, id+"_processed.json")
}

// ReadManifest parses a segment list into absolute segment paths in order.
// Relative entries resolve against the videos directory.
func (l Layout) ReadManifest(id string) ([]string, error) {
	data, err := os.ReadFile(l.ManifestPath(id))
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	return ParseManifest(data, l.VideosDir), nil
}

// ParseManifest splits manifest content into segment paths, skipping blank
// lines and tolerating CRLF endings.
func ParseManifest(data []byte, baseDir string) []string {
	var out []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimSuffix(scanner.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !filepath.IsAbs(line) {
			line = filepath.Join(baseDir, line)
		}
		out = append(out, line)
	}
	return out
}

// Cleanup removes the downloaded video, manifest, and any leftover segments.
func (l Layout) Cleanup(id string) error {
	targets := []string{l.VideoPath(id), l.ManifestPath(id)}
	if matches, err := filepath.Glob(filepath.Join(l.VideosDir, globEscape(id)+".mp4_OUTPUT*.mp4")); err == nil {
		targets = append(targets, matches...)
	}
	var firstErr error
	for _, target := range targets {
		if err := os.Remove(target); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func globEscape(s string) string {
	replacer := strings.NewReplacer(`*`, `\*`, `?`, `\?`, `[`, `\[`)
	return replacer.Replace(s)
}
