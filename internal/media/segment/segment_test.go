package segment

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// stubFFmpeg writes two segments and a manifest naming them relative to the
// working directory, the way ffmpeg's segment muxer does.
const stubFFmpeg = `#!/bin/sh
manifest=""
pattern=""
while [ $# -gt 0 ]; do
  case "$1" in
    -segment_list) manifest="$2"; shift ;;
  esac
  pattern="$1"
  shift
done
a=$(printf "$pattern" 0)
b=$(printf "$pattern" 1)
echo seg > "$a"
echo seg > "$b"
printf '%s\n%s\n' "$(basename "$a")" "$(basename "$b")" > "$manifest"
`

func TestArgsMatchSegmentMuxer(t *testing.T) {
	req := Request{Input: "/v/ID.mp4", Manifest: "/v/ID_ffmpeg.out", Pattern: "/v/ID.mp4_OUTPUT%d.mp4", Seconds: 1200}
	got := strings.Join(req.Args(), " ")
	want := "-i /v/ID.mp4 -acodec copy -f segment -segment_time 1200 -vcodec copy -reset_timestamps 1 -map 0 -segment_list /v/ID_ffmpeg.out /v/ID.mp4_OUTPUT%d.mp4"
	if got != want {
		t.Fatalf("unexpected args:\n got %s\nwant %s", got, want)
	}
}

func TestSplitReturnsOrderedAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	if err := os.WriteFile(bin, []byte(stubFFmpeg), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	input := filepath.Join(dir, "ID.mp4")
	if err := os.WriteFile(input, []byte("video"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	paths, err := Split(context.Background(), Request{
		Binary:   bin,
		Input:    input,
		Manifest: filepath.Join(dir, "ID_ffmpeg.out"),
		Pattern:  input + "_OUTPUT%d.mp4",
		Seconds:  1200,
	})
	if err != nil {
		t.Fatalf("Split: %v", err)
	}
	want := []string{input + "_OUTPUT0.mp4", input + "_OUTPUT1.mp4"}
	if len(paths) != 2 || paths[0] != want[0] || paths[1] != want[1] {
		t.Fatalf("unexpected paths %v", paths)
	}
}

func TestSplitEmptyManifest(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "ffmpeg")
	script := "#!/bin/sh\nfor a; do last=$prev; prev=$a; done\n: > \"$last\"\n"
	if err := os.WriteFile(bin, []byte(script), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
	_, err := Split(context.Background(), Request{
		Binary:   bin,
		Input:    filepath.Join(dir, "ID.mp4"),
		Manifest: filepath.Join(dir, "ID_ffmpeg.out"),
		Pattern:  filepath.Join(dir, "ID.mp4_OUTPUT%d.mp4"),
		Seconds:  1200,
	})
	if !errors.Is(err, ErrNoSegments) {
		t.Fatalf("expected ErrNoSegments, got %v", err)
	}
}
