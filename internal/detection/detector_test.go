package detection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"faceomatic/internal/classify"
	"faceomatic/internal/jobs"
	"faceomatic/internal/services"
	"faceomatic/internal/stage"
	"faceomatic/internal/testsupport"
)

type scriptedClassifier struct {
	mu       sync.Mutex
	inFlight int
	peak     int
	calls    atomic.Int32
	fail     string
}

func (s *scriptedClassifier) Classify(ctx context.Context, path string) (classify.Result, error) {
	s.calls.Add(1)
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > s.peak {
		s.peak = s.inFlight
	}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if filepath.Base(path) == s.fail {
		return classify.Result{}, services.Wrap(services.ErrValidation, "classify", "poll", "", classify.ErrMalformedResponse)
	}
	// Earlier segments finish last so completion order differs from index order.
	letter := path[len(path)-len("a.mp4")]
	delay := time.Duration('f'-letter) * 3 * time.Millisecond
	select {
	case <-time.After(delay):
	case <-ctx.Done():
		return classify.Result{}, ctx.Err()
	}
	return classify.Result{VideoID: filepath.Base(path), Progress: 100, LabelDict: map[string]string{}, Detections: map[string]map[string][]classify.Score{}}, nil
}

func segmentRun(t *testing.T, dir string, n int) *stage.Run {
	t.Helper()
	run := stage.NewRun(jobs.Job{ID: "J"}, jobs.Layout{VideosDir: dir}, nil)
	for i := 0; i < n; i++ {
		path := filepath.Join(dir, "J.mp4_OUTPUT"+string(rune('a'+i))+".mp4")
		testsupport.WriteFile(t, path, 8)
		run.SegmentPaths = append(run.SegmentPaths, path)
		run.Durations = append(run.Durations, float64(100+i))
	}
	return run
}

func TestExecuteKeepsSlotOrderAndBoundsConcurrency(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.MaxConcurrent = 2
	dir := t.TempDir()
	run := segmentRun(t, dir, 6)
	client := &scriptedClassifier{}

	if err := NewDetector(cfg, client, nil).Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if client.peak > 2 {
		t.Fatalf("concurrency exceeded limit: peak %d", client.peak)
	}
	for i, seg := range run.Segments {
		if seg.Index != i || seg.Result.VideoID != filepath.Base(run.SegmentPaths[i]) || seg.Duration != float64(100+i) {
			t.Fatalf("slot %d holds %+v", i, seg)
		}
		if _, err := os.Stat(run.SegmentPaths[i]); !os.IsNotExist(err) {
			t.Fatalf("segment %d should be deleted after classification", i)
		}
	}
}

func TestExecuteFailsFastOnClassificationError(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.MaxConcurrent = 1
	dir := t.TempDir()
	run := segmentRun(t, dir, 4)
	client := &scriptedClassifier{fail: filepath.Base(run.SegmentPaths[1])}

	err := NewDetector(cfg, client, nil).Execute(context.Background(), run)
	if !errors.Is(err, classify.ErrMalformedResponse) {
		t.Fatalf("expected malformed response error, got %v", err)
	}
	if services.FailureState(err) != jobs.StateFailed {
		t.Fatal("classification errors must fail the job")
	}
	if run.Segments != nil {
		t.Fatal("segments must not be published on failure")
	}
	if got := client.calls.Load(); got != 2 {
		t.Fatalf("remaining segments should not be submitted, got %d calls", got)
	}
}
