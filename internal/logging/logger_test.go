package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"faceomatic/internal/config"
	"faceomatic/internal/logging"
	"faceomatic/internal/services"
)

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	return string(data)
}

func TestConsoleLoggerPromotesComponentAndJob(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithJobID(context.Background(), "CNNW_20240102030000_Show")
	ctx = services.WithStage(ctx, "download")
	component := logging.NewComponentLogger(logger, "pipeline")
	logging.WithContext(ctx, component).Info("stage completed", logging.Int("segments", 2))
	logger.Debug("hidden")

	out := readLog(t, logPath)
	if !strings.Contains(out, "INFO pipeline [CNNW_20240102030000_Show]: stage completed") {
		t.Fatalf("expected component and job prefix, got %q", out)
	}
	if !strings.Contains(out, "stage=download") || !strings.Contains(out, "segments=2") {
		t.Fatalf("expected structured fields, got %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line should be filtered at info level: %q", out)
	}
}

func TestConsoleLoggerQuotesAndGroups(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.WithGroup("segment").Info("done", logging.String("path", "a b"), logging.Duration("took", 2*time.Second))

	out := readLog(t, logPath)
	if !strings.Contains(out, `segment.path="a b"`) {
		t.Fatalf("expected quoted grouped key, got %q", out)
	}
	if !strings.Contains(out, "segment.took=2s") {
		t.Fatalf("expected duration value, got %q", out)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("job registered", logging.JobID("FOXNEWSW_20240102030000_Show"))

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry["level"] != "info" || entry["msg"] != "job registered" {
		t.Fatalf("unexpected entry: %v", entry)
	}
	if _, ok := entry["ts"]; !ok {
		t.Fatalf("expected ts key: %v", entry)
	}
	if entry[logging.FieldJobID] != "FOXNEWSW_20240102030000_Show" {
		t.Fatalf("expected job id, got %v", entry)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestNewFromConfigWritesToLogDir(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()
	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	logger.Info("hello")
	if out := readLog(t, filepath.Join(cfg.Paths.LogDir, "faceomatic.log")); !strings.Contains(out, "hello") {
		t.Fatalf("expected log file output, got %q", out)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logging.WarnWithContext(logger, "webhook failed", "webhook_failed",
		logging.Error(errors.New("boom")),
		logging.String(logging.FieldImpact, "subscriber missed report"),
	)

	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(readLog(t, logPath))), &entry); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if entry[logging.FieldEventType] != "webhook_failed" {
		t.Fatalf("expected event type, got %v", entry)
	}
	if entry[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error hint, got %v", entry)
	}
	if entry[logging.FieldImpact] != "subscriber missed report" {
		t.Fatalf("explicit impact should be kept, got %v", entry)
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := logging.NewProgressSampler(25)
	steps := []struct {
		percent float64
		phase   string
		want    bool
	}{
		{0, "classifying", true},
		{10, "classifying", false},
		{26, "classifying", true},
		{49, "classifying", false},
		{100, "classifying", true},
		{100, "classifying", false},
		{0, "complete", true},
	}
	for i, step := range steps {
		if got := s.ShouldLog(step.percent, step.phase); got != step.want {
			t.Fatalf("step %d (%v %q): got %v want %v", i, step.percent, step.phase, got, step.want)
		}
	}
	var nilSampler *logging.ProgressSampler
	if !nilSampler.ShouldLog(5, "x") {
		t.Fatal("nil sampler should always log")
	}
}

func TestPruneLogsRemovesExpiredFiles(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "faceomatic-old.log")
	fresh := filepath.Join(dir, "faceomatic-new.log")
	keep := filepath.Join(dir, "faceomatic-current.log")
	for _, p := range []string{old, fresh, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	past := time.Now().AddDate(0, 0, -10)
	for _, p := range []string{old, keep} {
		if err := os.Chtimes(p, past, past); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	removed := logging.PruneLogs(logging.NewNop(), dir, "faceomatic-*.log", 5, keep)
	if len(removed) != 1 || removed[0] != old {
		t.Fatalf("unexpected removed set: %v", removed)
	}

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expected old log removed, stat err=%v", err)
	}
	for _, p := range []string{fresh, keep} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}
