package daemonrun

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"faceomatic/internal/testsupport"
)

func TestEnsureCurrentLogPointerReplacesLink(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "faceomatic-1.log")
	second := filepath.Join(dir, "faceomatic-2.log")
	for _, path := range []string{first, second} {
		if err := os.WriteFile(path, []byte(filepath.Base(path)), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := ensureCurrentLogPointer(dir, first); err != nil {
		t.Fatalf("first pointer: %v", err)
	}
	if err := ensureCurrentLogPointer(dir, second); err != nil {
		t.Fatalf("second pointer: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "faceomatic.log"))
	if err != nil || string(data) != "faceomatic-2.log" {
		t.Fatalf("pointer should follow newest log, got %q (%v)", data, err)
	}
}

func TestWritePIDFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "faceomatic.pid")
	if err := writePIDFile(path); err != nil {
		t.Fatalf("writePIDFile: %v", err)
	}
	data, _ := os.ReadFile(path)
	if strings.TrimSpace(string(data)) != strconv.Itoa(os.Getpid()) {
		t.Fatalf("unexpected pid file contents %q", data)
	}
}

func TestNewPipelineRequiresClassifierCredentials(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Classifier.ClientSecret = ""
	if _, err := NewPipeline(cfg, nil); err == nil {
		t.Fatal("expected missing credentials to fail wiring")
	}

	ok := testsupport.NewConfig(t)
	pipeline, err := NewPipeline(ok, nil)
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	t.Cleanup(func() { _ = pipeline.Close() })
	if pipeline.Workflow == nil || pipeline.Registrar == nil {
		t.Fatal("pipeline not fully wired")
	}
}
