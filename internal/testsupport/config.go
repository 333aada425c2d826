package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"faceomatic/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	data := filepath.Join(base, "data")
	cfgVal.Paths.DataDir = data
	cfgVal.Paths.ProgramsDir = filepath.Join(data, "programs")
	cfgVal.Paths.VideosDir = filepath.Join(data, "videos")
	cfgVal.Paths.ResultsDir = filepath.Join(data, "results")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Paths.WebhooksFile = filepath.Join(data, "webhooks.txt")
	cfgVal.Paths.LedgerPath = filepath.Join(data, "ledger.db")
	cfgVal.Paths.TokenCache = filepath.Join(data, "classifier_token.json")
	cfgVal.Paths.APIBind = "127.0.0.1:0"
	cfgVal.Classifier.ClientID = "test-client"
	cfgVal.Classifier.ClientSecret = "test-secret"
	cfgVal.Classifier.DetectorID = "detector"
	cfgVal.Classifier.PollInterval = 1
	cfgVal.Classifier.RequestsPerSecond = 0
	cfgVal.Archive.UserID = "user"
	cfgVal.Archive.Signature = "sig"
	cfgVal.Workflow.MinFreeDiskGiB = 0

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	if err := builder.cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return builder.cfg
}

// WithClassifierURL points the classifier client at a test server.
func WithClassifierURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Classifier.BaseURL = url
	}
}

// WithArchiveURL points listing, download, and details URLs at a test server.
// The listing is served from /listing.
func WithArchiveURL(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Archive.ListingURL = url + "/listing"
		b.cfg.Archive.DownloadBaseURL = url + "/download"
		b.cfg.Archive.DetailsBaseURL = url + "/details"
	}
}

// writeScript writes an executable shell script under the test bin directory.
func writeScript(b *configBuilder, name, body string) string {
	binDir := filepath.Join(b.baseDir, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		b.t.Fatalf("mkdir bin dir: %v", err)
	}
	target := filepath.Join(binDir, name)
	if err := os.WriteFile(target, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		b.t.Fatalf("write stub %s: %v", name, err)
	}
	return target
}

// WithFFmpegScript installs a stub ffmpeg whose body is the given shell
// script and points the split configuration at it.
func WithFFmpegScript(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Split.FFmpegBinary = writeScript(b, "ffmpeg", body)
	}
}

// WithFFprobeScript installs a stub ffprobe.
func WithFFprobeScript(body string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Split.FFprobeBinary = writeScript(b, "ffprobe", body)
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffmpeg and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffmpeg", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "pathbin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}
		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.DataDir)
}
