package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir      string `toml:"data_dir"`
	ProgramsDir  string `toml:"programs_dir"`
	VideosDir    string `toml:"videos_dir"`
	ResultsDir   string `toml:"results_dir"`
	LogDir       string `toml:"log_dir"`
	WebhooksFile string `toml:"webhooks_file"`
	LedgerPath   string `toml:"ledger_path"`
	TokenCache   string `toml:"token_cache"`
	APIBind      string `toml:"api_bind"`
}

// Archive configures the broadcast listing and video origin.
type Archive struct {
	ListingURL      string   `toml:"listing_url"`
	DownloadBaseURL string   `toml:"download_base_url"`
	DetailsBaseURL  string   `toml:"details_base_url"`
	UserID          string   `toml:"user_id"`
	Signature       string   `toml:"signature"`
	Networks        []string `toml:"networks"`
	RecencyHours    int      `toml:"recency_hours"`
	RequestTimeout  int      `toml:"request_timeout"`
}

// Classifier configures the video classification service.
type Classifier struct {
	BaseURL             string  `toml:"base_url"`
	ClientID            string  `toml:"client_id"`
	ClientSecret        string  `toml:"client_secret"`
	DetectorID          string  `toml:"detector_id"`
	PollInterval        int     `toml:"poll_interval"`
	MaxConcurrent       int     `toml:"max_concurrent"`
	RequestsPerSecond   float64 `toml:"requests_per_second"`
	ConfidenceThreshold float64 `toml:"confidence_threshold"`
	GapTolerance        int     `toml:"gap_tolerance"`
	PollMaxErrors       int     `toml:"poll_max_errors"`
	RequestTimeout      int     `toml:"request_timeout"`
	TokenSkewSeconds    int     `toml:"token_skew_seconds"`
}

// Split configures the external split and probe tools.
type Split struct {
	FFmpegBinary   string `toml:"ffmpeg_binary"`
	FFprobeBinary  string `toml:"ffprobe_binary"`
	SegmentSeconds int    `toml:"segment_seconds"`
}

// Workflow contains daemon scheduling and retry policy.
type Workflow struct {
	DiscoverySchedule   string `toml:"discovery_schedule"`
	DispatchSchedule    string `toml:"dispatch_schedule"`
	DownloadRetryDelay  int    `toml:"download_retry_delay"`
	DownloadMaxAttempts int    `toml:"download_max_attempts"` // 0 retries forever
	MaxParallelJobs     int    `toml:"max_parallel_jobs"`
	RecoverInterrupted  bool   `toml:"recover_interrupted"`
	MinFreeDiskGiB      int    `toml:"min_free_disk_gib"`
}

// Notifications contains webhook delivery settings.
type Notifications struct {
	Enabled        bool   `toml:"enabled"`
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for faceomatic.
//
// Configuration sections by subsystem:
//   - Paths: job markers, videos, results, logs, registry, and API bind address
//   - Archive: broadcast listing, download credentials, network allow-list
//   - Classifier: client credentials, polling, fan-out and aggregation thresholds
//   - Split: ffmpeg/ffprobe binaries and segment length
//   - Workflow: cron schedules and download retry policy
//   - Notifications: webhook delivery
//   - Logging: log format, level, and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Archive       Archive       `toml:"archive"`
	Classifier    Classifier    `toml:"classifier"`
	Split         Split         `toml:"split"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/faceomatic/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	if err := loadDotEnv(); err != nil {
		return nil, "", false, err
	}

	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("faceomatic.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.ProgramsDir,
		c.Paths.VideosDir,
		c.Paths.ResultsDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.WebhooksFile),
		filepath.Dir(c.Paths.LedgerPath),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RequireClassifier reports whether the classifier credentials needed to run
// the pipeline are present.
func (c *Config) RequireClassifier() error {
	missing := make([]string, 0, 3)
	if c.Classifier.ClientID == "" {
		missing = append(missing, "classifier.client_id (MATROID_CLIENT_ID)")
	}
	if c.Classifier.ClientSecret == "" {
		missing = append(missing, "classifier.client_secret (MATROID_CLIENT_SECRET)")
	}
	if c.Classifier.DetectorID == "" {
		missing = append(missing, "classifier.detector_id (MATROID_DETECTOR_ID)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing classifier settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// DownloadRetryDelay returns the delay before a failed download is retried.
func (c *Config) DownloadRetryDelay() time.Duration {
	return time.Duration(c.Workflow.DownloadRetryDelay) * time.Second
}

// PollInterval returns the classifier status polling cadence.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Classifier.PollInterval) * time.Second
}

// RecencyWindow returns how far from now a broadcast may have aired and still be registered.
func (c *Config) RecencyWindow() time.Duration {
	return time.Duration(c.Archive.RecencyHours) * time.Hour
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
