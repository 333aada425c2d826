package config

import (
	"fmt"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeArchive()
	c.normalizeClassifier()
	c.normalizeSplit()
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	derived := []struct {
		key   string
		value *string
		name  string
	}{
		{"paths.programs_dir", &c.Paths.ProgramsDir, "programs"},
		{"paths.videos_dir", &c.Paths.VideosDir, "videos"},
		{"paths.results_dir", &c.Paths.ResultsDir, "results"},
		{"paths.webhooks_file", &c.Paths.WebhooksFile, "webhooks.txt"},
		{"paths.ledger_path", &c.Paths.LedgerPath, "ledger.db"},
		{"paths.token_cache", &c.Paths.TokenCache, "classifier_token.json"},
	}
	for _, d := range derived {
		if strings.TrimSpace(*d.value) == "" {
			*d.value = filepath.Join(c.Paths.DataDir, d.name)
		}
		if *d.value, err = expandPath(*d.value); err != nil {
			return fmt.Errorf("%s: %w", d.key, err)
		}
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeArchive() {
	lookupEnv(&c.Archive.UserID, "ARCHIVE_USER_ID")
	lookupEnv(&c.Archive.Signature, "ARCHIVE_SIG")
	c.Archive.ListingURL = strings.TrimSpace(c.Archive.ListingURL)
	if c.Archive.ListingURL == "" {
		c.Archive.ListingURL = defaultListingURL
	}
	c.Archive.DownloadBaseURL = strings.TrimRight(strings.TrimSpace(c.Archive.DownloadBaseURL), "/")
	if c.Archive.DownloadBaseURL == "" {
		c.Archive.DownloadBaseURL = defaultDownloadURL
	}
	c.Archive.DetailsBaseURL = strings.TrimRight(strings.TrimSpace(c.Archive.DetailsBaseURL), "/")
	if c.Archive.DetailsBaseURL == "" {
		c.Archive.DetailsBaseURL = defaultDetailsURL
	}
	networks := make([]string, 0, len(c.Archive.Networks))
	seen := make(map[string]struct{}, len(c.Archive.Networks))
	for _, network := range c.Archive.Networks {
		normalized := strings.ToUpper(strings.TrimSpace(network))
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		networks = append(networks, normalized)
	}
	c.Archive.Networks = networks
}

func (c *Config) normalizeClassifier() {
	lookupEnv(&c.Classifier.ClientID, "MATROID_CLIENT_ID")
	lookupEnv(&c.Classifier.ClientSecret, "MATROID_CLIENT_SECRET")
	lookupEnv(&c.Classifier.DetectorID, "MATROID_DETECTOR_ID")
	c.Classifier.BaseURL = strings.TrimRight(strings.TrimSpace(c.Classifier.BaseURL), "/")
	if c.Classifier.BaseURL == "" {
		c.Classifier.BaseURL = defaultClassifierURL
	}
	if c.Classifier.TokenSkewSeconds < 0 {
		c.Classifier.TokenSkewSeconds = 0
	}
}

func (c *Config) normalizeSplit() {
	c.Split.FFmpegBinary = strings.TrimSpace(c.Split.FFmpegBinary)
	c.Split.FFprobeBinary = strings.TrimSpace(c.Split.FFprobeBinary)
	// Environment paths only apply when the file left the default binary name in place.
	if c.Split.FFmpegBinary == "" || c.Split.FFmpegBinary == defaultFFmpegBinary {
		c.Split.FFmpegBinary = ""
		lookupEnv(&c.Split.FFmpegBinary, "FFMPEG_PATH")
		if c.Split.FFmpegBinary == "" {
			c.Split.FFmpegBinary = defaultFFmpegBinary
		}
	}
	if c.Split.FFprobeBinary == "" || c.Split.FFprobeBinary == defaultFFprobeBinary {
		c.Split.FFprobeBinary = ""
		lookupEnv(&c.Split.FFprobeBinary, "FFPROBE_PATH")
		if c.Split.FFprobeBinary == "" {
			c.Split.FFprobeBinary = defaultFFprobeBinary
		}
	}
}

func (c *Config) normalizeWorkflow() {
	c.Workflow.DiscoverySchedule = strings.TrimSpace(c.Workflow.DiscoverySchedule)
	if c.Workflow.DiscoverySchedule == "" {
		c.Workflow.DiscoverySchedule = defaultSchedule
	}
	c.Workflow.DispatchSchedule = strings.TrimSpace(c.Workflow.DispatchSchedule)
	if c.Workflow.DispatchSchedule == "" {
		c.Workflow.DispatchSchedule = defaultSchedule
	}
	if c.Workflow.DownloadMaxAttempts < 0 {
		c.Workflow.DownloadMaxAttempts = 0
	}
	if c.Workflow.MinFreeDiskGiB < 0 {
		c.Workflow.MinFreeDiskGiB = 0
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.UserAgent = strings.TrimSpace(c.Notifications.UserAgent)
	if c.Notifications.UserAgent == "" {
		c.Notifications.UserAgent = defaultNotificationUserAgent
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}
