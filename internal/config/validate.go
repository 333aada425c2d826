package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateArchive(); err != nil {
		return err
	}
	if err := c.validateClassifier(); err != nil {
		return err
	}
	if err := c.validateSplit(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateArchive() error {
	if len(c.Archive.Networks) == 0 {
		return errors.New("archive.networks must list at least one network")
	}
	for key, raw := range map[string]string{
		"archive.listing_url":       c.Archive.ListingURL,
		"archive.download_base_url": c.Archive.DownloadBaseURL,
		"archive.details_base_url":  c.Archive.DetailsBaseURL,
	} {
		if err := validateHTTPURL(key, raw); err != nil {
			return err
		}
	}
	return ensurePositiveMap(map[string]int{
		"archive.recency_hours":   c.Archive.RecencyHours,
		"archive.request_timeout": c.Archive.RequestTimeout,
	})
}

func (c *Config) validateClassifier() error {
	if err := validateHTTPURL("classifier.base_url", c.Classifier.BaseURL); err != nil {
		return err
	}
	if err := ensurePositiveMap(map[string]int{
		"classifier.poll_interval":   c.Classifier.PollInterval,
		"classifier.max_concurrent":  c.Classifier.MaxConcurrent,
		"classifier.poll_max_errors": c.Classifier.PollMaxErrors,
		"classifier.request_timeout": c.Classifier.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Classifier.RequestsPerSecond <= 0 {
		return errors.New("classifier.requests_per_second must be positive")
	}
	if c.Classifier.ConfidenceThreshold < 0 || c.Classifier.ConfidenceThreshold > 100 {
		return errors.New("classifier.confidence_threshold must be between 0 and 100")
	}
	if c.Classifier.GapTolerance < 0 {
		return errors.New("classifier.gap_tolerance must be >= 0")
	}
	return nil
}

func (c *Config) validateSplit() error {
	if c.Split.SegmentSeconds <= 0 {
		return errors.New("split.segment_seconds must be positive")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if err := ensurePositiveMap(map[string]int{
		"workflow.download_retry_delay":  c.Workflow.DownloadRetryDelay,
		"workflow.max_parallel_jobs":     c.Workflow.MaxParallelJobs,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	}); err != nil {
		return err
	}
	if _, err := cron.ParseStandard(c.Workflow.DiscoverySchedule); err != nil {
		return fmt.Errorf("workflow.discovery_schedule: %w", err)
	}
	if _, err := cron.ParseStandard(c.Workflow.DispatchSchedule); err != nil {
		return fmt.Errorf("workflow.dispatch_schedule: %w", err)
	}
	return nil
}

func validateHTTPURL(key, raw string) error {
	parsed, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%s must be an absolute http(s) URL", key)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
