package main

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"faceomatic/internal/config"
	"faceomatic/internal/daemonrun"
	"faceomatic/internal/jobs"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/notifications"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error

	mu       sync.Mutex
	logger   *slog.Logger
	pipeline *daemonrun.Pipeline
	ledger   *ledger.Store
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// commandLogger writes to stdout and the shared faceomatic.log.
func (c *commandContext) commandLogger() (*slog.Logger, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	c.logger = logger
	return logger, nil
}

// wiredPipeline builds every stage; only commands that run jobs need it.
func (c *commandContext) wiredPipeline() (*daemonrun.Pipeline, error) {
	logger, err := c.commandLogger()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline != nil {
		return c.pipeline, nil
	}
	pipeline, err := daemonrun.NewPipeline(c.config, logger)
	if err != nil {
		return nil, err
	}
	c.pipeline = pipeline
	return pipeline, nil
}

func (c *commandContext) jobStore() (*jobs.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return jobs.Open(cfg)
}

func (c *commandContext) runLedger() (*ledger.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger != nil {
		return c.ledger, nil
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open run ledger: %w", err)
	}
	c.ledger = store
	return store, nil
}

func (c *commandContext) registry() (*notifications.Registry, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return notifications.NewRegistry(cfg.Paths.WebhooksFile), nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pipeline != nil {
		_ = c.pipeline.Close()
		c.pipeline = nil
	}
	if c.ledger != nil {
		_ = c.ledger.Close()
		c.ledger = nil
	}
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
