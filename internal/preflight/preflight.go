package preflight

import (
	"context"

	"faceomatic/internal/config"
	"faceomatic/internal/notifications"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every preflight check, including the classifier token
// request. Pass a nil registry to skip the webhook check.
func RunAll(ctx context.Context, cfg *config.Config, registry *notifications.Registry) []Result {
	results := RunLocal(ctx, cfg, registry)
	if cfg != nil && cfg.RequireClassifier() == nil {
		results = append(results, CheckClassifier(ctx, cfg))
	}
	return results
}

// RunLocal executes the checks that need no network access: directories,
// free space, credentials, webhooks, and external binaries.
func RunLocal(ctx context.Context, cfg *config.Config, registry *notifications.Registry) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Programs directory", cfg.Paths.ProgramsDir),
		CheckDirectoryAccess("Videos directory", cfg.Paths.VideosDir),
		CheckDirectoryAccess("Results directory", cfg.Paths.ResultsDir),
		CheckFreeSpace("Videos free space", cfg.Paths.VideosDir, uint64(cfg.Workflow.MinFreeDiskGiB)<<30),
		CheckArchiveCredentials(cfg),
		CheckClassifierCredentials(cfg),
	}
	if registry != nil {
		results = append(results, CheckWebhooks(cfg, registry))
	}

	for _, status := range CheckSystemDeps(ctx, cfg) {
		result := Result{Name: status.Name, Passed: status.Available || status.Optional, Detail: status.Detail}
		if status.Available {
			result.Detail = status.Version
		}
		results = append(results, result)
	}
	return results
}

// Failed filters results down to the failing checks.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
