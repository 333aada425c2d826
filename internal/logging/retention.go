package logging

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// PruneLogs deletes regular files in dir matching pattern whose modification
// time is older than retentionDays. Paths in keep are never removed, nor are
// symlinks such as the faceomatic.log pointer. It returns the removed paths;
// retentionDays <= 0 disables pruning.
func PruneLogs(logger *slog.Logger, dir, pattern string, retentionDays int, keep ...string) []string {
	if retentionDays <= 0 || dir == "" {
		return nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		WarnWithContext(logger, "log retention pattern invalid", "log_retention_failed",
			String("pattern", pattern),
			Error(err),
			String(FieldImpact, "old logs are not pruned"),
		)
		return nil
	}

	kept := make([]string, 0, len(keep))
	for _, path := range keep {
		if abs, err := filepath.Abs(path); err == nil {
			kept = append(kept, abs)
		}
	}
	cutoff := time.Now().Add(-time.Duration(retentionDays) * 24 * time.Hour)

	var removed []string
	for _, path := range matches {
		if abs, err := filepath.Abs(path); err == nil && slices.Contains(kept, abs) {
			continue
		}
		info, err := os.Lstat(path)
		if err != nil || info.Mode()&fs.ModeType != 0 || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			WarnWithContext(logger, "log retention remove failed; file remains", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check log_dir ownership"),
			)
			continue
		}
		removed = append(removed, path)
	}
	if len(removed) > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("count", len(removed)),
			Int("retention_days", retentionDays),
			String(FieldEventType, "log_pruned"),
		)
	}
	return removed
}
