package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"faceomatic/internal/classify"
	"faceomatic/internal/config"
	"faceomatic/internal/deps"
	"faceomatic/internal/notifications"
)

const classifierCheckTimeout = 30 * time.Second

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies the filesystem holding path has at least minBytes
// available. A zero minimum only reports the figure.
func CheckFreeSpace(name, path string, minBytes uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < minBytes {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, humanize.IBytes(minBytes))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckArchiveCredentials verifies the download cookie values are set.
func CheckArchiveCredentials(cfg *config.Config) Result {
	const name = "Archive credentials"
	switch {
	case cfg.Archive.UserID == "":
		return Result{Name: name, Detail: "archive.user_id missing (ARCHIVE_USER_ID)"}
	case cfg.Archive.Signature == "":
		return Result{Name: name, Detail: "archive.signature missing (ARCHIVE_SIG)"}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckClassifierCredentials verifies the classifier client settings are set.
func CheckClassifierCredentials(cfg *config.Config) Result {
	const name = "Classifier credentials"
	if err := cfg.RequireClassifier(); err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	return Result{Name: name, Passed: true, Detail: "configured"}
}

// CheckClassifier verifies the classifier accepts the configured client
// credentials by obtaining an access token. A valid cached token counts.
func CheckClassifier(ctx context.Context, cfg *config.Config, opts ...classify.Option) Result {
	const name = "Classifier"

	checkCtx, cancel := context.WithTimeout(ctx, classifierCheckTimeout)
	defer cancel()

	client, err := classify.New(cfg, opts...)
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if _, err := client.Tokens().Token(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "authenticated"}
}

// CheckWebhooks verifies notifications have somewhere to go.
func CheckWebhooks(cfg *config.Config, registry *notifications.Registry) Result {
	const name = "Webhooks"
	if !cfg.Notifications.Enabled {
		return Result{Name: name, Passed: true, Detail: "Disabled"}
	}
	urls, err := registry.List()
	if err != nil {
		return Result{Name: name, Detail: err.Error()}
	}
	if len(urls) == 0 {
		return Result{Name: name, Detail: fmt.Sprintf("no webhooks in %s (add one with faceomatic webhooks add URL)", registry.Path())}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%d registered", len(urls))}
}

// CheckSystemDeps evaluates the external binaries the pipeline shells out to.
// Both the daemon and the CLI status command use this.
func CheckSystemDeps(ctx context.Context, cfg *config.Config) []deps.Status {
	return deps.CheckBinaries(ctx, deps.Requirements(cfg))
}

func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "token request timed out (classifier unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "token request timed out (classifier unreachable)"
	}
	return err.Error()
}
