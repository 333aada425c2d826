// Package download implements the pipeline stage that fetches a program's
// full recording from the archive.
package download

import (
	"context"
	"log/slog"
	"strings"

	"faceomatic/internal/archive"
	"faceomatic/internal/config"
	"faceomatic/internal/ledger"
	"faceomatic/internal/logging"
	"faceomatic/internal/stage"
)

const progressStep = 64 << 20

// Fetcher streams a recording to disk.
type Fetcher interface {
	Download(ctx context.Context, id, dest string, progress archive.ProgressFunc) (int64, error)
}

// Downloader is the download stage.
type Downloader struct {
	cfg    *config.Config
	client Fetcher
	logger *slog.Logger
}

// NewDownloader builds the stage around an archive client.
func NewDownloader(cfg *config.Config, client Fetcher, logger *slog.Logger) *Downloader {
	return &Downloader{cfg: cfg, client: client, logger: logging.NewComponentLogger(logger, "download")}
}

// Name implements stage.Handler.
func (d *Downloader) Name() string { return "download" }

// Execute downloads the job's recording into the videos directory. Failures
// carry services.ErrTransient from the archive client.
func (d *Downloader) Execute(ctx context.Context, run *stage.Run) error {
	dest := run.Layout.VideoPath(run.Job.ID)
	var reported int64
	written, err := d.client.Download(ctx, run.Job.ID, dest, func(n, total int64) {
		if n-reported < progressStep && n != total {
			return
		}
		reported = n
		run.Progress(ledger.Progress{BytesDownloaded: n})
	})
	if err != nil {
		return err
	}
	run.VideoPath = dest
	run.Bytes = written
	run.Progress(ledger.Progress{BytesDownloaded: written, Message: "recording downloaded"})
	return nil
}

// HealthCheck reports whether archive credentials are configured.
func (d *Downloader) HealthCheck(context.Context) stage.Health {
	if strings.TrimSpace(d.cfg.Archive.UserID) == "" || strings.TrimSpace(d.cfg.Archive.Signature) == "" {
		return stage.Unhealthy(d.Name(), "archive credentials missing (ARCHIVE_USER_ID, ARCHIVE_SIG)")
	}
	return stage.Healthy(d.Name())
}
