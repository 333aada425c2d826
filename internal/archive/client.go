package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"faceomatic/internal/config"
	"faceomatic/internal/fileutil"
	"faceomatic/internal/logging"
	"faceomatic/internal/services"
)

const errorBodyLimit = 2048

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// ProgressFunc receives the running byte count of a download and the expected
// total (-1 when the origin did not send a length).
type ProgressFunc func(written, total int64)

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for archive requests.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.http = client
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "archive")
	}
}

// Client fetches listings and recordings from the archive.
type Client struct {
	http           HTTPDoer
	logger         *slog.Logger
	listingURL     string
	downloadBase   string
	detailsBase    string
	userID         string
	signature      string
	requestTimeout time.Duration
}

// New builds a Client from configuration.
func New(cfg *config.Config, opts ...Option) *Client {
	timeout := time.Duration(cfg.Archive.RequestTimeout) * time.Second
	c := &Client{
		http: &http.Client{
			// No overall timeout: recordings are several gigabytes.
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: timeout,
				TLSHandshakeTimeout:   10 * time.Second,
				IdleConnTimeout:       90 * time.Second,
			},
		},
		logger:         logging.NewComponentLogger(nil, "archive"),
		listingURL:     cfg.Archive.ListingURL,
		downloadBase:   strings.TrimRight(cfg.Archive.DownloadBaseURL, "/"),
		detailsBase:    strings.TrimRight(cfg.Archive.DetailsBaseURL, "/"),
		userID:         cfg.Archive.UserID,
		signature:      cfg.Archive.Signature,
		requestTimeout: timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FetchIDs returns the program ids currently listed by the archive.
func (c *Client) FetchIDs(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.listingURL, nil)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "discovery", "build listing request", "", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "discovery", "fetch listing", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, services.Wrap(services.ErrTransient, "discovery", "fetch listing", statusDetail(resp), nil)
	}

	var raw []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, services.Wrap(services.ErrValidation, "discovery", "decode listing", "expected a JSON array", err)
	}
	ids := make([]string, 0, len(raw))
	for _, item := range raw {
		var id string
		if err := json.Unmarshal(item, &id); err != nil {
			continue
		}
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// DownloadURL returns the origin location of a program's full recording.
func (c *Client) DownloadURL(id string) string {
	escaped := url.PathEscape(id)
	return c.downloadBase + "/" + escaped + "/" + escaped + ".mp4"
}

// Download streams the program's recording to dest and returns its size.
// Every failure is transient: the caller reverts the job and retries later.
func (c *Client) Download(ctx context.Context, id, dest string, progress ProgressFunc) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.DownloadURL(id), nil)
	if err != nil {
		return 0, services.Wrap(services.ErrConfiguration, "download", "build request", "", err)
	}
	if cookie := c.cookie(); cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, services.Wrap(services.ErrTransient, "download", "request recording", "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, services.Wrap(services.ErrTransient, "download", "request recording", statusDetail(resp), nil)
	}

	total := resp.ContentLength
	c.logger.Info("download started",
		logging.JobID(id),
		logging.String("size", sizeLabel(total)),
		logging.String(logging.FieldEventType, "download_started"),
	)

	body := io.Reader(resp.Body)
	if progress != nil {
		body = &progressReader{r: resp.Body, total: total, report: progress}
	}
	written, err := fileutil.StreamToFile(dest, body, total)
	if err != nil {
		return written, services.Wrap(services.ErrTransient, "download", "write recording", "", err)
	}

	elapsed := time.Since(started)
	c.logger.Info("download completed",
		logging.JobID(id),
		logging.String("size", humanize.Bytes(uint64(written))),
		logging.Duration("elapsed", elapsed.Round(time.Second)),
		logging.String("rate", rateLabel(written, elapsed)),
		logging.String(logging.FieldEventType, "download_completed"),
	)
	return written, nil
}

// DetailsURL is the public page for a program.
func (c *Client) DetailsURL(id string) string {
	return DetailsURL(c.detailsBase, id)
}

// DetailsURL is the public page for a program under base.
func DetailsURL(base, id string) string {
	return strings.TrimRight(base, "/") + "/" + id
}

// IntervalURL deep-links into a program's player at [start, end] seconds.
func IntervalURL(base, id string, start, end int) string {
	return DetailsURL(base, id) + "#start/" + strconv.Itoa(start) + "/end/" + strconv.Itoa(end)
}

func (c *Client) cookie() string {
	if c.userID == "" && c.signature == "" {
		return ""
	}
	return "logged-in-user=" + c.userID + ";logged-in-sig=" + c.signature
}

func statusDetail(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	if text := strings.TrimSpace(string(snippet)); text != "" {
		detail += ": " + text
	}
	return detail
}

func sizeLabel(n int64) string {
	if n < 0 {
		return "unknown"
	}
	return humanize.Bytes(uint64(n))
}

func rateLabel(n int64, elapsed time.Duration) string {
	if elapsed <= 0 || n <= 0 {
		return "n/a"
	}
	perSecond := float64(n) / elapsed.Seconds()
	return humanize.Bytes(uint64(perSecond)) + "/s"
}

type progressReader struct {
	r       io.Reader
	total   int64
	written int64
	report  ProgressFunc
}

func (p *progressReader) Read(buf []byte) (int, error) {
	n, err := p.r.Read(buf)
	if n > 0 {
		p.written += int64(n)
		p.report(p.written, p.total)
	}
	return n, err
}
