package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"faceomatic/internal/config"
	"faceomatic/internal/logging"
	"faceomatic/internal/services"
)

const (
	errorBodyLimit  = 2048
	maxPayloadBytes = 64 << 20
)

// HTTPDoer abstracts http.Client.Do for testing.
type HTTPDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Option customises Client construction.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client used for classifier calls.
func WithHTTPClient(client HTTPDoer) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenStore injects a custom token persistence layer.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.NewComponentLogger(logger, "classify")
	}
}

// WithPollInterval overrides the status polling cadence.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLimiter shares a rate limiter across clients.
func WithLimiter(limiter *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// Client uploads segments for classification and collects the results.
type Client struct {
	httpClient     HTTPDoer
	baseURL        string
	detectorID     string
	pollInterval   time.Duration
	maxPollErrors  int
	requestTimeout time.Duration
	limiter        *rate.Limiter
	store          TokenStore
	logger         *slog.Logger
	now            func() time.Time
	tokens         *TokenProvider
}

// New builds a Client from configuration. The cached token, if any, is loaded
// from the configured token file.
func New(cfg *config.Config, opts ...Option) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}
	if err := cfg.RequireClassifier(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "classify", "init", "", err)
	}
	c := &Client{
		// Uploads have no overall deadline; status calls use requestTimeout.
		httpClient:     &http.Client{},
		baseURL:        strings.TrimRight(cfg.Classifier.BaseURL, "/"),
		detectorID:     cfg.Classifier.DetectorID,
		pollInterval:   cfg.PollInterval(),
		maxPollErrors:  cfg.Classifier.PollMaxErrors,
		requestTimeout: time.Duration(cfg.Classifier.RequestTimeout) * time.Second,
		limiter:        NewLimiter(cfg.Classifier.RequestsPerSecond),
		store:          NewFileTokenStore(cfg.Paths.TokenCache),
		logger:         logging.NewComponentLogger(nil, "classify"),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{}
	}
	if c.limiter == nil {
		c.limiter = NewLimiter(0)
	}
	skew := time.Duration(cfg.Classifier.TokenSkewSeconds) * time.Second
	tokens, err := newTokenProvider(c, cfg.Classifier.ClientID, cfg.Classifier.ClientSecret, skew, c.store)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "classify", "load token", "", err)
	}
	c.tokens = tokens
	return c, nil
}

// NewLimiter builds the request limiter; rps <= 0 disables limiting.
func NewLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Tokens exposes the token provider.
func (c *Client) Tokens() *TokenProvider { return c.tokens }

// Classify uploads path and waits for its finished result.
func (c *Client) Classify(ctx context.Context, path string) (Result, error) {
	videoID, err := c.Submit(ctx, path)
	if err != nil {
		return Result{}, err
	}
	result, err := c.Poll(ctx, videoID)
	if err != nil {
		return Result{}, err
	}
	result.VideoID = videoID
	return result, nil
}

type submitResponse struct {
	VideoID string `json:"video_id"`
}

// Submit uploads a video segment to the configured detector and returns the
// service's video id.
func (c *Client) Submit(ctx context.Context, path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "classify", "submit", "segment unreadable", err)
	}
	endpoint := c.baseURL + "/detectors/" + url.PathEscape(c.detectorID) + "/classify_video"

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.authorize(ctx)
		if err != nil {
			return "", err
		}
		resp, err := c.upload(ctx, endpoint, path, token)
		if err != nil {
			return "", services.Wrap(services.ErrTransient, "classify", "submit", "", err)
		}
		if resp.StatusCode == http.StatusUnauthorized && attempt == 0 {
			drain(resp)
			c.tokens.Invalidate(token)
			lastErr = services.Wrap(services.ErrConfiguration, "classify", "submit", "unauthorized", ErrUnauthorized)
			continue
		}
		videoID, err := decodeSubmit(resp)
		if err != nil {
			return "", err
		}
		c.logger.Debug("segment submitted",
			logging.String("path", filepath.Base(path)),
			logging.Int64("bytes", info.Size()),
			logging.String("video_id", videoID),
		)
		return videoID, nil
	}
	return "", lastErr
}

func (c *Client) upload(ctx context.Context, endpoint, path, token string) (*http.Response, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		part, err := form.CreateFormFile("file", filepath.Base(path))
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = form.Close()
		}
		pw.CloseWithError(err)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, pr)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		pr.CloseWithError(err)
		return nil, err
	}
	return resp, nil
}

func decodeSubmit(resp *http.Response) (string, error) {
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", services.Wrap(services.ErrTransient, "classify", "submit", statusDetail(resp), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", services.Wrap(services.ErrValidation, "classify", "submit", statusDetail(resp), ErrSubmission)
	}
	var payload submitResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrValidation, "classify", "submit", "undecodable response", ErrSubmission)
	}
	if strings.TrimSpace(payload.VideoID) == "" {
		return "", services.Wrap(services.ErrValidation, "classify", "submit", "response has no video_id", ErrSubmission)
	}
	return payload.VideoID, nil
}

// Poll queries the status of videoID until classification completes. There is
// no cap on the number of polls; ctx is the only way to stop waiting. Up to
// poll_max_errors consecutive transient failures are tolerated.
func (c *Client) Poll(ctx context.Context, videoID string) (Result, error) {
	endpoint := c.baseURL + "/videos/" + url.PathEscape(videoID)
	sampler := logging.NewProgressSampler(25)
	failures := 0

	for {
		result, done, err := c.pollOnce(ctx, endpoint)
		switch {
		case err == nil && done:
			c.logger.Debug("classification complete", logging.String("video_id", videoID))
			return result, nil
		case err == nil:
			failures = 0
			if sampler.ShouldLog(result.Progress, "classify") {
				c.logger.Info("classification progress",
					logging.String("video_id", videoID),
					logging.Float64("progress", result.Progress),
					logging.EventType("classification_progress"),
				)
			}
		case errors.Is(err, services.ErrTransient):
			failures++
			if c.maxPollErrors > 0 && failures > c.maxPollErrors {
				return Result{}, fmt.Errorf("poll %s: %d consecutive failures: %w", videoID, failures, err)
			}
			logging.WarnWithContext(c.logger, "classification status check failed", "classification_poll_retry",
				logging.String("video_id", videoID),
				logging.Int("consecutive_failures", failures),
				logging.Error(err),
				logging.String(logging.FieldImpact, "status will be checked again"),
			)
		default:
			return Result{}, err
		}

		timer := time.NewTimer(c.pollInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Result{}, ctx.Err()
		case <-timer.C:
		}
	}
}

func (c *Client) pollOnce(ctx context.Context, endpoint string) (Result, bool, error) {
	token, err := c.authorize(ctx)
	if err != nil {
		return Result{}, false, err
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Result{}, false, services.Wrap(services.ErrConfiguration, "classify", "poll", "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Result{}, false, ctx.Err()
		}
		return Result{}, false, services.Wrap(services.ErrTransient, "classify", "poll", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.tokens.Invalidate(token)
		return Result{}, false, services.Wrap(services.ErrTransient, "classify", "poll", statusDetail(resp), nil)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return Result{}, false, services.Wrap(services.ErrTransient, "classify", "poll", statusDetail(resp), nil)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return Result{}, false, services.Wrap(services.ErrValidation, "classify", "poll", statusDetail(resp), nil)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return Result{}, false, services.Wrap(services.ErrTransient, "classify", "poll", "read body", err)
	}
	result, done, err := decodeStatus(data)
	if err != nil {
		return Result{}, false, services.Wrap(services.ErrValidation, "classify", "poll", "", err)
	}
	return result, done, nil
}

func (c *Client) authorize(ctx context.Context) (string, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return token, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, errorBodyLimit))
	resp.Body.Close()
}
