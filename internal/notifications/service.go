package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"faceomatic/internal/config"
	"faceomatic/internal/logging"
)

const maxConcurrentPosts = 8

// Service defines the notification surface exposed to workflow components.
type Service interface {
	// Publish posts text to every registered webhook. Failures are logged,
	// never returned.
	Publish(ctx context.Context, text string) Delivery
	// Test posts a short message and reports the first failure.
	Test(ctx context.Context) (Delivery, error)
}

// Delivery summarises one publish.
type Delivery struct {
	Targets   int `json:"targets"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

// NewService builds a webhook notifier. When notifications are disabled a
// noop implementation is returned.
func NewService(cfg *config.Config, registry *Registry, logger *slog.Logger) Service {
	if !cfg.Notifications.Enabled || registry == nil {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookService{
		registry:  registry,
		client:    &http.Client{Timeout: timeout},
		userAgent: cfg.Notifications.UserAgent,
		logger:    logging.NewComponentLogger(logger, "notify"),
	}
}

type webhookService struct {
	registry  *Registry
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

type message struct {
	Text string `json:"text"`
}

func (w *webhookService) Publish(ctx context.Context, text string) Delivery {
	delivery, _ := w.publish(ctx, text)
	return delivery
}

func (w *webhookService) Test(ctx context.Context) (Delivery, error) {
	return w.publish(ctx, "faceomatic webhook test")
}

func (w *webhookService) publish(ctx context.Context, text string) (Delivery, error) {
	targets, err := w.registry.List()
	if err != nil {
		logging.WarnWithContext(w.logger, "webhook registry unreadable", "notify_registry_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "report not delivered"),
			logging.String(logging.FieldErrorHint, "check "+w.registry.Path()),
		)
		return Delivery{}, err
	}
	if len(targets) == 0 {
		logging.WarnWithContext(w.logger, "no webhooks registered", "notify_no_targets",
			logging.String(logging.FieldImpact, "report not delivered"),
			logging.String(logging.FieldErrorHint, "run faceomatic webhooks add URL"),
		)
		return Delivery{}, nil
	}

	body, err := json.Marshal(message{Text: text})
	if err != nil {
		return Delivery{}, fmt.Errorf("encode webhook payload: %w", err)
	}

	var (
		delivered, failed atomic.Int32
		mu                sync.Mutex
		firstErr          error
	)
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentPosts)
	for _, target := range targets {
		g.Go(func() error {
			if err := w.post(ctx, target, body); err != nil {
				failed.Add(1)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				logging.WarnWithContext(w.logger, "webhook delivery failed", "notify_failed",
					logging.String("webhook", redact(target)),
					logging.Error(err),
					logging.String(logging.FieldImpact, "one subscriber missed this report"),
				)
				return nil
			}
			delivered.Add(1)
			return nil
		})
	}
	_ = g.Wait()

	delivery := Delivery{Targets: len(targets), Delivered: int(delivered.Load()), Failed: int(failed.Load())}
	w.logger.Info("report published",
		logging.Int("targets", delivery.Targets),
		logging.Int("delivered", delivery.Delivered),
		logging.Int("failed", delivery.Failed),
		logging.EventType("report_published"),
	)
	return delivery, firstErr
}

func (w *webhookService) post(ctx context.Context, target string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-type", "application/json")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// redact keeps the host of a webhook URL; the path usually embeds a secret.
func redact(target string) string {
	scheme, rest, ok := strings.Cut(target, "://")
	if !ok {
		return "webhook"
	}
	host, _, _ := strings.Cut(rest, "/")
	return scheme + "://" + host + "/..."
}

type noopService struct{}

func (noopService) Publish(context.Context, string) Delivery { return Delivery{} }
func (noopService) Test(context.Context) (Delivery, error)   { return Delivery{}, nil }
