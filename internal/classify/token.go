package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"faceomatic/internal/logging"
	"faceomatic/internal/services"
)

// TokenProvider hands out a valid access token, fetching a new one through a
// single shared refresh when the cached token is missing or about to expire.
type TokenProvider struct {
	httpClient   HTTPDoer
	endpoint     string
	clientID     string
	clientSecret string
	skew         time.Duration
	timeout      time.Duration
	store        TokenStore
	limiter      *rate.Limiter
	logger       *slog.Logger
	now          func() time.Time

	mu     sync.RWMutex
	cached Token
	group  singleflight.Group
}

type tokenResponse struct {
	AccessToken string  `json:"access_token"`
	ExpiresIn   float64 `json:"expires_in"`
	TokenType   string  `json:"token_type"`
}

func newTokenProvider(c *Client, clientID, clientSecret string, skew time.Duration, store TokenStore) (*TokenProvider, error) {
	if store == nil {
		store = memoryTokenStore{}
	}
	p := &TokenProvider{
		httpClient:   c.httpClient,
		endpoint:     c.baseURL + "/oauth/token",
		clientID:     clientID,
		clientSecret: clientSecret,
		skew:         skew,
		timeout:      c.requestTimeout,
		store:        store,
		limiter:      c.limiter,
		logger:       c.logger,
		now:          c.now,
	}
	cached, err := store.Load()
	if err != nil {
		return nil, err
	}
	p.cached = cached
	return p, nil
}

// Token returns a usable access token.
func (p *TokenProvider) Token(ctx context.Context) (string, error) {
	if token, ok := p.current(); ok {
		return token, nil
	}
	// The refresh outlives any single caller; each caller stops waiting on
	// its own cancellation only.
	refreshCtx := context.WithoutCancel(ctx)
	ch := p.group.DoChan("token", func() (any, error) {
		if token, ok := p.current(); ok {
			return token, nil
		}
		return p.refresh(refreshCtx)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			p.logger.Debug("shared classifier token refresh")
		}
		return res.Val.(string), nil
	}
}

// Invalidate drops the cached token so the next caller refreshes. Only the
// token that was rejected is dropped; a newer one fetched meanwhile survives.
func (p *TokenProvider) Invalidate(rejected string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached.AccessToken == rejected {
		p.cached = Token{}
	}
}

func (p *TokenProvider) current() (string, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.cached.validAt(p.now(), p.skew) {
		return p.cached.AccessToken, true
	}
	return "", false
}

func (p *TokenProvider) refresh(ctx context.Context) (string, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return "", err
		}
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	form := url.Values{}
	form.Set("client_id", p.clientID)
	form.Set("client_secret", p.clientSecret)
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "classify", "build token request", "", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "classify", "request token", "", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", services.Wrap(services.ErrConfiguration, "classify", "request token", statusDetail(resp), ErrUnauthorized)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return "", services.Wrap(services.ErrTransient, "classify", "request token", statusDetail(resp), nil)
	}

	var payload tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxPayloadBytes)).Decode(&payload); err != nil {
		return "", services.Wrap(services.ErrTransient, "classify", "decode token", "", err)
	}
	if payload.AccessToken == "" || payload.ExpiresIn <= 0 {
		return "", services.Wrap(services.ErrTransient, "classify", "decode token", "missing access_token or expires_in", nil)
	}

	token := Token{
		AccessToken: payload.AccessToken,
		ExpiresAt:   p.now().Add(time.Duration(payload.ExpiresIn * float64(time.Second))),
	}
	p.mu.Lock()
	p.cached = token
	p.mu.Unlock()

	if err := p.store.Save(token); err != nil {
		logging.WarnWithContext(p.logger, "classifier token not persisted", "token_persist_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "token will be refreshed again after restart"),
		)
	}
	p.logger.Info("classifier token refreshed",
		logging.String("expires_at", token.ExpiresAt.UTC().Format(time.RFC3339)),
		logging.EventType("token_refreshed"),
	)
	return token.AccessToken, nil
}

func statusDetail(resp *http.Response) string {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	detail := fmt.Sprintf("status %d", resp.StatusCode)
	if text := strings.TrimSpace(string(snippet)); text != "" {
		detail += ": " + text
	}
	return detail
}
