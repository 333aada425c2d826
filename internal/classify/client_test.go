package classify_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"faceomatic/internal/classify"
	"faceomatic/internal/config"
	"faceomatic/internal/jobs"
	"faceomatic/internal/services"
	"faceomatic/internal/testsupport"
)

func writeSegment(t *testing.T, cfg *config.Config, name string) string {
	t.Helper()
	path := filepath.Join(cfg.Paths.VideosDir, name)
	testsupport.WriteFile(t, path, 1024)
	return path
}

func newClient(t *testing.T, cfg *config.Config) *classify.Client {
	t.Helper()
	client, err := classify.New(cfg, classify.WithPollInterval(5*time.Millisecond))
	if err != nil {
		t.Fatalf("classify.New: %v", err)
	}
	return client
}

func TestClassifyUploadsAndPollsUntilComplete(t *testing.T) {
	fake := testsupport.NewFakeClassifier(t, map[string]string{
		"seg0.mp4": `{"classification_progress":100,"label_dict":{"7":"Jane Doe"},"detections":{"3":{"7":[{"score":95}]}}}`,
	})
	fake.PendingPolls = 2
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(fake.URL()))
	client := newClient(t, cfg)

	result, err := client.Classify(context.Background(), writeSegment(t, cfg, "seg0.mp4"))
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if result.VideoID != "vid-1" || result.LabelDict["7"] != "Jane Doe" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if got := result.Detections["3"]["7"]; len(got) != 1 || got[0].Score != 95 {
		t.Fatalf("unexpected detections: %+v", result.Detections)
	}
	if len(result.Raw) == 0 {
		t.Fatal("expected raw payload to be kept")
	}
	if uploads := fake.Uploads(); len(uploads) != 1 || uploads[0] != "seg0.mp4" {
		t.Fatalf("unexpected uploads: %v", uploads)
	}

	info, err := os.Stat(cfg.Paths.TokenCache)
	if err != nil {
		t.Fatalf("token cache not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("token cache mode = %o, want 600", perm)
	}
}

func TestTokenRefreshIsSharedByConcurrentCallers(t *testing.T) {
	var requests atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"shared","expires_in":3600}`))
	}))
	defer srv.Close()

	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))
	client := newClient(t, cfg)

	const callers = 8
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tokens[i], errs[i] = client.Tokens().Token(context.Background())
		}()
	}
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	for i := range callers {
		if errs[i] != nil || tokens[i] != "shared" {
			t.Fatalf("caller %d: token=%q err=%v", i, tokens[i], errs[i])
		}
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected one token request, got %d", got)
	}
}

func TestTokenRefreshSurvivesFirstCallerCancellation(t *testing.T) {
	var requests atomic.Int32
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		started <- struct{}{}
		<-release
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"survivor","expires_in":3600}`))
	}))
	defer srv.Close()
	defer close(release)

	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))
	tokens := newClient(t, cfg).Tokens()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := tokens.Token(firstCtx)
		firstErr <- err
	}()
	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("token request never reached the server")
	}

	type result struct {
		token string
		err   error
	}
	second := make(chan result, 1)
	go func() {
		token, err := tokens.Token(context.Background())
		second <- result{token, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelFirst()
	select {
	case err := <-firstErr:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("cancelled caller should see its own cancellation, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller did not return")
	}

	release <- struct{}{}
	select {
	case res := <-second:
		if res.err != nil || res.token != "survivor" {
			t.Fatalf("second caller: token=%q err=%v", res.token, res.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	if got := requests.Load(); got != 1 {
		t.Fatalf("expected one token request, got %d", got)
	}
}

func TestTokenCacheSurvivesRestartUntilSkew(t *testing.T) {
	fake := testsupport.NewFakeClassifier(t, nil)
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(fake.URL()))

	store := classify.NewFileTokenStore(cfg.Paths.TokenCache)
	if err := store.Save(classify.Token{AccessToken: "persisted", ExpiresAt: time.Now().Add(time.Hour)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, err := newClient(t, cfg).Tokens().Token(context.Background())
	if err != nil || token != "persisted" {
		t.Fatalf("expected persisted token, got %q err=%v", token, err)
	}
	if fake.TokenRequests() != 0 {
		t.Fatal("persisted token should not trigger a refresh")
	}

	// Inside the skew window the token counts as expired.
	if err := store.Save(classify.Token{AccessToken: "stale", ExpiresAt: time.Now().Add(30 * time.Second)}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	token, err = newClient(t, cfg).Tokens().Token(context.Background())
	if err != nil || token != "tok-1" {
		t.Fatalf("expected refreshed token, got %q err=%v", token, err)
	}
}

func TestTokenRejectedCredentialsAreConfigurationErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "invalid_client", http.StatusUnauthorized)
	}))
	defer srv.Close()
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))

	_, err := newClient(t, cfg).Tokens().Token(context.Background())
	if !errors.Is(err, classify.ErrUnauthorized) || !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected unauthorized configuration error, got %v", err)
	}
}

func statusServer(t *testing.T, submit, status http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"access_token":"t","expires_in":3600}`))
	})
	if submit == nil {
		submit = http.NotFound
	}
	if status == nil {
		status = http.NotFound
	}
	mux.HandleFunc("POST /detectors/{id}/classify_video", submit)
	mux.HandleFunc("GET /videos/{id}", status)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestSubmitWithoutVideoIDIsRejected(t *testing.T) {
	srv := statusServer(t,
		func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte(`{"message":"queued"}`)) },
		nil,
	)
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))

	_, err := newClient(t, cfg).Submit(context.Background(), writeSegment(t, cfg, "a.mp4"))
	if !errors.Is(err, classify.ErrSubmission) || !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected submission error, got %v", err)
	}
	if services.FailureState(err) != jobs.StateFailed {
		t.Fatalf("submission rejection should fail the job, got %s", services.FailureState(err))
	}
}

func TestPollRejectsMalformedPayloads(t *testing.T) {
	cases := map[string]string{
		"missing progress":   `{"label_dict":{}}`,
		"missing labels":     `{"classification_progress":100,"detections":{}}`,
		"unknown label":      `{"classification_progress":100,"label_dict":{},"detections":{"1":{"9":[{"score":99}]}}}`,
		"non numeric second": `{"classification_progress":100,"label_dict":{"1":"a"},"detections":{"x":{"1":[]}}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			srv := statusServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))
			_, err := newClient(t, cfg).Poll(context.Background(), "v1")
			if !errors.Is(err, classify.ErrMalformedResponse) {
				t.Fatalf("expected ErrMalformedResponse, got %v", err)
			}
		})
	}
}

func TestPollToleratesTransientFailuresUpToBudget(t *testing.T) {
	var calls atomic.Int32
	srv := statusServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(testsupport.EmptyResult))
	})
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))
	cfg.Classifier.PollMaxErrors = 2
	if _, err := newClient(t, cfg).Poll(context.Background(), "v1"); err != nil {
		t.Fatalf("expected recovery after two failures: %v", err)
	}

	calls.Store(0)
	cfg.Classifier.PollMaxErrors = 1
	_, err := newClient(t, cfg).Poll(context.Background(), "v1")
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient error once budget is spent, got %v", err)
	}
}

func TestPollStopsOnCancellation(t *testing.T) {
	srv := statusServer(t, nil, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"classification_progress":10}`))
	})
	cfg := testsupport.NewConfig(t, testsupport.WithClassifierURL(srv.URL))
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newClient(t, cfg).Poll(ctx, "v1")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
