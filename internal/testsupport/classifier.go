package testsupport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// EmptyResult is a finished classification with no labels.
const EmptyResult = `{"classification_progress":100,"label_dict":{},"detections":{}}`

// FakeClassifier is an in-process stand-in for the classification service.
// Uploaded segments are matched to canned results by file base name.
type FakeClassifier struct {
	Server *httptest.Server
	// PendingPolls is how many status calls answer in-progress before the
	// canned result is returned.
	PendingPolls int

	mu            sync.Mutex
	results       map[string]string
	videos        map[string]string
	polls         map[string]int
	uploads       []string
	tokenRequests int
}

// NewFakeClassifier starts a fake service; results maps segment base names
// to the finished status payload. Unknown segments get EmptyResult.
func NewFakeClassifier(t testing.TB, results map[string]string) *FakeClassifier {
	t.Helper()
	f := &FakeClassifier{
		results: results,
		videos:  make(map[string]string),
		polls:   make(map[string]int),
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth/token", f.handleToken)
	mux.HandleFunc("POST /detectors/{detector}/classify_video", f.handleSubmit)
	mux.HandleFunc("GET /videos/{id}", f.handleStatus)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Server.Close)
	return f
}

// URL returns the base URL of the fake.
func (f *FakeClassifier) URL() string { return f.Server.URL }

// Uploads returns the base names of uploaded segments in arrival order.
func (f *FakeClassifier) Uploads() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.uploads...)
}

// TokenRequests returns how many tokens were issued.
func (f *FakeClassifier) TokenRequests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tokenRequests
}

func (f *FakeClassifier) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil || r.PostForm.Get("grant_type") != "client_credentials" {
		http.Error(w, "bad grant", http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.tokenRequests++
	n := f.tokenRequests
	f.mu.Unlock()
	writeJSON(w, map[string]any{"access_token": fmt.Sprintf("tok-%d", n), "expires_in": 3600, "token_type": "Bearer"})
}

func (f *FakeClassifier) handleSubmit(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer tok-") {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	file.Close()
	name := filepath.Base(header.Filename)

	f.mu.Lock()
	f.uploads = append(f.uploads, name)
	id := fmt.Sprintf("vid-%d", len(f.uploads))
	f.videos[id] = name
	f.mu.Unlock()
	writeJSON(w, map[string]string{"video_id": id})
}

func (f *FakeClassifier) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	f.mu.Lock()
	name, ok := f.videos[id]
	f.polls[id]++
	polls := f.polls[id]
	f.mu.Unlock()
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if polls <= f.PendingPolls {
		_, _ = w.Write([]byte(`{"classification_progress":50}`))
		return
	}
	body, ok := f.results[name]
	if !ok {
		body = EmptyResult
	}
	_, _ = w.Write([]byte(body))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
