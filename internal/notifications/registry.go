package notifications

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gofrs/flock"

	"faceomatic/internal/fileutil"
)

// ErrInvalidWebhook is returned for registry entries that are not absolute
// http(s) URLs.
var ErrInvalidWebhook = errors.New("invalid webhook url")

// Registry is the newline-separated webhook file.
type Registry struct {
	path string
	lock *flock.Flock
}

// NewRegistry opens the registry at path. The file need not exist yet.
func NewRegistry(path string) *Registry {
	return &Registry{path: path, lock: flock.New(path + ".lock")}
}

// Path returns the registry file location.
func (r *Registry) Path() string { return r.path }

// List returns the registered URLs, skipping blank lines and stray carriage
// returns. A missing file is an empty registry.
func (r *Registry) List() ([]string, error) {
	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read webhook registry: %w", err)
	}
	return parseRegistry(data), nil
}

// Add validates raw and appends it unless already present. It reports whether
// the registry changed.
func (r *Registry) Add(raw string) (bool, error) {
	entry, err := ValidateWebhook(raw)
	if err != nil {
		return false, err
	}
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return false, fmt.Errorf("create registry directory: %w", err)
	}
	if err := r.lock.Lock(); err != nil {
		return false, fmt.Errorf("lock webhook registry: %w", err)
	}
	defer r.lock.Unlock()

	existing, err := r.List()
	if err != nil {
		return false, err
	}
	if slices.Contains(existing, entry) {
		return false, nil
	}

	data, err := os.ReadFile(r.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, fmt.Errorf("read webhook registry: %w", err)
	}
	f, err := os.OpenFile(r.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return false, fmt.Errorf("open webhook registry: %w", err)
	}
	defer f.Close()
	line := entry + "\n"
	if len(data) > 0 && !bytes.HasSuffix(data, []byte("\n")) {
		line = "\n" + line
	}
	if _, err := f.WriteString(line); err != nil {
		return false, fmt.Errorf("append webhook: %w", err)
	}
	return true, nil
}

// Remove deletes every occurrence of raw and reports whether one was found.
func (r *Registry) Remove(raw string) (bool, error) {
	entry := strings.TrimSpace(raw)
	if err := r.lock.Lock(); err != nil {
		return false, fmt.Errorf("lock webhook registry: %w", err)
	}
	defer r.lock.Unlock()

	existing, err := r.List()
	if err != nil {
		return false, err
	}
	kept := slices.DeleteFunc(slices.Clone(existing), func(s string) bool { return s == entry })
	if len(kept) == len(existing) {
		return false, nil
	}
	var buf bytes.Buffer
	for _, u := range kept {
		buf.WriteString(u)
		buf.WriteByte('\n')
	}
	if err := fileutil.WriteFileAtomic(r.path, buf.Bytes(), 0o600); err != nil {
		return false, fmt.Errorf("rewrite webhook registry: %w", err)
	}
	return true, nil
}

// ValidateWebhook trims raw and checks it is an absolute http(s) URL.
func ValidateWebhook(raw string) (string, error) {
	entry := strings.TrimSpace(raw)
	parsed, err := url.Parse(entry)
	if err != nil || entry == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidWebhook, raw)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("%w: %q must use http or https", ErrInvalidWebhook, raw)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidWebhook, raw)
	}
	return entry, nil
}

func parseRegistry(data []byte) []string {
	var urls []string
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(strings.TrimRight(scanner.Text(), "\r"))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	return urls
}
