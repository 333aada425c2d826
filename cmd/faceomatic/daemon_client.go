package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"faceomatic/internal/config"
)

// daemonClient talks to a running daemon's HTTP API.
type daemonClient struct {
	base string
	http *http.Client
}

func newDaemonClient(cfg *config.Config) *daemonClient {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return nil
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return &daemonClient{
		base: "http://" + net.JoinHostPort(host, port),
		http: &http.Client{Timeout: 2 * time.Minute},
	}
}

// reachable reports whether a daemon answers on the API address.
func (c *daemonClient) reachable(ctx context.Context) bool {
	if c == nil {
		return false
	}
	probeCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
	defer cancel()
	return c.do(probeCtx, http.MethodGet, "/api/status", nil) == nil
}

func (c *daemonClient) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("daemon %s %s: %s", method, path, apiErr.Error)
		}
		return fmt.Errorf("daemon %s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
