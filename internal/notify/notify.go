// Package notify announces finished refresh runs to downstream consumers.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/JakeFAU/legisnotice/internal/legislation"
)

// Noop discards every event.
type Noop struct{}

// Notify implements legislation.Notifier.
func (Noop) Notify(context.Context, legislation.RefreshEvent) error { return nil }

// HTTPConfig points the webhook notifier at an external consumer of refresh
// events. It must not be this server's POST /refresh, which recrawls.
// APIKey is sent as X-API-Key when set.
type HTTPConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// HTTP posts the event as JSON.
type HTTP struct {
	client *http.Client
	url    string
	apiKey string
}

// NewHTTP validates cfg and builds an HTTP notifier.
func NewHTTP(cfg HTTPConfig) (*HTTP, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("notify: invalid url %q", cfg.URL)
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		client: &http.Client{Timeout: timeout},
		url:    u.String(),
		apiKey: cfg.APIKey,
	}, nil
}

// Notify posts event and treats any non-2xx response as a failure.
func (n *HTTP) Notify(ctx context.Context, event legislation.RefreshEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.apiKey != "" {
		req.Header.Set("X-API-Key", n.apiKey)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notify: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post notify: status %d", resp.StatusCode)
	}
	return nil
}
