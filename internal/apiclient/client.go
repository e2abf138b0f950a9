// Package apiclient talks to a running fungimap server.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/lazypower/fungimap/internal/relevance"
	"github.com/lazypower/fungimap/internal/replay"
)

const (
	defaultServerURL = "http://127.0.0.1:37778"
	httpTimeout      = 5 * time.Second
)

// Client is a thin JSON client for the HTTP API.
type Client struct {
	http      *http.Client
	serverURL string
}

// New creates a client for serverURL. An empty URL falls back to
// FUNGIMAP_URL, then to the default local address.
func New(serverURL string) *Client {
	if serverURL == "" {
		serverURL = os.Getenv("FUNGIMAP_URL")
	}
	if serverURL == "" {
		serverURL = defaultServerURL
	}
	return &Client{
		http:      &http.Client{Timeout: httpTimeout},
		serverURL: strings.TrimRight(serverURL, "/"),
	}
}

// URL is the server base URL.
func (c *Client) URL() string { return c.serverURL }

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s: %w", path, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.serverURL+path, body)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode %s: %w", path, err)
		}
	}
	return nil
}

// TrackResult is the server's reply to a tracked action.
type TrackResult struct {
	Recorded bool `json:"recorded"`
	Total    int  `json:"total"`
}

// Track posts one action.
func (c *Client) Track(ctx context.Context, ev replay.Event) (TrackResult, error) {
	var res TrackResult
	err := c.do(ctx, http.MethodPost, "/api/actions", ev, &res)
	return res, err
}

// Relevance fetches the breakdowns for the displayed set.
func (c *Client) Relevance(ctx context.Context, force bool) ([]relevance.Breakdown, error) {
	path := "/api/relevance"
	if force {
		path += "?" + url.Values{"force": {"1"}}.Encode()
	}
	var out struct {
		Scores []relevance.Breakdown `json:"scores"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Scores, nil
}

// Session fetches the live session stats.
func (c *Client) Session(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.do(ctx, http.MethodGet, "/api/session", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Healthy checks if the server is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.do(ctx, http.MethodGet, "/api/health", nil, nil) == nil
}
