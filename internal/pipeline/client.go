package pipeline

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"server/internal/infra"
)

// Options controls how a stage client is configured.
type Options struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *infra.Logger
}

// Client is a lightweight facade over one media backend. When no base
// URL is configured the client runs in synthetic mode and stages produce
// deterministic placeholder assets, which keeps the worker fully
// operational in local and CI environments while preserving the
// extension points for real API calls.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *infra.Logger
}

type clientError struct {
	Error struct {
		Code    int    `json:"code,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"error"`
}

// NewClient constructs a stage client with sane defaults. Callers may
// provide a nil HTTP client; a reusable one with a timeout is created.
func NewClient(opts Options) *Client {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}

	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/"),
		httpClient: client,
		logger:     logger,
	}
}

// Synthetic reports whether the client has no backend configured.
func (c *Client) Synthetic() bool {
	return c.baseURL == ""
}

// postJSON sends the request body to path and decodes the JSON response
// into out. Non-2xx responses are surfaced with the backend's message.
func (c *Client) postJSON(ctx context.Context, path string, in, out any) error {
	if c.Synthetic() {
		return fmt.Errorf("pipeline: no backend configured for %s", path)
	}

	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("pipeline: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("pipeline: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pipeline: call %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<20))
	if err != nil {
		return fmt.Errorf("pipeline: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var ce clientError
		if json.Unmarshal(body, &ce) == nil && ce.Error.Message != "" {
			return fmt.Errorf("pipeline: %s returned %d: %s", path, resp.StatusCode, ce.Error.Message)
		}
		return fmt.Errorf("pipeline: %s returned %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("pipeline: decode response: %w", err)
	}
	return nil
}

// syntheticBytes derives a stable placeholder payload from the stage
// name and seed so retried runs reproduce the same asset.
func syntheticBytes(stage, seed string, size int) []byte {
	sum := sha256.Sum256([]byte(stage + ":" + seed))
	out := make([]byte, 0, size)
	for len(out) < size {
		out = append(out, sum[:]...)
		sum = sha256.Sum256(sum[:])
	}
	return out[:size]
}
