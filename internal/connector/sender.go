// Package connector implements the transport used to reach the game
// server's batch endpoint.
package connector

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	batchPath       = "/batch/json"
	defaultTimeout  = 30 * time.Second
	maxResponseSize = 32 << 20
)

// Sender delivers a serialized request and returns the serialized response.
// Network failures surface as errors and are never retried here.
type Sender interface {
	Send(ctx context.Context, payload []byte) ([]byte, error)
}

// HTTPSender posts request envelopes to the game server over HTTP.
type HTTPSender struct {
	baseURL   string
	userAgent string
	client    *http.Client
}

// NewHTTPSender creates a sender for the server at baseURL. A zero timeout
// selects the default.
func NewHTTPSender(baseURL, userAgent string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPSender{
		baseURL:   NormalizeBaseURL(baseURL),
		userAgent: userAgent,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:    10,
				IdleConnTimeout: 90 * time.Second,
			},
		},
	}
}

// Send posts payload to the batch endpoint.
func (s *HTTPSender) Send(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+batchPath, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create batch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("batch request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read batch response: %w", err)
	}

	log.Trace().
		Int("status", resp.StatusCode).
		Int("request_bytes", len(payload)).
		Int("response_bytes", len(body)).
		Dur("duration", time.Since(start)).
		Msg("batch round trip")

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("batch endpoint returned status %d: %s", resp.StatusCode, truncate(string(body), 256))
	}

	return body, nil
}

// BaseURL returns the normalized server URL.
func (s *HTTPSender) BaseURL() string {
	return s.baseURL
}

// NormalizeBaseURL adds a scheme when missing and strips trailing slashes.
func NormalizeBaseURL(url string) string {
	url = strings.TrimSpace(url)
	if url == "" {
		return url
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		url = "https://" + url
	}
	return strings.TrimRight(url, "/")
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
