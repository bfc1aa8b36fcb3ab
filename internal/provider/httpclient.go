package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"horse.fit/chatsense/internal/analysis"
)

// maxResponseBytes caps how much of a provider response is read.
const maxResponseBytes = 1 << 20

// DefaultHTTPClient is shared by adapters built without an explicit client.
// Per-call deadlines come from the request context.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 30 * time.Second}
}

type jsonCall struct {
	providerID string
	method     string
	url        string
	headers    map[string]string
	body       any
}

// doJSON sends body as JSON and decodes the response into out. Statuses map
// onto the provider error taxonomy: 429 is rate limiting, 401/403 mean the
// provider is unusable, everything else non-2xx is a transport failure.
func doJSON(ctx context.Context, client *http.Client, call jsonCall, out any) error {
	var reader io.Reader
	if call.body != nil {
		payload, err := json.Marshal(call.body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", call.providerID, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, call.method, call.url, reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", call.providerID, err)
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range call.headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return analysis.ClassifyProviderError(call.providerID, fmt.Errorf("send request: %w", stripURL(err)))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return analysis.ClassifyProviderError(call.providerID, fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("status %d: %s", resp.StatusCode, errorMessage(body))
		switch resp.StatusCode {
		case http.StatusTooManyRequests:
			return analysis.NewProviderError(call.providerID, analysis.ErrRateLimited, statusErr)
		case http.StatusUnauthorized, http.StatusForbidden:
			return analysis.NewProviderError(call.providerID, analysis.ErrProviderUnavailable, statusErr)
		case http.StatusGatewayTimeout, http.StatusRequestTimeout:
			return analysis.NewProviderError(call.providerID, analysis.ErrProviderTimeout, statusErr)
		default:
			return analysis.NewProviderError(call.providerID, analysis.ErrProviderTransport, statusErr)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return analysis.NewProviderError(call.providerID, analysis.ErrProviderTransport, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

// errorMessage pulls a human-readable message out of the common error shapes
// ({"error":{"message":...}}, {"error":"..."}) or falls back to the raw body.
func errorMessage(body []byte) string {
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &nested); err == nil && strings.TrimSpace(nested.Error.Message) != "" {
		return strings.TrimSpace(nested.Error.Message)
	}
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &flat); err == nil && strings.TrimSpace(flat.Error) != "" {
		return strings.TrimSpace(flat.Error)
	}
	return truncate(strings.TrimSpace(string(body)), 200)
}

// truncate cuts s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.ToValidUTF8(s[:cut], "")
}

// stripURL drops the request URL from transport errors so query strings
// never reach logs or attempt records.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return fmt.Errorf("%s: %w", strings.ToLower(urlErr.Op), urlErr.Err)
	}
	return err
}

func orDefaultClient(c *http.Client) *http.Client {
	if c == nil {
		return DefaultHTTPClient()
	}
	return c
}
