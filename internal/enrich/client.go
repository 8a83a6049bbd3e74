package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client talks to the external enrichment service over HTTP. One endpoint
// per operation, JSON in and out. The upstream signals unavailability with
// sentinel text in the result body; the client converts that into
// ErrUnavailable at this boundary so callers never substring-match.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

var _ LanguageDetector = (*Client)(nil)
var _ Translator = (*Client)(nil)
var _ Summarizer = (*Client)(nil)
var _ Classifier = (*Client)(nil)

func NewClient(endpoint, apiKey string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     httpClient,
	}
}

func (c *Client) DetectLanguage(ctx context.Context, text string) (string, error) {
	var resp struct {
		Language string `json:"language"`
	}

	payload := map[string]any{"text": text}
	if err := c.post(ctx, "/detect", payload, &resp); err != nil {
		return "", err
	}
	if resp.Language == "" {
		return "", ErrUnavailable
	}
	return resp.Language, nil
}

func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	var resp struct {
		Text string `json:"text"`
	}

	payload := map[string]any{"text": text, "target": targetLang}
	if err := c.post(ctx, "/translate", payload, &resp); err != nil {
		return "", err
	}
	if isSentinel(resp.Text) {
		return "", fmt.Errorf("translate to %s: %w", targetLang, ErrUnavailable)
	}
	return resp.Text, nil
}

func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}

	payload := map[string]any{"text": text}
	if err := c.post(ctx, "/summarize", payload, &resp); err != nil {
		return "", err
	}
	if isSentinel(resp.Summary) {
		return "", fmt.Errorf("summarize: %w", ErrUnavailable)
	}
	return resp.Summary, nil
}

// Classify returns a label from the candidate set. Anything the upstream
// returns outside the set degrades to FallbackCategory rather than failing
// the message.
func (c *Client) Classify(ctx context.Context, text string, categories []string) (string, error) {
	var resp struct {
		Label string `json:"label"`
	}

	payload := map[string]any{"text": text, "labels": categories}
	if err := c.post(ctx, "/classify", payload, &resp); err != nil {
		return FallbackCategory, nil
	}
	for _, cat := range categories {
		if resp.Label == cat {
			return resp.Label, nil
		}
	}
	return FallbackCategory, nil
}

// isSentinel detects upstream failure markers ("translation unavailable",
// "summary unavailable", empty result).
func isSentinel(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return true
	}
	return strings.Contains(strings.ToLower(trimmed), "unavailable")
}

func (c *Client) post(ctx context.Context, path string, payload, v any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s: %w", resp.Status, ErrUnavailable)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
