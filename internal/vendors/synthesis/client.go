// Package synthesis calls the external pattern-synthesis service to
// generate an extraction template for a vendor the system has never
// seen. The service is LLM-backed; its output is validated before use
// and a bad response is an error, never a guessed template.
package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/invoiceflow/invoiceflow-backend/internal/vendors/domain"
	"github.com/invoiceflow/invoiceflow-backend/pkg/logger"
)

// Synthesizer produces an extraction template from document text.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) (domain.Template, error)
}

// Client is the HTTP synthesis client.
type Client struct {
	serviceURL string
	httpClient *http.Client
	maxRetries int
	logger     *logger.Logger
}

// NewClient creates a synthesis client for the given base URL.
func NewClient(serviceURL string, timeout time.Duration, maxRetries int, log *logger.Logger) *Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		serviceURL: strings.TrimRight(serviceURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		maxRetries: maxRetries,
		logger:     log,
	}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

type synthesizeResponse struct {
	Slots []string `json:"slots"`
}

// Synthesize requests a template for the given document text. Rate
// limiting (429) is retried with linear backoff up to the configured
// bound; any other failure is returned immediately.
func (c *Client) Synthesize(ctx context.Context, text string) (domain.Template, error) {
	payload, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return domain.Template{}, fmt.Errorf("synthesis: marshal request: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(attempt-1) * 2 * time.Second
			c.logger.Warn().
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("synthesis service rate limited, retrying")
			select {
			case <-ctx.Done():
				return domain.Template{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		tpl, retryable, err := c.attempt(ctx, payload)
		if err == nil {
			return tpl, nil
		}
		lastErr = err
		if !retryable {
			return domain.Template{}, err
		}
	}

	return domain.Template{}, fmt.Errorf("synthesis: retries exhausted: %w", lastErr)
}

func (c *Client) attempt(ctx context.Context, payload []byte) (domain.Template, bool, error) {
	url := c.serviceURL + "/api/v1/synthesize"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("synthesis: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("synthesis: service request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Template{}, false, fmt.Errorf("synthesis: read response body: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return domain.Template{}, true, fmt.Errorf("synthesis: service rate limited (429)")
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Template{}, false, fmt.Errorf("synthesis: service returned %d: %s", resp.StatusCode, string(body))
	}

	tpl, err := ParseResponse(body)
	if err != nil {
		return domain.Template{}, false, err
	}

	if err := tpl.Validate(); err != nil {
		return domain.Template{}, false, fmt.Errorf("synthesis: invalid template: %w", err)
	}

	return tpl, false, nil
}

// ParseResponse extracts the slot array from a synthesis response body.
// The model occasionally wraps its JSON in markdown code fences or leading
// prose; both are tolerated.
func ParseResponse(body []byte) (domain.Template, error) {
	raw, err := extractJSON(body)
	if err != nil {
		return domain.Template{}, err
	}

	var parsed synthesizeResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return domain.Template{}, fmt.Errorf("synthesis: parse response: %w", err)
	}

	if len(parsed.Slots) != domain.SlotCount {
		return domain.Template{}, fmt.Errorf("synthesis: expected %d slots, got %d", domain.SlotCount, len(parsed.Slots))
	}

	var patterns [domain.SlotCount]string
	copy(patterns[:], parsed.Slots)
	return domain.TemplateFromPatterns(patterns), nil
}

// extractJSON returns the JSON object inside the body, unwrapping
// markdown code fences and surrounding prose when present.
func extractJSON(body []byte) ([]byte, error) {
	trimmed := bytes.TrimSpace(body)

	if json.Valid(trimmed) {
		return trimmed, nil
	}

	// Strip markdown-style fences.
	if start := bytes.Index(trimmed, []byte("```")); start >= 0 {
		inner := trimmed[start+3:]
		inner = bytes.TrimPrefix(inner, []byte("json"))
		if end := bytes.Index(inner, []byte("```")); end >= 0 {
			candidate := bytes.TrimSpace(inner[:end])
			if json.Valid(candidate) {
				return candidate, nil
			}
		}
	}

	// Fall back to the outermost {...} block.
	if start := bytes.IndexByte(trimmed, '{'); start >= 0 {
		if end := bytes.LastIndexByte(trimmed, '}'); end > start {
			candidate := trimmed[start : end+1]
			if json.Valid(candidate) {
				return candidate, nil
			}
		}
	}

	sample := string(trimmed)
	if len(sample) > 200 {
		sample = sample[:200] + "..."
	}
	return nil, fmt.Errorf("synthesis: could not extract valid JSON from response: %s", sample)
}
