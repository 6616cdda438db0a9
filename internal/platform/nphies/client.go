package nphies

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/nphies/bridge/internal/observability/metrics"
	"github.com/nphies/bridge/internal/platform/fhir"
)

const processMessagePath = "/$process-message"

// ClientConfig controls how the exchange client behaves.
type ClientConfig struct {
	BaseURL    string
	LicenseID  string
	ProviderID string
	Timeout    time.Duration
	RetryDelay time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
	Metrics    *metrics.ExchangeMetrics
}

// Client posts message bundles to the NPHIES $process-message endpoint. It
// performs network I/O only; no local state is mutated here.
type Client struct {
	baseURL    string
	licenseID  string
	providerID string
	httpClient *http.Client
	retryDelay time.Duration
	logger     zerolog.Logger
	metrics    *metrics.ExchangeMetrics
}

func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("nphies: base URL is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &Client{
		baseURL:    baseURL,
		licenseID:  cfg.LicenseID,
		providerID: cfg.ProviderID,
		httpClient: httpClient,
		retryDelay: retryDelay,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}, nil
}

// ProcessMessage sends the bundle and returns the parsed response bundle.
// A single automatic retry is performed on HTTP 429; every other non-2xx
// status surfaces as a TransportError with the raw status and body attached.
func (c *Client) ProcessMessage(ctx context.Context, bundle *fhir.Bundle) (*fhir.Bundle, error) {
	body, err := json.Marshal(bundle)
	if err != nil {
		return nil, &TransportError{Err: fmt.Errorf("marshal bundle: %w", err)}
	}

	event := eventOf(bundle)
	start := time.Now()

	status, respBody, err := c.post(ctx, body)
	if err == nil && status == http.StatusTooManyRequests {
		c.logger.Warn().Str("event", event).Msg("exchange rate limited, retrying once")
		select {
		case <-ctx.Done():
			return nil, &TransportError{Err: ctx.Err()}
		case <-time.After(c.retryDelay):
		}
		status, respBody, err = c.post(ctx, body)
	}
	c.metrics.ObserveRequestLatency(event, time.Since(start).Seconds())

	if err != nil {
		c.metrics.ObserveMessage(event, "transport-error")
		return nil, &TransportError{Err: err}
	}
	if status < 200 || status >= 300 {
		c.metrics.ObserveMessage(event, fmt.Sprintf("http-%d", status))
		return nil, &TransportError{Status: status, Body: string(respBody)}
	}

	var resp fhir.Bundle
	if err := json.Unmarshal(respBody, &resp); err != nil {
		c.metrics.ObserveMessage(event, "malformed-response")
		return nil, &TransportError{Status: status, Body: string(respBody), Err: fmt.Errorf("decode response bundle: %w", err)}
	}

	c.metrics.ObserveMessage(event, "ok")
	c.logger.Debug().
		Str("event", event).
		Int("status", status).
		Int("entries", len(resp.Entry)).
		Msg("process-message round trip")
	return &resp, nil
}

func (c *Client) post(ctx context.Context, body []byte) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+processMessagePath, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/fhir+json")
	req.Header.Set("Accept", "application/fhir+json")
	if c.licenseID != "" {
		req.Header.Set("X-License-ID", c.licenseID)
	}
	if c.providerID != "" {
		req.Header.Set("X-Provider-ID", c.providerID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response body: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

func eventOf(bundle *fhir.Bundle) string {
	header := bundle.FindMessageHeader()
	if header == nil || header.EventCoding == nil {
		return "unknown"
	}
	return header.EventCoding.Code
}
