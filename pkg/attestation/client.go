// Package attestation polls the off-chain attestation service for
// burn-message attestations.
package attestation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/stablebridge/cctp-middleware/pkg/config"
)

// Attestation lookup statuses reported by the service.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
)

// Result is a single attestation lookup response.
type Result struct {
	Status      string `json:"status"`
	Attestation string `json:"attestation,omitempty"`
}

// Complete reports whether the attestation is ready for claiming.
func (r *Result) Complete() bool {
	return r.Status == StatusComplete && r.Attestation != ""
}

// Client fetches attestations keyed by message hash.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates an attestation service client.
func NewClient(cfg *config.AttestationConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     logger,
	}
}

// Get looks up the attestation for a message hash. A hash the service
// has not observed yet answers 404, which is reported as a pending
// result rather than an error.
func (c *Client) Get(ctx context.Context, messageHash string) (*Result, error) {
	url := c.baseURL + "/" + messageHash

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build attestation request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("attestation request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("Failed to close attestation response body", zap.Error(closeErr))
		}
	}()

	if resp.StatusCode == http.StatusNotFound {
		return &Result{Status: StatusPending}, nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read attestation response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected attestation status code %d: %s", resp.StatusCode, string(body))
	}

	var result Result
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode attestation response: %w", err)
	}

	return &result, nil
}
