package visionapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

// Client talks to the managed label-detection API. Every call is billable,
// which is why the orchestrator consults the result cache first and why
// failures carry an explicit kind: only defects in the submitted bytes may
// be remembered against the content fingerprint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type detectResponse struct {
	Labels []domain.Label `json:"Labels"`
}

func (c *Client) DetectLabels(ctx context.Context, image []byte) ([]domain.Label, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/detect-labels", bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return nil, classifyStatus(resp.StatusCode)
	}

	var out detectResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, domain.ProviderFailure(500, "Internal server error")
	}
	return out.Labels, nil
}

// classifyStatus maps provider refusals onto the two failure kinds. Content
// refusals are permanent properties of the bytes; everything else is the
// provider's problem and must not poison the cache.
func classifyStatus(status int) *domain.RecognitionFailure {
	switch status {
	case http.StatusUnsupportedMediaType, http.StatusBadRequest:
		return domain.ContentFailure(415, "Invalid image format")
	case http.StatusRequestEntityTooLarge:
		return domain.ContentFailure(400, "Image too large")
	case http.StatusTooManyRequests:
		return domain.ProviderFailure(429, "Try again later")
	default:
		return domain.ProviderFailure(500, "Internal server error")
	}
}

func classifyTransportError(err error) *domain.RecognitionFailure {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ProviderFailure(429, "Try again later")
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return domain.ProviderFailure(429, "Try again later")
	}
	return domain.ProviderFailure(500, "Internal server error")
}
