package callback

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/nreshetnikov/image-recognition-service/internal/core/domain"
)

// Client posts terminal task results to the caller-supplied URL. The call
// deadline comes from the dispatcher's context; transport trust is decided
// per task: an https callback with allow_insecure_callback set skips
// certificate verification while the connection stays encrypted. The flag
// is ignored for plain http.
type Client struct {
	userAgent string

	client         *http.Client
	insecureClient *http.Client
}

func New(userAgent string) *Client {
	insecureTransport := http.DefaultTransport.(*http.Transport).Clone()
	insecureTransport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}

	return &Client{
		userAgent:      userAgent,
		client:         &http.Client{},
		insecureClient: &http.Client{Transport: insecureTransport},
	}
}

type payload struct {
	TaskID string            `json:"task_id"`
	Status domain.TaskStatus `json:"status"`
	Result []domain.Label    `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (c *Client) Send(ctx context.Context, task *domain.Task) error {
	body, err := json.Marshal(payload{
		TaskID: task.ID,
		Status: task.Status,
		Result: task.Result,
		Error:  task.Error,
	})
	if err != nil {
		return fmt.Errorf("marshal callback payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, task.CallbackURL, bytes.NewReader(body))
	if err != nil {
		return &domain.CallbackFailure{Message: "General error while calling back"}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.pick(task).Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.CallbackFailure{
			Message: fmt.Sprintf("Server responded with code %d", resp.StatusCode),
		}
	}
	return nil
}

func (c *Client) pick(task *domain.Task) *http.Client {
	if task.AllowInsecureCallback && strings.HasPrefix(task.CallbackURL, "https://") {
		return c.insecureClient
	}
	return c.client
}

func classifyTransportError(err error) *domain.CallbackFailure {
	var certErr *tls.CertificateVerificationError
	if errors.As(err, &certErr) {
		return &domain.CallbackFailure{
			Message: "Failed TLS verification, consider using 'allow_insecure_callback'",
		}
	}
	var urlErr *url.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &urlErr) {
		return &domain.CallbackFailure{
			Message: "Failed to connect to the callback server",
		}
	}
	return &domain.CallbackFailure{Message: "General error while calling back"}
}
