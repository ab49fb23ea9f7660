package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Event is one user-facing notification. Amounts and details travel in Data;
// CorrelationID ties the notification back to the audit trail.
type Event struct {
	Type          string                 `json:"type"`
	UserID        string                 `json:"user_id"`
	CorrelationID string                 `json:"correlation_id"`
	Data          map[string]interface{} `json:"data,omitempty"`
}

// Sender delivers a notification to the external email/SMS service.
type Sender interface {
	Send(ctx context.Context, event Event) error
}

// HTTPSender posts events to the notification service's webhook endpoint.
type HTTPSender struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewHTTPSender(baseURL, token string) *HTTPSender {
	return &HTTPSender{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notification service returned %d", resp.StatusCode)
	}
	return nil
}
