package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Syncer pushes an order snapshot into the CRM.
type Syncer interface {
	SyncOrder(ctx context.Context, msg SyncMessage) error
}

// WebhookSyncer posts sync messages to a CRM webhook endpoint.
type WebhookSyncer struct {
	url    string
	client *http.Client
}

// NewWebhookSyncer builds a syncer for the given webhook URL.
func NewWebhookSyncer(url string) *WebhookSyncer {
	return &WebhookSyncer{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// SyncOrder implements Syncer. Non-2xx responses are errors so the queue
// redelivers the message.
func (s *WebhookSyncer) SyncOrder(ctx context.Context, msg SyncMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal sync message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build crm request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("crm webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm webhook returned %d", resp.StatusCode)
	}
	return nil
}
