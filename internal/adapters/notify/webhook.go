// Package notify delivers verification requests and compliance alerts to
// systems outside the service.
package notify

import (
	"bytes"
	"context"
	"delivery-dispatch-service/internal/domain"
	"delivery-dispatch-service/internal/platform/httpx"
	"delivery-dispatch-service/internal/platform/obs"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

const (
	defaultAttempts = 3
	defaultBackoff  = 300 * time.Millisecond
)

// envelope is the body posted to the webhook.
type envelope struct {
	Kind string    `json:"kind"`
	Sent time.Time `json:"sent_at"`
	Data any       `json:"data"`
}

type WebhookNotifier struct {
	url    string
	client *httpx.Client
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    url,
		client: httpx.New(10*time.Second, defaultAttempts, defaultBackoff),
	}
}

func (n *WebhookNotifier) SendVerification(ctx context.Context, req domain.VerificationRequest) (err error) {
	defer obs.Time(ctx, "webhook.verification")(&err)
	return n.post(ctx, "customer_verification", req)
}

func (n *WebhookNotifier) NotifyAlert(ctx context.Context, alert domain.ComplianceAlert) (err error) {
	defer obs.Time(ctx, "webhook.alert")(&err)
	return n.post(ctx, "compliance_alert", alert)
}

func (n *WebhookNotifier) post(ctx context.Context, kind string, data any) error {
	body, err := json.Marshal(envelope{Kind: kind, Sent: time.Now().UTC(), Data: data})
	if err != nil {
		return fmt.Errorf("webhook: encode %s: %w", kind, err)
	}

	resp, err := n.client.Do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("webhook: deliver %s: %w", kind, err)
	}
	resp.Body.Close()
	return nil
}
