package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// SignatureHeader carries the HMAC-SHA256 of the request body, keyed
// by the subscription secret, as "sha256=<hex>". Absent when the
// subscription has no secret.
const SignatureHeader = "X-MoltGrid-Signature"

type DeliverWebhookArgs struct {
	WebhookID uuid.UUID       `json:"webhook_id"`
	AgentID   uuid.UUID       `json:"agent_id"`
	URL       string          `json:"url"`
	Secret    string          `json:"secret"`
	EventType string          `json:"event_type"`
	Body      json.RawMessage `json:"body"`
}

func (DeliverWebhookArgs) Kind() string { return "deliver_webhook" }

type DeliverWorker struct {
	river.WorkerDefaults[DeliverWebhookArgs]
	httpClient *http.Client
}

func NewDeliverWorker(timeout time.Duration) *DeliverWorker {
	return &DeliverWorker{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Sign computes the signature header value for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func (w *DeliverWorker) Work(ctx context.Context, job *river.Job[DeliverWebhookArgs]) error {
	args := job.Args

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, args.URL, bytes.NewReader(args.Body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if args.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(args.Secret, args.Body))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook %s: %w", args.WebhookID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s: subscriber returned %d", args.WebhookID, resp.StatusCode)
	}
	return nil
}
