package webhooks

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EnqueueFunc hands a delivery to the background queue. Provided by
// main using river.Client.Insert.
type EnqueueFunc func(ctx context.Context, args DeliverWebhookArgs) error

// Dispatcher fans domain events out to the raising agent's active
// subscriptions. It satisfies the Publisher contract of the queue and
// relay services: deliveries are enqueued, never performed inline, so
// a slow subscriber cannot stall the request that raised the event.
type Dispatcher struct {
	store   Store
	enqueue EnqueueFunc
	log     *slog.Logger
	now     func() time.Time
}

func NewDispatcher(store Store, enqueue EnqueueFunc, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{store: store, enqueue: enqueue, log: log, now: time.Now}
}

// Publish enqueues one delivery per matching subscription. Failures
// are logged and swallowed; event delivery is best effort.
func (d *Dispatcher) Publish(ctx context.Context, agentID uuid.UUID, eventType string, data map[string]any) {
	subs, err := d.store.ListActiveForEvent(ctx, agentID, eventType)
	if err != nil {
		d.log.Error("webhooks: list subscriptions failed", "agent_id", agentID, "event", eventType, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	body, err := json.Marshal(map[string]any{
		"event":     eventType,
		"timestamp": d.now().UTC().Format(time.RFC3339),
		"data":      data,
	})
	if err != nil {
		d.log.Error("webhooks: marshal event failed", "event", eventType, "error", err)
		return
	}

	for _, wh := range subs {
		args := DeliverWebhookArgs{
			WebhookID: wh.ID,
			AgentID:   wh.AgentID,
			URL:       wh.URL,
			Secret:    wh.Secret,
			EventType: eventType,
			Body:      body,
		}
		if err := d.enqueue(ctx, args); err != nil {
			d.log.Error("webhooks: enqueue delivery failed", "webhook_id", wh.ID, "event", eventType, "error", err)
			continue
		}
		d.log.Info("webhooks: delivery enqueued", "webhook_id", wh.ID, "event", eventType)
	}
}
