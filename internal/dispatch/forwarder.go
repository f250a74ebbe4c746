package dispatch

import (
	"context"
	"errors"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"

	"github.com/angelmondragon/orderledger/pkg/db/models"
	"github.com/angelmondragon/orderledger/pkg/outbox"
)

const defaultPublishTimeout = 15 * time.Second

// PubSubForwarder publishes dispatched envelopes to one topic.
type PubSubForwarder struct {
	publisher *gcppubsub.Publisher
	timeout   time.Duration
}

func NewPubSubForwarder(publisher *gcppubsub.Publisher) (*PubSubForwarder, error) {
	if publisher == nil {
		return nil, errors.New("pubsub publisher is required")
	}
	return &PubSubForwarder{publisher: publisher, timeout: defaultPublishTimeout}, nil
}

func (f *PubSubForwarder) Forward(ctx context.Context, event models.OutboxEvent, envelope outbox.PayloadEnvelope) error {
	publishCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()
	result := f.publisher.Publish(publishCtx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, envelope),
	})
	_, err := result.Get(publishCtx)
	return err
}

// Stop flushes pending messages.
func (f *PubSubForwarder) Stop() {
	f.publisher.Stop()
}

func messageAttributes(event models.OutboxEvent, envelope outbox.PayloadEnvelope) map[string]string {
	return map[string]string{
		"event_id":       envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}
