// Package notifications consumes settlement events and emails the buyer.
// Delivery is best effort: a lost email never blocks money movement.
package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"

	"github.com/mercaline/marketplace-backend/pkg/enums"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/outbox"
	"github.com/mercaline/marketplace-backend/pkg/outbox/payloads"
)

// DedupeScope namespaces the consumer's idempotency keys in Redis.
const DedupeScope = "settlement-notifications"

type subscriber interface {
	Receive(ctx context.Context, f func(ctx context.Context, msg *pubsub.Message)) error
}

type dedupeGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// Consumer turns settlement events into buyer emails.
type Consumer struct {
	mailer       Mailer
	subscription subscriber
	dedupe       dedupeGuard
	logg         *logger.Logger
}

// NewConsumer builds a settlement notification consumer.
func NewConsumer(mailer Mailer, subscription subscriber, dedupe dedupeGuard, logg *logger.Logger) (*Consumer, error) {
	if mailer == nil {
		return nil, fmt.Errorf("mailer required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("settlement subscription required")
	}
	if dedupe == nil {
		return nil, fmt.Errorf("dedupe guard required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		mailer:       mailer,
		subscription: subscription,
		dedupe:       dedupe,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes["event_type"], msg.Data, msg.ID) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked.
func (c *Consumer) process(ctx context.Context, eventType string, data []byte, messageID string) bool {
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	switch eventType {
	case string(enums.EventOrderPaid), string(enums.EventRefundIssued):
	default:
		c.logg.Info(logCtx, "skipping unrelated event")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	logCtx = c.logg.WithEventID(logCtx, envelope.EventID)

	already, err := c.dedupe.CheckAndMark(ctx, envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "dedupe check failed", err)
		return false
	}
	if already {
		c.logg.Info(logCtx, "event already processed")
		return true
	}

	email, err := c.buildEmail(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}

	if err := c.mailer.Send(ctx, email); err != nil {
		// email is best effort; drop the message rather than poison the queue
		c.logg.Error(logCtx, "sending notification email failed", err)
		_ = c.dedupe.Delete(ctx, envelope.EventID)
		return true
	}

	c.logg.Info(logCtx, "notification email sent")
	return true
}

func (c *Consumer) buildEmail(eventType string, data json.RawMessage) (Email, error) {
	switch eventType {
	case string(enums.EventOrderPaid):
		var payload payloads.OrderPaidEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return Email{}, err
		}
		return Email{
			To:      payload.BuyerEmail,
			Subject: fmt.Sprintf("Order %s confirmed", shortID(payload.OrderID.String())),
			PlainBody: fmt.Sprintf(
				"Your payment of %s %s was received. %d seller(s) are preparing your order.",
				formatAmount(payload.TotalAmountCents), payload.Currency, payload.SellerCount,
			),
		}, nil
	case string(enums.EventRefundIssued):
		var payload payloads.RefundIssuedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return Email{}, err
		}
		return Email{
			To:      payload.BuyerEmail,
			Subject: fmt.Sprintf("Refund issued for order %s", shortID(payload.OrderID.String())),
			PlainBody: fmt.Sprintf(
				"A refund of %s %s for %d item(s) is on its way back to your payment method.",
				formatAmount(payload.RefundedAmountCents), payload.Currency, payload.Quantity,
			),
		}, nil
	default:
		return Email{}, fmt.Errorf("unsupported event type %q", eventType)
	}
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatAmount(cents int64) string {
	return fmt.Sprintf("%d.%02d", cents/100, cents%100)
}
