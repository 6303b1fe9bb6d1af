package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/outbox"
)

type stubOrderStore struct {
	order       *models.Order
	paidCalls   int
	failedCalls int
}

func (s *stubOrderStore) FindOrderByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrderStore) FindOrderByPaymentIntent(_ context.Context, paymentIntentID string) (*models.Order, error) {
	if s.order == nil || s.order.PaymentIntentID == nil || *s.order.PaymentIntentID != paymentIntentID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubOrderStore) MarkOrderPaid(_ context.Context, orderID uuid.UUID, paymentIntentID string) (bool, error) {
	s.paidCalls++
	if s.order == nil || s.order.ID != orderID {
		return false, nil
	}
	if s.order.PaymentStatus != enums.PaymentStatusUnpaid || s.order.PaymentIntentID != nil {
		return false, nil
	}
	s.order.PaymentStatus = enums.PaymentStatusPaid
	s.order.PaymentIntentID = &paymentIntentID
	return true, nil
}

func (s *stubOrderStore) MarkOrderFailed(_ context.Context, orderID uuid.UUID) (bool, error) {
	s.failedCalls++
	if s.order == nil || s.order.ID != orderID {
		return false, nil
	}
	if s.order.PaymentStatus == enums.PaymentStatusPaid {
		return false, nil
	}
	s.order.PaymentStatus = enums.PaymentStatusFailed
	return true, nil
}

type stubPayout struct {
	calls int
	err   error
}

func (p *stubPayout) PayoutOrder(_ context.Context, _ *models.Order) error {
	p.calls++
	return p.err
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (e *stubEmitter) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	e.events = append(e.events, event)
	return nil
}

type passthroughTx struct{}

func (passthroughTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type webhookFixture struct {
	svc    *Service
	store  *stubOrderStore
	payout *stubPayout
	outbox *stubEmitter
}

func newWebhookFixture(t *testing.T, order *models.Order) *webhookFixture {
	t.Helper()

	f := &webhookFixture{
		store:  &stubOrderStore{order: order},
		payout: &stubPayout{},
		outbox: &stubEmitter{},
	}
	svc, err := NewService(ServiceParams{
		Store:             f.store,
		Settlement:        f.payout,
		Outbox:            f.outbox,
		TransactionRunner: passthroughTx{},
		Logger:            logger.New(logger.Options{ServiceName: "test"}),
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func unpaidOrder() *models.Order {
	return &models.Order{
		ID:            uuid.New(),
		BuyerEmail:    "buyer@example.com",
		Currency:      "usd",
		PaymentStatus: enums.PaymentStatusUnpaid,
		SubOrders:     []models.SubOrder{{ID: uuid.New()}, {ID: uuid.New()}},
	}
}

func intentEvent(t *testing.T, eventType, intentID string, orderID uuid.UUID, amount int64) *stripesdk.Event {
	t.Helper()

	raw, err := json.Marshal(map[string]any{
		"id":     intentID,
		"amount": amount,
		"metadata": map[string]string{
			"order_id": orderID.String(),
		},
	})
	require.NoError(t, err)

	return &stripesdk.Event{
		ID:   "evt_" + intentID,
		Type: stripesdk.EventType(eventType),
		Data: &stripesdk.EventData{Raw: raw},
	}
}

func TestHandleEventPaymentSucceeded(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)

	event := intentEvent(t, "payment_intent.succeeded", "pi_1", order.ID, 18000)
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))

	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
	require.NotNil(t, order.PaymentIntentID)
	assert.Equal(t, "pi_1", *order.PaymentIntentID)
	assert.Equal(t, 1, f.payout.calls)

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventOrderPaid, f.outbox.events[0].EventType)
}

func TestHandleEventDuplicateDeliveryIsNoOp(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)
	ctx := context.Background()

	event := intentEvent(t, "payment_intent.succeeded", "pi_1", order.ID, 18000)
	require.NoError(t, f.svc.HandleEvent(ctx, event))
	require.NoError(t, f.svc.HandleEvent(ctx, event))

	// second delivery neither re-emits nor re-runs payouts
	assert.Len(t, f.outbox.events, 1)
	assert.Equal(t, 1, f.payout.calls)
}

func TestHandleEventPayoutFailureStillAcks(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)
	f.payout.err = errors.New("one seller transfer failed")

	event := intentEvent(t, "payment_intent.succeeded", "pi_1", order.ID, 18000)
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
}

func TestHandleEventPaymentSucceededUnknownOrder(t *testing.T) {
	f := newWebhookFixture(t, unpaidOrder())

	event := intentEvent(t, "payment_intent.succeeded", "pi_1", uuid.New(), 18000)
	err := f.svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestHandleEventPaymentFailed(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)

	event := intentEvent(t, "payment_intent.payment_failed", "pi_1", order.ID, 18000)
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	assert.Equal(t, enums.PaymentStatusFailed, order.PaymentStatus)
	assert.Empty(t, f.outbox.events)
	assert.Equal(t, 0, f.payout.calls)
}

func TestHandleEventLateFailureAfterSuccess(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, intentEvent(t, "payment_intent.succeeded", "pi_1", order.ID, 18000)))
	require.NoError(t, f.svc.HandleEvent(ctx, intentEvent(t, "payment_intent.payment_failed", "pi_1", order.ID, 18000)))

	assert.Equal(t, enums.PaymentStatusPaid, order.PaymentStatus)
}

func TestHandleEventPaymentFailedUnknownOrderIsNoOp(t *testing.T) {
	f := newWebhookFixture(t, unpaidOrder())

	event := intentEvent(t, "payment_intent.payment_failed", "pi_1", uuid.New(), 18000)
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)

	event := intentEvent(t, "charge.refunded", "pi_1", order.ID, 18000)
	require.NoError(t, f.svc.HandleEvent(context.Background(), event))
	assert.Equal(t, 0, f.store.paidCalls)
	assert.Equal(t, 0, f.store.failedCalls)
}

func TestHandleEventMetadataFallbackResolvesRecordedIntent(t *testing.T) {
	order := unpaidOrder()
	f := newWebhookFixture(t, order)
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, intentEvent(t, "payment_intent.succeeded", "pi_1", order.ID, 18000)))

	// dashboard replay of the same intent without metadata
	raw, err := json.Marshal(map[string]any{"id": "pi_1", "amount": 18000})
	require.NoError(t, err)
	replay := &stripesdk.Event{
		ID:   "evt_replay",
		Type: stripesdk.EventType("payment_intent.succeeded"),
		Data: &stripesdk.EventData{Raw: raw},
	}
	require.NoError(t, f.svc.HandleEvent(ctx, replay))

	assert.Len(t, f.outbox.events, 1)
	assert.Equal(t, 1, f.payout.calls)
}

func TestHandleEventMissingOrderIDUnknownIntent(t *testing.T) {
	f := newWebhookFixture(t, unpaidOrder())

	raw, err := json.Marshal(map[string]any{"id": "pi_unseen", "amount": 100})
	require.NoError(t, err)
	event := &stripesdk.Event{
		ID:   "evt_1",
		Type: stripesdk.EventType("payment_intent.succeeded"),
		Data: &stripesdk.EventData{Raw: raw},
	}

	err = f.svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound),
		fmt.Sprintf("unexpected error: %v", err))
}

func TestHandleEventRejectsAnonymousIntent(t *testing.T) {
	f := newWebhookFixture(t, unpaidOrder())

	raw, err := json.Marshal(map[string]any{"amount": 100})
	require.NoError(t, err)
	event := &stripesdk.Event{
		ID:   "evt_1",
		Type: stripesdk.EventType("payment_intent.succeeded"),
		Data: &stripesdk.EventData{Raw: raw},
	}

	err = f.svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation),
		fmt.Sprintf("unexpected error: %v", err))
}
