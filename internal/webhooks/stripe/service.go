// Package stripewebhook turns asynchronous gateway confirmations into order
// state. Capture is only trusted once Stripe says so: checkout leaves orders
// unpaid and this service flips them on payment_intent events.
package stripewebhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/metrics"
	"github.com/mercaline/marketplace-backend/pkg/outbox"
	"github.com/mercaline/marketplace-backend/pkg/outbox/payloads"
)

const (
	eventPaymentSucceeded = "payment_intent.succeeded"
	eventPaymentFailed    = "payment_intent.payment_failed"
)

type orderStore interface {
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) (bool, error)
	MarkOrderFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
}

type payoutRunner interface {
	PayoutOrder(ctx context.Context, order *models.Order) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type ServiceParams struct {
	Store             orderStore
	Settlement        payoutRunner
	Outbox            outboxEmitter
	TransactionRunner txRunner
	Metrics           *metrics.SettlementMetrics
	Logger            *logger.Logger
}

type Service struct {
	store      orderStore
	settlement payoutRunner
	outbox     outboxEmitter
	txRunner   txRunner
	metrics    *metrics.SettlementMetrics
	logg       *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Store == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order store required")
	}
	if params.Settlement == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "settlement service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox service required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		store:      params.Store,
		settlement: params.Settlement,
		outbox:     params.Outbox,
		txRunner:   params.TransactionRunner,
		metrics:    params.Metrics,
		logg:       params.Logger,
	}, nil
}

type paymentIntentPayload struct {
	ID       string            `json:"id"`
	Amount   int64             `json:"amount"`
	Metadata map[string]string `json:"metadata"`
}

// HandleEvent processes a verified Stripe event. Event types outside the
// payment_intent lifecycle are acknowledged without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripesdk.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}

	start := time.Now()
	defer func() {
		s.metrics.ObserveWebhookDuration(string(event.Type), time.Since(start))
	}()

	switch string(event.Type) {
	case eventPaymentSucceeded, eventPaymentFailed:
	default:
		return nil
	}

	var intent paymentIntentPayload
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "malformed payment intent payload")
	}

	orderID, err := uuid.Parse(intent.Metadata["order_id"])
	if err != nil {
		// metadata can be absent on events replayed from the Stripe dashboard;
		// fall back to the intent id recorded at first confirmation
		if intent.ID == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "payment intent carries no order id")
		}
		order, lookupErr := s.store.FindOrderByPaymentIntent(ctx, intent.ID)
		if lookupErr != nil {
			return lookupErr
		}
		orderID = order.ID
	}

	ctx = s.logg.WithOrderID(s.logg.WithEventID(ctx, event.ID), orderID.String())

	if string(event.Type) == eventPaymentSucceeded {
		return s.handleSucceeded(ctx, orderID, intent)
	}
	return s.handleFailed(ctx, orderID)
}

func (s *Service) handleSucceeded(ctx context.Context, orderID uuid.UUID, intent paymentIntentPayload) error {
	changed, err := s.store.MarkOrderPaid(ctx, orderID, intent.ID)
	if err != nil {
		return err
	}

	order, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if !changed {
		if order.PaymentStatus == enums.PaymentStatusPaid {
			// redelivery of a confirmation we already processed
			s.logg.Info(ctx, "payment confirmation already applied")
			return nil
		}
		return pkgerrors.New(pkgerrors.CodeConflict, "order not in a payable state")
	}

	s.logg.Info(ctx, "order marked paid")
	s.emitOrderPaid(ctx, order, intent.Amount)

	// payouts ride on the webhook; a seller-side failure is recorded in the
	// ledger for remediation, not surfaced back to Stripe
	if err := s.settlement.PayoutOrder(ctx, order); err != nil {
		s.logg.Error(ctx, "seller payouts incomplete", err)
	}
	return nil
}

func (s *Service) handleFailed(ctx context.Context, orderID uuid.UUID) error {
	changed, err := s.store.MarkOrderFailed(ctx, orderID)
	if err != nil {
		return err
	}
	if !changed {
		s.logg.Info(ctx, "payment failure ignored for settled order")
		return nil
	}
	s.logg.Info(ctx, "order marked failed")
	return nil
}

func (s *Service) emitOrderPaid(ctx context.Context, order *models.Order, amountCents int64) {
	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.OrderPaidEvent{
				OrderID:          order.ID,
				BuyerEmail:       order.BuyerEmail,
				Currency:         order.Currency,
				TotalAmountCents: amountCents,
				SellerCount:      len(order.SubOrders),
				PaidAt:           time.Now().UTC(),
			},
		})
	})
	if err != nil {
		s.logg.Error(ctx, "queueing order paid notification failed", err)
	}
}
