// Package settlement moves money: seller payouts after capture, buyer
// refunds with proportional tax and shipping, and payout clawbacks. Refunds
// fail closed (no state changes without a successful gateway refund) while
// payout and reversal failures are recorded and left for remediation.
package settlement

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripesdk "github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/internal/ledger"
	"github.com/mercaline/marketplace-backend/internal/refunds"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/metrics"
	"github.com/mercaline/marketplace-backend/pkg/outbox"
	"github.com/mercaline/marketplace-backend/pkg/outbox/payloads"
	stripeclient "github.com/mercaline/marketplace-backend/pkg/stripe"
)

// Gateway is the subset of the payment client the settlement engine uses.
type Gateway interface {
	CreateTransfer(ctx context.Context, params stripeclient.TransferCreateParams) (*stripesdk.Transfer, error)
	CreateRefund(ctx context.Context, params stripeclient.RefundCreateParams) (*stripesdk.Refund, error)
	ReverseTransfer(ctx context.Context, params stripeclient.ReversalCreateParams) (*stripesdk.TransferReversal, error)
}

type orderStore interface {
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	SetSubOrderTransfer(ctx context.Context, subOrderID uuid.UUID, transferID string) (bool, error)
}

type orderCanceller interface {
	MarkItemCancelled(ctx context.Context, orderID, itemID uuid.UUID) (enums.FulfillmentStatus, error)
}

type ledgerInput = ledger.RecordLedgerEventInput

type ledgerRecorder interface {
	RecordEvent(ctx context.Context, input ledgerInput) (*models.LedgerEvent, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// RefundResult is what the cancellation surface returns to the buyer.
type RefundResult struct {
	FulfillmentStatus   enums.FulfillmentStatus
	Item                models.OrderLineItem
	GatewayRefundID     string
	RefundedAmountCents int64
	ReversalPending     bool
}

// Service executes payouts and refunds against the gateway.
type Service struct {
	gateway Gateway
	store   orderStore
	orders  orderCanceller
	ledger  ledgerRecorder
	tx      txRunner
	outbox  outboxEmitter
	metrics *metrics.SettlementMetrics
	logg    *logger.Logger
}

// NewService wires the settlement engine. Metrics may be nil.
func NewService(
	gateway Gateway,
	store orderStore,
	orders orderCanceller,
	ledgerSvc ledgerRecorder,
	tx txRunner,
	outboxSvc outboxEmitter,
	m *metrics.SettlementMetrics,
	logg *logger.Logger,
) (*Service, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if store == nil {
		return nil, fmt.Errorf("order store is required")
	}
	if orders == nil {
		return nil, fmt.Errorf("orders service is required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if outboxSvc == nil {
		return nil, fmt.Errorf("outbox service is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &Service{
		gateway: gateway,
		store:   store,
		orders:  orders,
		ledger:  ledgerSvc,
		tx:      tx,
		outbox:  outboxSvc,
		metrics: m,
		logg:    logg,
	}, nil
}

// PayoutOrder transfers each seller their sub-order total. Sub-orders that
// already carry a transfer are skipped, so replaying the paid webhook never
// pays a seller twice. One seller's failure does not block the others; the
// combined error is returned for the caller to log.
func (s *Service) PayoutOrder(ctx context.Context, order *models.Order) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}

	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	var combined error
	for i := range order.SubOrders {
		sub := &order.SubOrders[i]
		if sub.TransferID != nil {
			continue
		}
		if err := s.payoutSubOrder(ctx, order, sub); err != nil {
			combined = multierr.Append(combined, err)
		}
	}
	return combined
}

func (s *Service) payoutSubOrder(ctx context.Context, order *models.Order, sub *models.SubOrder) error {
	ctx = s.logg.WithSubOrderID(ctx, sub.ID.String())
	amount := sub.PayoutTotal().Shift(2).RoundBank(0).IntPart()

	transfer, err := s.gateway.CreateTransfer(ctx, stripeclient.TransferCreateParams{
		AmountCents:        amount,
		Currency:           order.Currency,
		DestinationAccount: sub.SellerAccountID,
		TransferGroup:      order.ID.String(),
		OrderID:            order.ID,
		SubOrderID:         sub.ID,
		IdempotencyKey:     "payout-" + sub.ID.String(),
	})
	if err != nil {
		s.metrics.IncPayout("failure")
		s.recordLedger(ctx, ledgerInput{
			OrderID:     order.ID,
			SubOrderID:  &sub.ID,
			Type:        enums.LedgerEventPayoutFailed,
			AmountCents: amount,
			Metadata:    jsonMeta(map[string]any{"seller_account_id": sub.SellerAccountID, "error": err.Error()}),
		})
		return fmt.Errorf("payout sub-order %s: %w", sub.ID, err)
	}

	changed, err := s.store.SetSubOrderTransfer(ctx, sub.ID, transfer.ID)
	if err != nil {
		return fmt.Errorf("recording transfer %s: %w", transfer.ID, err)
	}
	if !changed {
		// concurrent payout won the write; the gateway idempotency key
		// guarantees both calls produced the same transfer
		s.logg.Warn(ctx, "transfer already recorded for sub-order")
		return nil
	}
	sub.TransferID = &transfer.ID

	s.metrics.IncPayout("success")
	s.recordLedger(ctx, ledgerInput{
		OrderID:     order.ID,
		SubOrderID:  &sub.ID,
		Type:        enums.LedgerEventPayoutCreated,
		AmountCents: amount,
		GatewayRef:  &transfer.ID,
		Metadata:    jsonMeta(map[string]any{"seller_account_id": sub.SellerAccountID}),
	})
	s.logg.Info(ctx, "seller payout created")
	return nil
}

// ExecuteRefund cancels one item: refund the buyer first, then cancel the
// item and recompute order status, then claw back the seller's share. The
// gateway refund gates everything after it; a reversal failure is reported
// in the result instead of failing the request.
func (s *Service) ExecuteRefund(ctx context.Context, orderID, productID uuid.UUID, quantity int) (*RefundResult, error) {
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	order, err := s.store.FindOrderByID(ctx, orderID)
	if err != nil {
		return nil, err
	}

	plan, err := refunds.ComputePlan(order, productID, quantity)
	if err != nil {
		return nil, err
	}
	if order.PaymentIntentID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "order has no payment intent")
	}

	amount := plan.TotalMinorUnits()
	refund, err := s.gateway.CreateRefund(ctx, stripeclient.RefundCreateParams{
		PaymentIntentID: *order.PaymentIntentID,
		AmountCents:     amount,
		OrderID:         order.ID,
		ProductID:       productID,
		IdempotencyKey:  "refund-" + plan.ItemID.String(),
	})
	if err != nil {
		s.metrics.IncRefund("failure")
		return nil, err
	}
	s.metrics.IncRefund("success")
	s.recordLedger(ctx, ledgerInput{
		OrderID:     order.ID,
		SubOrderID:  &plan.SubOrderID,
		Type:        enums.LedgerEventRefundIssued,
		AmountCents: amount,
		GatewayRef:  &refund.ID,
		Metadata:    jsonMeta(map[string]any{"product_id": productID.String(), "quantity": quantity}),
	})

	status, err := s.orders.MarkItemCancelled(ctx, order.ID, plan.ItemID)
	if err != nil {
		return nil, err
	}

	reversalPending := s.reverseSellerShare(ctx, order, plan, amount)

	item := *order.ItemByProduct(productID)
	item.Status = enums.OrderItemStatusCancelled

	s.emitRefundIssued(ctx, order, plan, refund.ID, amount, reversalPending)

	return &RefundResult{
		FulfillmentStatus:   status,
		Item:                item,
		GatewayRefundID:     refund.ID,
		RefundedAmountCents: amount,
		ReversalPending:     reversalPending,
	}, nil
}

// reverseSellerShare claws back the refunded amount from the seller's
// transfer. Returns true when the reversal failed and needs an operator.
func (s *Service) reverseSellerShare(ctx context.Context, order *models.Order, plan *refunds.Plan, amount int64) bool {
	if plan.TransferID == nil {
		// seller was never paid, nothing to claw back
		return false
	}

	ctx = s.logg.WithSubOrderID(ctx, plan.SubOrderID.String())
	reversal, err := s.gateway.ReverseTransfer(ctx, stripeclient.ReversalCreateParams{
		TransferID:     *plan.TransferID,
		AmountCents:    amount,
		OrderID:        order.ID,
		SubOrderID:     plan.SubOrderID,
		IdempotencyKey: "reversal-" + plan.ItemID.String(),
	})
	if err != nil {
		s.metrics.IncReversalFailure()
		s.recordLedger(ctx, ledgerInput{
			OrderID:     order.ID,
			SubOrderID:  &plan.SubOrderID,
			Type:        enums.LedgerEventReversalFailed,
			AmountCents: amount,
			GatewayRef:  plan.TransferID,
			Metadata:    jsonMeta(map[string]any{"error": err.Error()}),
		})
		s.logg.Error(ctx, "transfer reversal failed, manual remediation required", err)
		return true
	}

	s.recordLedger(ctx, ledgerInput{
		OrderID:     order.ID,
		SubOrderID:  &plan.SubOrderID,
		Type:        enums.LedgerEventReversalIssued,
		AmountCents: amount,
		GatewayRef:  &reversal.ID,
	})
	return false
}

func (s *Service) emitRefundIssued(ctx context.Context, order *models.Order, plan *refunds.Plan, refundID string, amount int64, reversalPending bool) {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventRefundIssued,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Data: payloads.RefundIssuedEvent{
				OrderID:             order.ID,
				SubOrderID:          plan.SubOrderID,
				ProductID:           plan.ProductID,
				BuyerEmail:          order.BuyerEmail,
				Currency:            order.Currency,
				Quantity:            plan.Quantity,
				RefundedAmountCents: amount,
				GatewayRefundID:     refundID,
				ReversalPending:     reversalPending,
				RefundedAt:          time.Now().UTC(),
			},
		})
	})
	if err != nil {
		// the refund already happened; losing the notification is acceptable
		s.logg.Error(ctx, "queueing refund notification failed", err)
	}
}

func (s *Service) recordLedger(ctx context.Context, input ledgerInput) {
	if _, err := s.ledger.RecordEvent(ctx, input); err != nil {
		s.logg.Error(ctx, "recording ledger event failed", err)
	}
}

func jsonMeta(fields map[string]any) json.RawMessage {
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return raw
}
