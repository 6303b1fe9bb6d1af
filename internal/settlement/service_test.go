package settlement

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	"github.com/mercaline/marketplace-backend/pkg/outbox"
	stripeclient "github.com/mercaline/marketplace-backend/pkg/stripe"
)

type stubGateway struct {
	transfers []stripeclient.TransferCreateParams
	refunds   []stripeclient.RefundCreateParams
	reversals []stripeclient.ReversalCreateParams

	transferErr error
	refundErr   error
	reversalErr error

	failForAccount string
}

func (g *stubGateway) CreateTransfer(_ context.Context, params stripeclient.TransferCreateParams) (*stripesdk.Transfer, error) {
	if g.transferErr != nil && (g.failForAccount == "" || g.failForAccount == params.DestinationAccount) {
		return nil, g.transferErr
	}
	g.transfers = append(g.transfers, params)
	return &stripesdk.Transfer{ID: "tr_" + params.SubOrderID.String()[:8]}, nil
}

func (g *stubGateway) CreateRefund(_ context.Context, params stripeclient.RefundCreateParams) (*stripesdk.Refund, error) {
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	g.refunds = append(g.refunds, params)
	return &stripesdk.Refund{ID: "re_1"}, nil
}

func (g *stubGateway) ReverseTransfer(_ context.Context, params stripeclient.ReversalCreateParams) (*stripesdk.TransferReversal, error) {
	if g.reversalErr != nil {
		return nil, g.reversalErr
	}
	g.reversals = append(g.reversals, params)
	return &stripesdk.TransferReversal{ID: "trr_1"}, nil
}

type stubStore struct {
	order        *models.Order
	findErr      error
	setCalls     int
	setTransfers map[uuid.UUID]string
}

func (s *stubStore) FindOrderByID(_ context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.order == nil || s.order.ID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return s.order, nil
}

func (s *stubStore) SetSubOrderTransfer(_ context.Context, subOrderID uuid.UUID, transferID string) (bool, error) {
	s.setCalls++
	if s.setTransfers == nil {
		s.setTransfers = map[uuid.UUID]string{}
	}
	if _, exists := s.setTransfers[subOrderID]; exists {
		return false, nil
	}
	s.setTransfers[subOrderID] = transferID
	return true, nil
}

type stubCanceller struct {
	calls  int
	status enums.FulfillmentStatus
	err    error
}

func (c *stubCanceller) MarkItemCancelled(_ context.Context, _, _ uuid.UUID) (enums.FulfillmentStatus, error) {
	c.calls++
	if c.err != nil {
		return "", c.err
	}
	return c.status, nil
}

type stubLedger struct {
	events []ledgerInput
}

func (l *stubLedger) RecordEvent(_ context.Context, input ledgerInput) (*models.LedgerEvent, error) {
	l.events = append(l.events, input)
	return &models.LedgerEvent{}, nil
}

func (l *stubLedger) typesSeen() []enums.LedgerEventType {
	out := make([]enums.LedgerEventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

type stubTx struct{}

func (stubTx) WithTx(_ context.Context, fn func(tx *gorm.DB) error) error {
	return fn(&gorm.DB{})
}

type stubOutbox struct {
	events []outbox.DomainEvent
	err    error
}

func (o *stubOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	if o.err != nil {
		return o.err
	}
	o.events = append(o.events, event)
	return nil
}

type fixture struct {
	svc     *Service
	gateway *stubGateway
	store   *stubStore
	cancel  *stubCanceller
	ledger  *stubLedger
	outbox  *stubOutbox
}

func newFixture(t *testing.T, order *models.Order) *fixture {
	t.Helper()

	f := &fixture{
		gateway: &stubGateway{},
		store:   &stubStore{order: order},
		cancel:  &stubCanceller{status: enums.FulfillmentStatusPartiallyCancelled},
		ledger:  &stubLedger{},
		outbox:  &stubOutbox{},
	}
	svc, err := NewService(
		f.gateway, f.store, f.cancel, f.ledger, stubTx{}, f.outbox,
		nil, logger.New(logger.Options{ServiceName: "test"}),
	)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func paidOrder() (*models.Order, uuid.UUID) {
	orderID := uuid.New()
	sellerA := uuid.New()
	sellerB := uuid.New()
	subA := uuid.New()
	subB := uuid.New()
	productID := uuid.New()
	intentID := "pi_1"

	return &models.Order{
		ID:              orderID,
		BuyerEmail:      "buyer@example.com",
		Currency:        "usd",
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentIntentID: &intentID,
		Items: []models.OrderLineItem{
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				SubOrderID:     subA,
				ProductID:      productID,
				SellerStoreID:  sellerA,
				Quantity:       2,
				UnitPrice:      decimal.NewFromInt(10),
				TaxRatePercent: decimal.NewFromInt(10),
				Status:         enums.OrderItemStatusPending,
			},
			{
				ID:             uuid.New(),
				OrderID:        orderID,
				SubOrderID:     subB,
				ProductID:      uuid.New(),
				SellerStoreID:  sellerB,
				Quantity:       1,
				UnitPrice:      decimal.NewFromInt(50),
				TaxRatePercent: decimal.Zero,
				Status:         enums.OrderItemStatusPending,
			},
		},
		SubOrders: []models.SubOrder{
			{
				ID:              subA,
				OrderID:         orderID,
				SellerStoreID:   sellerA,
				SellerAccountID: "acct_a",
				TotalAmount:     decimal.NewFromInt(100),
				TotalTax:        decimal.NewFromInt(10),
				TotalShipping:   decimal.NewFromInt(15),
			},
			{
				ID:              subB,
				OrderID:         orderID,
				SellerStoreID:   sellerB,
				SellerAccountID: "acct_b",
				TotalAmount:     decimal.NewFromInt(50),
				TotalTax:        decimal.Zero,
				TotalShipping:   decimal.NewFromInt(5),
			},
		},
	}, productID
}

func TestPayoutOrderPaysEachSellerOnce(t *testing.T) {
	order, _ := paidOrder()
	f := newFixture(t, order)
	ctx := context.Background()

	require.NoError(t, f.svc.PayoutOrder(ctx, order))
	require.Len(t, f.gateway.transfers, 2)

	// sub-order A: 100 + 10 + 15 = 125.00
	assert.Equal(t, int64(12500), f.gateway.transfers[0].AmountCents)
	assert.Equal(t, "acct_a", f.gateway.transfers[0].DestinationAccount)
	assert.Equal(t, order.ID.String(), f.gateway.transfers[0].TransferGroup)
	// sub-order B: 50 + 0 + 5 = 55.00
	assert.Equal(t, int64(5500), f.gateway.transfers[1].AmountCents)

	assert.Equal(t, []enums.LedgerEventType{
		enums.LedgerEventPayoutCreated,
		enums.LedgerEventPayoutCreated,
	}, f.ledger.typesSeen())

	// replay: transfers are now recorded, nothing moves
	require.NoError(t, f.svc.PayoutOrder(ctx, order))
	assert.Len(t, f.gateway.transfers, 2)
}

func TestPayoutOrderSkipsAlreadyPaidSubOrder(t *testing.T) {
	order, _ := paidOrder()
	existing := "tr_prior"
	order.SubOrders[0].TransferID = &existing
	f := newFixture(t, order)

	require.NoError(t, f.svc.PayoutOrder(context.Background(), order))
	require.Len(t, f.gateway.transfers, 1)
	assert.Equal(t, "acct_b", f.gateway.transfers[0].DestinationAccount)
}

func TestPayoutOrderPartialFailure(t *testing.T) {
	order, _ := paidOrder()
	f := newFixture(t, order)
	f.gateway.transferErr = errors.New("gateway unavailable")
	f.gateway.failForAccount = "acct_a"

	err := f.svc.PayoutOrder(context.Background(), order)
	require.Error(t, err)

	// seller B still got paid
	require.Len(t, f.gateway.transfers, 1)
	assert.Equal(t, "acct_b", f.gateway.transfers[0].DestinationAccount)

	assert.Equal(t, []enums.LedgerEventType{
		enums.LedgerEventPayoutFailed,
		enums.LedgerEventPayoutCreated,
	}, f.ledger.typesSeen())
}

func TestExecuteRefundHappyPath(t *testing.T) {
	order, productID := paidOrder()
	transferID := "tr_a"
	order.SubOrders[0].TransferID = &transferID
	f := newFixture(t, order)

	result, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 2)
	require.NoError(t, err)

	// 20.00 price + 2.00 tax + 3.00 shipping = 25.00
	assert.Equal(t, int64(2500), result.RefundedAmountCents)
	assert.Equal(t, "re_1", result.GatewayRefundID)
	assert.False(t, result.ReversalPending)
	assert.Equal(t, enums.FulfillmentStatusPartiallyCancelled, result.FulfillmentStatus)
	assert.Equal(t, enums.OrderItemStatusCancelled, result.Item.Status)

	require.Len(t, f.gateway.refunds, 1)
	assert.Equal(t, "pi_1", f.gateway.refunds[0].PaymentIntentID)
	assert.Equal(t, int64(2500), f.gateway.refunds[0].AmountCents)

	// reversal claws back the exact refunded amount
	require.Len(t, f.gateway.reversals, 1)
	assert.Equal(t, "tr_a", f.gateway.reversals[0].TransferID)
	assert.Equal(t, int64(2500), f.gateway.reversals[0].AmountCents)

	assert.Equal(t, 1, f.cancel.calls)
	assert.Equal(t, []enums.LedgerEventType{
		enums.LedgerEventRefundIssued,
		enums.LedgerEventReversalIssued,
	}, f.ledger.typesSeen())

	require.Len(t, f.outbox.events, 1)
	assert.Equal(t, enums.EventRefundIssued, f.outbox.events[0].EventType)
}

func TestExecuteRefundFailsClosed(t *testing.T) {
	order, productID := paidOrder()
	f := newFixture(t, order)
	f.gateway.refundErr = pkgerrors.New(pkgerrors.CodeGateway, "stripe create refund failed")

	_, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeGateway))

	// nothing after the gateway call may run
	assert.Equal(t, 0, f.cancel.calls)
	assert.Empty(t, f.gateway.reversals)
	assert.Empty(t, f.ledger.events)
	assert.Empty(t, f.outbox.events)
}

func TestExecuteRefundReversalFailureIsNonFatal(t *testing.T) {
	order, productID := paidOrder()
	transferID := "tr_a"
	order.SubOrders[0].TransferID = &transferID
	f := newFixture(t, order)
	f.gateway.reversalErr = errors.New("transfer balance exhausted")

	result, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 1)
	require.NoError(t, err)
	assert.True(t, result.ReversalPending)

	assert.Equal(t, []enums.LedgerEventType{
		enums.LedgerEventRefundIssued,
		enums.LedgerEventReversalFailed,
	}, f.ledger.typesSeen())
}

func TestExecuteRefundWithoutPriorPayoutSkipsReversal(t *testing.T) {
	order, productID := paidOrder()
	f := newFixture(t, order)

	result, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 1)
	require.NoError(t, err)
	assert.False(t, result.ReversalPending)
	assert.Empty(t, f.gateway.reversals)
}

func TestExecuteRefundRequiresPaymentIntent(t *testing.T) {
	order, productID := paidOrder()
	order.PaymentIntentID = nil
	f := newFixture(t, order)

	_, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant))
}

func TestExecuteRefundUnpaidOrder(t *testing.T) {
	order, productID := paidOrder()
	order.PaymentStatus = enums.PaymentStatusUnpaid
	f := newFixture(t, order)

	_, err := f.svc.ExecuteRefund(context.Background(), order.ID, productID, 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInvariant))
}

func TestExecuteRefundUnknownOrder(t *testing.T) {
	order, _ := paidOrder()
	f := newFixture(t, order)

	_, err := f.svc.ExecuteRefund(context.Background(), uuid.New(), uuid.New(), 1)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
