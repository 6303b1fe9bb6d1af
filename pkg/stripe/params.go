package stripe

import (
	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// PaymentCreateParams captures a buyer capture request. AmountCents is the
// full order total in the gateway's smallest currency unit.
type PaymentCreateParams struct {
	AmountCents     int64
	Currency        string
	PaymentMethodID string
	OrderID         uuid.UUID
	IdempotencyKey  string
}

func (p PaymentCreateParams) toStripeRequest(idempotencyKey string) *stripe.PaymentIntentCreateParams {
	req := &stripe.PaymentIntentCreateParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(p.Currency),
		PaymentMethod: stripe.String(p.PaymentMethodID),
		Confirm:       stripe.Bool(true),
		Metadata: map[string]string{
			"order_id": p.OrderID.String(),
		},
		TransferGroup: stripe.String(p.OrderID.String()),
	}
	req.IdempotencyKey = stripe.String(idempotencyKey)
	return req
}

// TransferCreateParams captures a seller payout request. TransferGroup
// correlates every per-seller transfer belonging to one order.
type TransferCreateParams struct {
	AmountCents        int64
	Currency           string
	DestinationAccount string
	TransferGroup      string
	OrderID            uuid.UUID
	SubOrderID         uuid.UUID
	IdempotencyKey     string
}

func (p TransferCreateParams) toStripeRequest(idempotencyKey string) *stripe.TransferCreateParams {
	req := &stripe.TransferCreateParams{
		Amount:        stripe.Int64(p.AmountCents),
		Currency:      stripe.String(p.Currency),
		Destination:   stripe.String(p.DestinationAccount),
		TransferGroup: stripe.String(p.TransferGroup),
		Metadata: map[string]string{
			"order_id":     p.OrderID.String(),
			"sub_order_id": p.SubOrderID.String(),
		},
	}
	req.IdempotencyKey = stripe.String(idempotencyKey)
	return req
}

// RefundCreateParams captures a buyer refund against a captured intent.
type RefundCreateParams struct {
	PaymentIntentID string
	AmountCents     int64
	OrderID         uuid.UUID
	ProductID       uuid.UUID
	IdempotencyKey  string
}

func (p RefundCreateParams) toStripeRequest(idempotencyKey string) *stripe.RefundCreateParams {
	req := &stripe.RefundCreateParams{
		PaymentIntent: stripe.String(p.PaymentIntentID),
		Amount:        stripe.Int64(p.AmountCents),
		Metadata: map[string]string{
			"order_id":   p.OrderID.String(),
			"product_id": p.ProductID.String(),
		},
	}
	req.IdempotencyKey = stripe.String(idempotencyKey)
	return req
}

// ReversalCreateParams claws back part of a prior seller transfer.
type ReversalCreateParams struct {
	TransferID     string
	AmountCents    int64
	OrderID        uuid.UUID
	SubOrderID     uuid.UUID
	IdempotencyKey string
}

func (p ReversalCreateParams) toStripeRequest(idempotencyKey string) *stripe.TransferReversalCreateParams {
	req := &stripe.TransferReversalCreateParams{
		ID:     stripe.String(p.TransferID),
		Amount: stripe.Int64(p.AmountCents),
		Metadata: map[string]string{
			"order_id":     p.OrderID.String(),
			"sub_order_id": p.SubOrderID.String(),
		},
	}
	req.IdempotencyKey = stripe.String(idempotencyKey)
	return req
}
