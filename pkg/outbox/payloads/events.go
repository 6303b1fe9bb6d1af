// Package payloads defines the event bodies carried inside outbox envelopes.
// These cross the wire to the notification worker, so fields only ever get
// added, never renamed.
package payloads

import (
	"time"

	"github.com/google/uuid"
)

// OrderPaidEvent is published once when the gateway confirms capture.
type OrderPaidEvent struct {
	OrderID          uuid.UUID `json:"orderId"`
	BuyerEmail       string    `json:"buyerEmail"`
	Currency         string    `json:"currency"`
	TotalAmountCents int64     `json:"totalAmountCents"`
	SellerCount      int       `json:"sellerCount"`
	PaidAt           time.Time `json:"paidAt"`
}

// RefundIssuedEvent is published after each successful item refund.
type RefundIssuedEvent struct {
	OrderID             uuid.UUID `json:"orderId"`
	SubOrderID          uuid.UUID `json:"subOrderId"`
	ProductID           uuid.UUID `json:"productId"`
	BuyerEmail          string    `json:"buyerEmail"`
	Currency            string    `json:"currency"`
	Quantity            int       `json:"quantity"`
	RefundedAmountCents int64     `json:"refundedAmountCents"`
	GatewayRefundID     string    `json:"gatewayRefundId"`
	ReversalPending     bool      `json:"reversalPending"`
	RefundedAt          time.Time `json:"refundedAt"`
}
