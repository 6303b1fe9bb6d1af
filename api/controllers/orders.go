package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/marketplace-backend/api/responses"
	"github.com/mercaline/marketplace-backend/api/validators"
	"github.com/mercaline/marketplace-backend/internal/ledger"
	"github.com/mercaline/marketplace-backend/internal/orders"
	"github.com/mercaline/marketplace-backend/internal/settlement"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
)

// RefundService executes a partial refund for one order line.
type RefundService interface {
	ExecuteRefund(ctx context.Context, orderID, productID uuid.UUID, quantity int) (*settlement.RefundResult, error)
}

// OrderDetail returns the order with its sub-orders and settlement history.
func OrderDetail(svc orders.Service, ledgerSvc ledger.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail := orderDetailResponse{Order: newOrderResponse(order)}
		if ledgerSvc != nil {
			events, err := ledgerSvc.ListEvents(r.Context(), orderID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list ledger events"))
				return
			}
			detail.Ledger = newLedgerResponses(events)
		}

		responses.WriteSuccess(w, detail)
	}
}

// CancelOrderItem refunds part of a paid order and cancels the line item.
func CancelOrderItem(svc RefundService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "settlement service unavailable"))
			return
		}

		orderID, err := parseOrderID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload cancellationRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ExecuteRefund(r.Context(), orderID, payload.ProductID, payload.Quantity)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, newCancellationResponse(result))
	}
}

type cancellationRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Quantity  int       `json:"quantity" validate:"required,min=1"`
}

type cancellationResponse struct {
	FulfillmentStatus string           `json:"fulfillment_status"`
	OrderItem         lineItemResponse `json:"order_item"`
	Refund            refundResponse   `json:"refund"`
}

type refundResponse struct {
	GatewayRefundID string          `json:"gateway_refund_id"`
	RefundedAmount  decimal.Decimal `json:"refunded_amount"`
	ReversalPending bool            `json:"reversal_pending"`
}

type orderDetailResponse struct {
	Order  orderResponse         `json:"order"`
	Ledger []ledgerEventResponse `json:"ledger"`
}

type ledgerEventResponse struct {
	EventID     uuid.UUID  `json:"event_id"`
	SubOrderID  *uuid.UUID `json:"sub_order_id,omitempty"`
	Type        string     `json:"type"`
	AmountCents int64      `json:"amount_cents"`
	GatewayRef  *string    `json:"gateway_ref,omitempty"`
}

func newCancellationResponse(result *settlement.RefundResult) cancellationResponse {
	if result == nil {
		return cancellationResponse{}
	}
	return cancellationResponse{
		FulfillmentStatus: string(result.FulfillmentStatus),
		OrderItem:         newLineItemResponse(result.Item),
		Refund: refundResponse{
			GatewayRefundID: result.GatewayRefundID,
			RefundedAmount:  decimal.NewFromInt(result.RefundedAmountCents).Shift(-2),
			ReversalPending: result.ReversalPending,
		},
	}
}

func newLedgerResponses(events []models.LedgerEvent) []ledgerEventResponse {
	out := make([]ledgerEventResponse, 0, len(events))
	for _, event := range events {
		out = append(out, ledgerEventResponse{
			EventID:     event.ID,
			SubOrderID:  event.SubOrderID,
			Type:        string(event.Type),
			AmountCents: event.AmountCents,
			GatewayRef:  event.GatewayRef,
		})
	}
	return out
}

func parseOrderID(r *http.Request) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderId"))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	orderID, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id")
	}
	return orderID, nil
}
