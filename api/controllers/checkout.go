package controllers

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/marketplace-backend/api/responses"
	"github.com/mercaline/marketplace-backend/api/validators"
	checkoutsvc "github.com/mercaline/marketplace-backend/internal/checkout"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
)

// Checkout creates a split order and starts the buyer capture.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Execute(r.Context(), payload.toInput())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, newOrderResponse(order))
	}
}

type checkoutRequest struct {
	BuyerID         uuid.UUID             `json:"buyer_id" validate:"required"`
	BuyerEmail      string                `json:"buyer_email" validate:"required,email"`
	PaymentMethodID string                `json:"payment_method_id" validate:"required"`
	Currency        string                `json:"currency,omitempty"`
	Items           []checkoutItemRequest `json:"items" validate:"required,min=1,dive"`
	Sellers         []checkoutSellerInput `json:"sellers" validate:"required,min=1,dive"`
}

type checkoutItemRequest struct {
	ProductID      uuid.UUID       `json:"product_id" validate:"required"`
	SellerStoreID  uuid.UUID       `json:"seller_store_id" validate:"required"`
	Quantity       int             `json:"quantity" validate:"required,min=1"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
}

type checkoutSellerInput struct {
	SellerStoreID   uuid.UUID       `json:"seller_store_id" validate:"required"`
	SellerAccountID string          `json:"seller_account_id" validate:"required"`
	Shipping        decimal.Decimal `json:"shipping"`
}

func (req checkoutRequest) toInput() checkoutsvc.Input {
	items := make([]checkoutsvc.ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, checkoutsvc.ItemInput{
			ProductID:      item.ProductID,
			SellerStoreID:  item.SellerStoreID,
			Quantity:       item.Quantity,
			UnitPrice:      item.UnitPrice,
			TaxRatePercent: item.TaxRatePercent,
		})
	}
	sellers := make([]checkoutsvc.SellerInput, 0, len(req.Sellers))
	for _, seller := range req.Sellers {
		sellers = append(sellers, checkoutsvc.SellerInput{
			SellerStoreID:   seller.SellerStoreID,
			SellerAccountID: seller.SellerAccountID,
			Shipping:        seller.Shipping,
		})
	}
	return checkoutsvc.Input{
		BuyerID:         req.BuyerID,
		BuyerEmail:      req.BuyerEmail,
		PaymentMethodID: req.PaymentMethodID,
		Currency:        req.Currency,
		Items:           items,
		Sellers:         sellers,
	}
}

type orderResponse struct {
	OrderID           uuid.UUID          `json:"order_id"`
	BuyerID           uuid.UUID          `json:"buyer_id"`
	Currency          string             `json:"currency"`
	PaymentStatus     string             `json:"payment_status"`
	FulfillmentStatus string             `json:"fulfillment_status"`
	SubOrders         []subOrderResponse `json:"sub_orders"`
}

type subOrderResponse struct {
	SubOrderID    uuid.UUID          `json:"sub_order_id"`
	SellerStoreID uuid.UUID          `json:"seller_store_id"`
	TotalAmount   decimal.Decimal    `json:"total_amount"`
	TotalTax      decimal.Decimal    `json:"total_tax"`
	TotalShipping decimal.Decimal    `json:"total_shipping"`
	TransferID    *string            `json:"transfer_id,omitempty"`
	Items         []lineItemResponse `json:"items"`
}

type lineItemResponse struct {
	LineItemID     uuid.UUID       `json:"line_item_id"`
	ProductID      uuid.UUID       `json:"product_id"`
	Quantity       int             `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	Status         string          `json:"status"`
}

func newOrderResponse(order *models.Order) orderResponse {
	if order == nil {
		return orderResponse{}
	}
	subs := make([]subOrderResponse, 0, len(order.SubOrders))
	for _, sub := range order.SubOrders {
		items := make([]lineItemResponse, 0, len(sub.Items))
		for _, item := range sub.Items {
			items = append(items, newLineItemResponse(item))
		}
		subs = append(subs, subOrderResponse{
			SubOrderID:    sub.ID,
			SellerStoreID: sub.SellerStoreID,
			TotalAmount:   sub.TotalAmount,
			TotalTax:      sub.TotalTax,
			TotalShipping: sub.TotalShipping,
			TransferID:    sub.TransferID,
			Items:         items,
		})
	}
	return orderResponse{
		OrderID:           order.ID,
		BuyerID:           order.BuyerID,
		Currency:          order.Currency,
		PaymentStatus:     string(order.PaymentStatus),
		FulfillmentStatus: string(order.FulfillmentStatus),
		SubOrders:         subs,
	}
}

func newLineItemResponse(item models.OrderLineItem) lineItemResponse {
	return lineItemResponse{
		LineItemID:     item.ID,
		ProductID:      item.ProductID,
		Quantity:       item.Quantity,
		UnitPrice:      item.UnitPrice,
		TaxRatePercent: item.TaxRatePercent,
		Status:         string(item.Status),
	}
}
