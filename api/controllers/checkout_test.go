package controllers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	checkoutsvc "github.com/mercaline/marketplace-backend/internal/checkout"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

type stubCheckoutService struct {
	order *models.Order
	input checkoutsvc.Input
	err   error
}

func (s *stubCheckoutService) Execute(ctx context.Context, input checkoutsvc.Input) (*models.Order, error) {
	s.input = input
	return s.order, s.err
}

func checkoutBody(buyerID, productID, sellerID uuid.UUID) string {
	return fmt.Sprintf(`{
		"buyer_id": %q,
		"buyer_email": "buyer@example.com",
		"payment_method_id": "pm_card_visa",
		"items": [
			{"product_id": %q, "seller_store_id": %q, "quantity": 2, "unit_price": "10.00", "tax_rate_percent": "10"}
		],
		"sellers": [
			{"seller_store_id": %q, "seller_account_id": "acct_1", "shipping": "15.00"}
		]
	}`, buyerID, productID, sellerID, sellerID)
}

func TestCheckoutSuccess(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	productID := uuid.New()
	sellerID := uuid.New()

	order := &models.Order{
		ID:                uuid.New(),
		BuyerID:           buyerID,
		Currency:          "usd",
		PaymentStatus:     enums.PaymentStatusUnpaid,
		FulfillmentStatus: enums.FulfillmentStatusPending,
		SubOrders: []models.SubOrder{
			{
				ID:            uuid.New(),
				SellerStoreID: sellerID,
				TotalAmount:   decimal.RequireFromString("20.00"),
				TotalTax:      decimal.RequireFromString("2.00"),
				TotalShipping: decimal.RequireFromString("15.00"),
			},
		},
	}
	svc := &stubCheckoutService{order: order}
	handler := Checkout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody(buyerID, productID, sellerID)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.input.BuyerEmail != "buyer@example.com" {
		t.Fatalf("expected buyer email forwarded, got %q", svc.input.BuyerEmail)
	}
	if len(svc.input.Items) != 1 || svc.input.Items[0].Quantity != 2 {
		t.Fatalf("unexpected items forwarded: %+v", svc.input.Items)
	}

	var envelope struct {
		Data orderResponse `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.OrderID != order.ID {
		t.Fatalf("expected order id %s, got %s", order.ID, envelope.Data.OrderID)
	}
	if len(envelope.Data.SubOrders) != 1 {
		t.Fatalf("expected one sub-order, got %d", len(envelope.Data.SubOrders))
	}
}

func TestCheckoutValidation(t *testing.T) {
	t.Parallel()

	svc := &stubCheckoutService{}
	handler := Checkout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"buyer_email":"not-an-email"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d (%s)", rec.Code, rec.Body.String())
	}
}

func TestCheckoutServiceError(t *testing.T) {
	t.Parallel()

	buyerID := uuid.New()
	productID := uuid.New()
	sellerID := uuid.New()

	svc := &stubCheckoutService{err: pkgerrors.New(pkgerrors.CodeGateway, "payment capture failed")}
	handler := Checkout(svc, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(checkoutBody(buyerID, productID, sellerID)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d (%s)", rec.Code, rec.Body.String())
	}
}
