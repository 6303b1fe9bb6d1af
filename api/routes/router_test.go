package routes

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"github.com/mercaline/marketplace-backend/internal/checkout"
	"github.com/mercaline/marketplace-backend/internal/settlement"
	"github.com/mercaline/marketplace-backend/pkg/config"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubCheckoutService struct{}

func (stubCheckoutService) Execute(ctx context.Context, input checkout.Input) (*models.Order, error) {
	return nil, pkgerrors.New(pkgerrors.CodeInternal, "not implemented")
}

type stubOrdersService struct{}

func (stubOrdersService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID, Currency: "usd"}, nil
}

func (stubOrdersService) MarkItemCancelled(ctx context.Context, orderID, itemID uuid.UUID) (enums.FulfillmentStatus, error) {
	return enums.FulfillmentStatusPending, fmt.Errorf("not implemented")
}

type stubRefundService struct{}

func (stubRefundService) ExecuteRefund(ctx context.Context, orderID, productID uuid.UUID, quantity int) (*settlement.RefundResult, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func newTestRouter() http.Handler {
	cfg := &config.Config{}
	cfg.App.Env = "test"
	return NewRouter(
		cfg,
		nil,
		stubPinger{},
		stubPinger{},
		stubCheckoutService{},
		stubOrdersService{},
		nil,
		stubRefundService{},
		nil,
		nil,
		nil,
	)
}

func TestRouterHealthRoutes(t *testing.T) {
	t.Parallel()

	router := newTestRouter()

	for _, path := range []string{"/health/live", "/health/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 for %s, got %d (%s)", path, rec.Code, rec.Body.String())
		}
	}
}

func TestRouterMetricsRoute(t *testing.T) {
	t.Parallel()

	router := newTestRouter()

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for /metrics, got %d", rec.Code)
	}
}

func TestRouterOrderRoutes(t *testing.T) {
	t.Parallel()

	router := newTestRouter()

	orderID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/"+orderID.String(), nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for order detail, got %d (%s)", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/unknown", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown route, got %d", rec.Code)
	}
}
