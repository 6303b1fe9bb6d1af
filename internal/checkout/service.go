// Package checkout builds the order aggregate for a multi-seller cart and
// initiates the buyer's single payment. The order persists as unpaid; the
// gateway's asynchronous confirmation flips it and triggers payouts.
package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	stripesdk "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/internal/checkout/helpers"
	"github.com/mercaline/marketplace-backend/internal/orders"
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
	"github.com/mercaline/marketplace-backend/pkg/logger"
	stripeclient "github.com/mercaline/marketplace-backend/pkg/stripe"
)

const defaultCurrency = "usd"

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type paymentInitiator interface {
	CreatePayment(ctx context.Context, params stripeclient.PaymentCreateParams) (*stripesdk.PaymentIntent, error)
}

// Service executes checkout orchestration.
type Service interface {
	Execute(ctx context.Context, input Input) (*models.Order, error)
}

type service struct {
	tx         txRunner
	ordersRepo orders.Repository
	gateway    paymentInitiator
	logg       *logger.Logger
}

// NewService wires the checkout service.
func NewService(tx txRunner, ordersRepo orders.Repository, gateway paymentInitiator, logg *logger.Logger) (Service, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	if ordersRepo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway is required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger is required")
	}
	return &service{tx: tx, ordersRepo: ordersRepo, gateway: gateway, logg: logg}, nil
}

// Execute validates the request, partitions items into one sub-order per
// seller, persists the aggregate, and asks the gateway to capture the
// buyer's full total. The order stays unpaid until the webhook confirms.
func (s *service) Execute(ctx context.Context, input Input) (*models.Order, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	order := buildOrder(input)
	ctx = s.logg.WithOrderID(ctx, order.ID.String())

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		_, createErr := s.ordersRepo.WithTx(tx).CreateOrder(ctx, order)
		return createErr
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "order created")

	// one capture for the whole cart; rounding to cents happens here, once
	total := decimal.Zero
	for i := range order.SubOrders {
		total = total.Add(order.SubOrders[i].PayoutTotal())
	}
	amount := total.Shift(2).RoundBank(0).IntPart()

	_, err = s.gateway.CreatePayment(ctx, stripeclient.PaymentCreateParams{
		AmountCents:     amount,
		Currency:        order.Currency,
		PaymentMethodID: input.PaymentMethodID,
		OrderID:         order.ID,
		IdempotencyKey:  "capture-" + order.ID.String(),
	})
	if err != nil {
		// the order stays unpaid; the caller may retry payment later
		s.logg.Error(ctx, "payment capture initiation failed", err)
		return nil, err
	}

	s.logg.Info(ctx, "payment capture initiated")
	return order, nil
}

func validateInput(input Input) error {
	if input.BuyerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer id is required")
	}
	if strings.TrimSpace(input.BuyerEmail) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "buyer email is required")
	}
	if strings.TrimSpace(input.PaymentMethodID) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment method is required")
	}
	if len(input.Items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	sellers := make(map[uuid.UUID]SellerInput, len(input.Sellers))
	for _, seller := range input.Sellers {
		if seller.SellerStoreID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller store id is required")
		}
		if strings.TrimSpace(seller.SellerAccountID) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, "seller account id is required")
		}
		if seller.Shipping.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "shipping must not be negative")
		}
		if _, dup := sellers[seller.SellerStoreID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate seller entry")
		}
		sellers[seller.SellerStoreID] = seller
	}

	seenProducts := make(map[uuid.UUID]struct{}, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
		}
		if item.SellerStoreID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "item seller store id is required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
		if item.UnitPrice.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "unit price must not be negative")
		}
		if item.TaxRatePercent.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeValidation, "tax rate must not be negative")
		}
		if _, dup := seenProducts[item.ProductID]; dup {
			return pkgerrors.New(pkgerrors.CodeValidation, "duplicate product in checkout")
		}
		seenProducts[item.ProductID] = struct{}{}
		if _, ok := sellers[item.SellerStoreID]; !ok {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("missing seller entry for store %s", item.SellerStoreID))
		}
	}
	return nil
}

func buildOrder(input Input) *models.Order {
	orderID := uuid.New()

	currency := strings.ToLower(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}

	items := make([]models.OrderLineItem, 0, len(input.Items))
	for _, in := range input.Items {
		items = append(items, models.OrderLineItem{
			ID:             uuid.New(),
			OrderID:        orderID,
			ProductID:      in.ProductID,
			SellerStoreID:  in.SellerStoreID,
			Quantity:       in.Quantity,
			UnitPrice:      in.UnitPrice,
			TaxRatePercent: in.TaxRatePercent,
			Status:         enums.OrderItemStatusPending,
		})
	}

	grouped := helpers.GroupItemsBySeller(items)
	subOrders := make([]models.SubOrder, 0, len(grouped))
	for _, seller := range input.Sellers {
		sellerItems, ok := grouped[seller.SellerStoreID]
		if !ok {
			// seller entry without items carries nothing to settle
			continue
		}
		totals := helpers.ComputeSellerTotals(sellerItems)
		sub := models.SubOrder{
			ID:              uuid.New(),
			OrderID:         orderID,
			SellerStoreID:   seller.SellerStoreID,
			SellerAccountID: seller.SellerAccountID,
			TotalAmount:     totals.Amount,
			TotalTax:        totals.Tax,
			TotalShipping:   seller.Shipping,
		}
		for i := range items {
			if items[i].SellerStoreID == seller.SellerStoreID {
				items[i].SubOrderID = sub.ID
			}
		}
		subOrders = append(subOrders, sub)
	}

	return &models.Order{
		ID:                orderID,
		BuyerID:           input.BuyerID,
		BuyerEmail:        strings.TrimSpace(input.BuyerEmail),
		Currency:          currency,
		PaymentStatus:     enums.PaymentStatusUnpaid,
		FulfillmentStatus: enums.FulfillmentStatusPending,
		Items:             items,
		SubOrders:         subOrders,
	}
}
