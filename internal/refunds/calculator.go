// Package refunds computes how much money moves when a buyer cancels an
// order item. The calculation is pure: it reads an order snapshot and
// produces a plan, leaving every gateway call and database write to the
// settlement engine.
package refunds

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

var oneHundred = decimal.NewFromInt(100)

// Plan is the priced outcome of a single item cancellation. Amounts are
// decimal until the gateway boundary, where TotalMinorUnits converts once.
type Plan struct {
	OrderID      uuid.UUID
	SubOrderID   uuid.UUID
	TransferID   *string
	ItemID       uuid.UUID
	ProductID    uuid.UUID
	Quantity     int
	ItemPrice    decimal.Decimal
	ItemTax      decimal.Decimal
	ItemShipping decimal.Decimal
	Total        decimal.Decimal
}

// TotalMinorUnits converts the refund total to integer cents, rounding half
// to even. This is the only place a plan amount is rounded; the reversal
// reuses the same figure so buyer refund and seller clawback always agree.
func (p Plan) TotalMinorUnits() int64 {
	return p.Total.Shift(2).RoundBank(0).IntPart()
}

// ComputePlan prices the cancellation of quantity units of a product on a
// paid order. The item's full quantity is refunded when quantity equals the
// purchased amount; shipping is refunded proportionally to the item's share
// of the sub-order's product subtotal.
func ComputePlan(order *models.Order, productID uuid.UUID, quantity int) (*Plan, error) {
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is required")
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "order is not paid")
	}

	item := order.ItemByProduct(productID)
	if item == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found in order")
	}
	if item.Status == enums.OrderItemStatusCancelled {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "order item already cancelled")
	}

	if quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if quantity > item.Quantity {
		return nil, pkgerrors.New(pkgerrors.CodeInvariant, "quantity exceeds purchased amount")
	}

	sub := order.SubOrderForSeller(item.SellerStoreID)
	if sub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "sub-order not found for item")
	}

	qty := decimal.NewFromInt(int64(quantity))
	itemPrice := item.UnitPrice.Mul(qty)
	itemTax := itemPrice.Mul(item.TaxRatePercent).Div(oneHundred)

	// Shipping share scales with the item's portion of the seller's product
	// subtotal. A zero subtotal would divide by zero; no shipping moves then.
	itemShipping := decimal.Zero
	if sub.TotalAmount.IsPositive() {
		itemShipping = sub.TotalShipping.Mul(itemPrice).Div(sub.TotalAmount)
	}

	return &Plan{
		OrderID:      order.ID,
		SubOrderID:   sub.ID,
		TransferID:   sub.TransferID,
		ItemID:       item.ID,
		ProductID:    productID,
		Quantity:     quantity,
		ItemPrice:    itemPrice,
		ItemTax:      itemTax,
		ItemShipping: itemShipping,
		Total:        itemPrice.Add(itemTax).Add(itemShipping),
	}, nil
}
