package checkout

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ItemInput is one product line in a checkout request. Price and tax rate
// arrive from the caller's catalog snapshot and are stored verbatim.
type ItemInput struct {
	ProductID      uuid.UUID
	SellerStoreID  uuid.UUID
	Quantity       int
	UnitPrice      decimal.Decimal
	TaxRatePercent decimal.Decimal
}

// SellerInput carries the per-seller data that is not derivable from items:
// the payout destination and the shipping charge for that seller's shipment.
type SellerInput struct {
	SellerStoreID   uuid.UUID
	SellerAccountID string
	Shipping        decimal.Decimal
}

// Input is a complete checkout request.
type Input struct {
	BuyerID         uuid.UUID
	BuyerEmail      string
	PaymentMethodID string
	Currency        string
	Items           []ItemInput
	Sellers         []SellerInput
}
