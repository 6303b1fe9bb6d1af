package helpers

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
)

// GroupItemsBySeller groups the provided line items by their seller store.
func GroupItemsBySeller(items []models.OrderLineItem) map[uuid.UUID][]models.OrderLineItem {
	grouped := make(map[uuid.UUID][]models.OrderLineItem, len(items))
	for _, item := range items {
		grouped[item.SellerStoreID] = append(grouped[item.SellerStoreID], item)
	}
	return grouped
}

// SellerTotals captures pre-calculated totals for one seller's share.
type SellerTotals struct {
	SellerStoreID uuid.UUID
	Amount        decimal.Decimal
	Tax           decimal.Decimal
	ItemCount     int
}

// ComputeSellerTotals sums product subtotal and tax for one seller's items.
func ComputeSellerTotals(items []models.OrderLineItem) SellerTotals {
	totals := SellerTotals{Amount: decimal.Zero, Tax: decimal.Zero}
	if len(items) == 0 {
		return totals
	}
	totals.SellerStoreID = items[0].SellerStoreID
	for i := range items {
		totals.Amount = totals.Amount.Add(items[i].LineTotal())
		totals.Tax = totals.Tax.Add(items[i].LineTax())
		totals.ItemCount++
	}
	return totals
}
