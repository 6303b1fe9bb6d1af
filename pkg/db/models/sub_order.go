package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SubOrder is one seller's portion of an order. Monetary totals are fixed at
// creation; only TransferID mutates afterwards, set once by the settlement
// engine and never cleared, even after a reversal.
type SubOrder struct {
	ID              uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	SellerStoreID   uuid.UUID       `gorm:"column:seller_store_id;type:uuid;not null"`
	SellerAccountID string          `gorm:"column:seller_account_id;not null"`
	TotalAmount     decimal.Decimal `gorm:"column:total_amount;type:numeric(12,2);not null"`
	TotalTax        decimal.Decimal `gorm:"column:total_tax;type:numeric(12,2);not null"`
	TotalShipping   decimal.Decimal `gorm:"column:total_shipping;type:numeric(12,2);not null"`
	TransferID      *string         `gorm:"column:transfer_id"`
	Items           []OrderLineItem `gorm:"foreignKey:SubOrderID"`
	CreatedAt       time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// PayoutTotal is the amount owed to the seller for this sub-order.
func (s *SubOrder) PayoutTotal() decimal.Decimal {
	return s.TotalAmount.Add(s.TotalTax).Add(s.TotalShipping)
}

// ContainsProduct reports whether the sub-order holds a line for the product.
func (s *SubOrder) ContainsProduct(productID uuid.UUID) bool {
	if s == nil {
		return false
	}
	for i := range s.Items {
		if s.Items[i].ProductID == productID {
			return true
		}
	}
	return false
}
