package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/mercaline/marketplace-backend/pkg/enums"
)

// OrderLineItem is the per-product snapshot inside an order. Price and tax
// rate are copied at checkout so the row stays valid even if the catalog
// product is later altered. Product IDs are unique within an order.
type OrderLineItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_order_line_items_order_product"`
	SubOrderID     uuid.UUID             `gorm:"column:sub_order_id;type:uuid;not null"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_order_line_items_order_product"`
	SellerStoreID  uuid.UUID             `gorm:"column:seller_store_id;type:uuid;not null"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	UnitPrice      decimal.Decimal       `gorm:"column:unit_price;type:numeric(12,2);not null"`
	TaxRatePercent decimal.Decimal       `gorm:"column:tax_rate_percent;type:numeric(6,3);not null"`
	Status         enums.OrderItemStatus `gorm:"column:status;type:order_item_status;not null;default:'pending'"`
	CreatedAt      time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}

// LineTotal is quantity times the unit price snapshot, before tax.
func (i *OrderLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineTax is the tax owed on the full line.
func (i *OrderLineItem) LineTax() decimal.Decimal {
	return i.LineTotal().Mul(i.TaxRatePercent).Div(decimal.NewFromInt(100))
}
