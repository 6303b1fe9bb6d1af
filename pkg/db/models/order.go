package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mercaline/marketplace-backend/pkg/enums"
)

// Order is the buyer-facing aggregate produced at checkout. It is never
// physically deleted; cancellation is a line-item status, not a removal.
type Order struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	BuyerID           uuid.UUID               `gorm:"column:buyer_id;type:uuid;not null"`
	BuyerEmail        string                  `gorm:"column:buyer_email;not null"`
	Currency          string                  `gorm:"column:currency;not null;default:'usd'"`
	PaymentStatus     enums.PaymentStatus     `gorm:"column:payment_status;type:payment_status;not null;default:'unpaid'"`
	PaymentIntentID   *string                 `gorm:"column:payment_intent_id"`
	FulfillmentStatus enums.FulfillmentStatus `gorm:"column:fulfillment_status;type:fulfillment_status;not null;default:'pending'"`
	Version           int64                   `gorm:"column:version;not null;default:0"`
	Items             []OrderLineItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	SubOrders         []SubOrder              `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// ItemByProduct returns the line item for the given product, or nil.
func (o *Order) ItemByProduct(productID uuid.UUID) *OrderLineItem {
	if o == nil {
		return nil
	}
	for i := range o.Items {
		if o.Items[i].ProductID == productID {
			return &o.Items[i]
		}
	}
	return nil
}

// SubOrderForSeller returns the sub-order for the given seller store, or nil.
func (o *Order) SubOrderForSeller(sellerStoreID uuid.UUID) *SubOrder {
	if o == nil {
		return nil
	}
	for i := range o.SubOrders {
		if o.SubOrders[i].SellerStoreID == sellerStoreID {
			return &o.SubOrders[i]
		}
	}
	return nil
}
