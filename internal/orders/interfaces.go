package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
)

// Repository defines persistence operations for order/settlement tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error)
	MarkOrderPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) (bool, error)
	MarkOrderFailed(ctx context.Context, orderID uuid.UUID) (bool, error)
	SetSubOrderTransfer(ctx context.Context, subOrderID uuid.UUID, transferID string) (bool, error)
	CancelLineItem(ctx context.Context, itemID uuid.UUID) (bool, error)
	UpdateFulfillmentStatus(ctx context.Context, orderID uuid.UUID, status enums.FulfillmentStatus, expectedVersion int64) (bool, error)
}
