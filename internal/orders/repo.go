package orders

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return nil, err
	}
	return order, nil
}

func (r *repository) FindOrderByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("SubOrders.Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrderByPaymentIntent(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("SubOrders.Items").
		Where("payment_intent_id = ?", paymentIntentID).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// MarkOrderPaid flips the order to paid and records the gateway intent. The
// conditional WHERE makes redelivered webhooks a no-op: only the first call
// can match an unpaid row with no intent attached.
func (r *repository) MarkOrderPaid(ctx context.Context, orderID uuid.UUID, paymentIntentID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND payment_intent_id IS NULL", orderID, enums.PaymentStatusUnpaid).
		Updates(map[string]any{
			"payment_status":    enums.PaymentStatusPaid,
			"payment_intent_id": paymentIntentID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// MarkOrderFailed records a failed capture. A paid order never transitions
// back to failed, so a late failure event after success is ignored.
func (r *repository) MarkOrderFailed(ctx context.Context, orderID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND payment_status <> ?", orderID, enums.PaymentStatusPaid).
		Update("payment_status", enums.PaymentStatusFailed)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetSubOrderTransfer records the payout transfer exactly once per sub-order.
func (r *repository) SetSubOrderTransfer(ctx context.Context, subOrderID uuid.UUID, transferID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.SubOrder{}).
		Where("id = ? AND transfer_id IS NULL", subOrderID).
		Update("transfer_id", transferID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CancelLineItem cancels a pending item; an already-cancelled item is not
// matched, which keeps repeated refund attempts from double-cancelling.
func (r *repository) CancelLineItem(ctx context.Context, itemID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.OrderLineItem{}).
		Where("id = ? AND status = ?", itemID, enums.OrderItemStatusPending).
		Update("status", enums.OrderItemStatusCancelled)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// UpdateFulfillmentStatus applies a recomputed status guarded by the version
// the caller read. A false return means a concurrent writer won and the
// caller should re-read and recompute.
func (r *repository) UpdateFulfillmentStatus(ctx context.Context, orderID uuid.UUID, status enums.FulfillmentStatus, expectedVersion int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND version = ?", orderID, expectedVersion).
		Updates(map[string]any{
			"fulfillment_status": status,
			"version":            expectedVersion + 1,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
