package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
	pkgerrors "github.com/mercaline/marketplace-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service defines order-level operations beyond repository reads.
type Service interface {
	GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	MarkItemCancelled(ctx context.Context, orderID, itemID uuid.UUID) (enums.FulfillmentStatus, error)
}

type service struct {
	repo Repository
	tx   txRunner
}

// NewService wires the orders service.
func NewService(repo Repository, tx txRunner) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository is required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner is required")
	}
	return &service{repo: repo, tx: tx}, nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.repo.FindOrderByID(ctx, orderID)
}

// Number of re-reads before giving up on a contended status recompute.
const maxStatusRetries = 3

var errVersionConflict = errors.New("order version conflict")

// MarkItemCancelled cancels one line item and recomputes the order's
// fulfillment status in the same transaction. Concurrent cancellations of
// different items race on the order version; the loser re-reads and retries.
func (s *service) MarkItemCancelled(ctx context.Context, orderID, itemID uuid.UUID) (enums.FulfillmentStatus, error) {
	var status enums.FulfillmentStatus

	for attempt := 0; attempt < maxStatusRetries; attempt++ {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)

			changed, err := repo.CancelLineItem(ctx, itemID)
			if err != nil {
				return err
			}
			if !changed {
				return pkgerrors.New(pkgerrors.CodeConflict, "order item already cancelled")
			}

			order, err := repo.FindOrderByID(ctx, orderID)
			if err != nil {
				return err
			}

			next := ProjectFulfillmentStatus(order.Items, order.FulfillmentStatus)
			ok, err := repo.UpdateFulfillmentStatus(ctx, orderID, next, order.Version)
			if err != nil {
				return err
			}
			if !ok {
				return errVersionConflict
			}

			status = next
			return nil
		})
		if err == nil {
			return status, nil
		}
		if errors.Is(err, errVersionConflict) {
			continue
		}
		return "", err
	}

	return "", pkgerrors.New(pkgerrors.CodeConflict, "order status update contended, retry")
}
