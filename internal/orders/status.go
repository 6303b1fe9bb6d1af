package orders

import (
	"github.com/mercaline/marketplace-backend/pkg/db/models"
	"github.com/mercaline/marketplace-backend/pkg/enums"
)

// ProjectFulfillmentStatus derives the order-level fulfillment status from
// its line items. Cancellation states are projections: all items cancelled
// means the whole order is cancelled, a strict subset means partial. When no
// item is cancelled the previous status is kept, so shipping-progress states
// set elsewhere are not clobbered.
func ProjectFulfillmentStatus(items []models.OrderLineItem, previous enums.FulfillmentStatus) enums.FulfillmentStatus {
	if len(items) == 0 {
		return previous
	}

	cancelled := 0
	for i := range items {
		if items[i].Status == enums.OrderItemStatusCancelled {
			cancelled++
		}
	}

	switch {
	case cancelled == len(items):
		return enums.FulfillmentStatusCancelled
	case cancelled > 0:
		return enums.FulfillmentStatusPartiallyCancelled
	default:
		return previous
	}
}
