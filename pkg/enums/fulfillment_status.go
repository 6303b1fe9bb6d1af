package enums

import "fmt"

// FulfillmentStatus is the aggregate lifecycle label over an order's line
// items, distinct from payment status.
type FulfillmentStatus string

const (
	FulfillmentStatusPending            FulfillmentStatus = "pending"
	FulfillmentStatusPartiallyCancelled FulfillmentStatus = "partially_cancelled"
	FulfillmentStatusCancelled          FulfillmentStatus = "cancelled"
	FulfillmentStatusShipped            FulfillmentStatus = "shipped"
	FulfillmentStatusDelivered          FulfillmentStatus = "delivered"
	FulfillmentStatusComplete           FulfillmentStatus = "complete"
)

var validFulfillmentStatuses = []FulfillmentStatus{
	FulfillmentStatusPending,
	FulfillmentStatusPartiallyCancelled,
	FulfillmentStatusCancelled,
	FulfillmentStatusShipped,
	FulfillmentStatusDelivered,
	FulfillmentStatusComplete,
}

// String implements fmt.Stringer.
func (f FulfillmentStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FulfillmentStatus.
func (f FulfillmentStatus) IsValid() bool {
	for _, candidate := range validFulfillmentStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFulfillmentStatus converts raw input into a FulfillmentStatus.
func ParseFulfillmentStatus(value string) (FulfillmentStatus, error) {
	for _, candidate := range validFulfillmentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fulfillment status %q", value)
}
