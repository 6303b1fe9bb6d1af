package enums

// OutboxEventType names the domain events emitted through the outbox.
type OutboxEventType string

const (
	EventOrderPaid    OutboxEventType = "order.paid"
	EventRefundIssued OutboxEventType = "refund.issued"
)

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder OutboxAggregateType = "order"
)

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// String implements fmt.Stringer.
func (o OutboxAggregateType) String() string {
	return string(o)
}
