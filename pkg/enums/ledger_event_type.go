package enums

import "fmt"

// LedgerEventType labels the append-only money-movement audit records.
type LedgerEventType string

const (
	LedgerEventPayoutCreated  LedgerEventType = "payout_created"
	LedgerEventPayoutFailed   LedgerEventType = "payout_failed"
	LedgerEventRefundIssued   LedgerEventType = "refund_issued"
	LedgerEventReversalIssued LedgerEventType = "reversal_issued"
	LedgerEventReversalFailed LedgerEventType = "reversal_failed"
)

var validLedgerEventTypes = []LedgerEventType{
	LedgerEventPayoutCreated,
	LedgerEventPayoutFailed,
	LedgerEventRefundIssued,
	LedgerEventReversalIssued,
	LedgerEventReversalFailed,
}

// String implements fmt.Stringer.
func (l LedgerEventType) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LedgerEventType.
func (l LedgerEventType) IsValid() bool {
	for _, candidate := range validLedgerEventTypes {
		if candidate == l {
			return true
		}
	}
	return false
}

// ParseLedgerEventType converts raw input into a LedgerEventType.
func ParseLedgerEventType(value string) (LedgerEventType, error) {
	for _, candidate := range validLedgerEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger event type %q", value)
}
