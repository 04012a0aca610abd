package event

import (
	"time"

	"github.com/google/uuid"
)

// EventType discriminator for ledger operations.
type EventType int32

const (
	EventTypeUnknown EventType = iota
	EventTypeStaked
	EventTypeBorrowed
	EventTypeRepaid
	EventTypeWithdrawn
	EventTypeMinterUpdated
)

func (et EventType) String() string {
	switch et {
	case EventTypeStaked:
		return "Staked"
	case EventTypeBorrowed:
		return "Borrowed"
	case EventTypeRepaid:
		return "Repaid"
	case EventTypeWithdrawn:
		return "Withdrawn"
	case EventTypeMinterUpdated:
		return "MinterUpdated"
	default:
		return "Unknown"
	}
}

// Envelope wraps every completed operation in the log. Only plaintext facts
// appear here: the amount is already public on the solvency ledger, the
// encrypted side is referenced by handle only.
type Envelope struct {
	// Global monotonic sequence assigned by the engine
	Sequence int64

	// Unique operation identifier (idempotency key for downstream consumers)
	OperationID uuid.UUID

	// Operation discriminator
	EventType EventType

	// Account the operation was applied to
	Account string

	// Caller-declared amount (raw 64-bit units)
	Amount uint64

	// Current encrypted handles after the operation
	EncStakeHandle string
	EncDebtHandle  string

	Timestamp time.Time
}
