package projector

// PaymentResult is the inbound payment event applied to orders.
type PaymentResult struct {
	EventID string `json:"eventId"`
	OrderID string `json:"orderId"`
	Status  string `json:"status"` // compared case-insensitively against "SUCCESS"
	Reason  string `json:"reason,omitempty"`
}

// Outcome tags what handling one message did.
type Outcome int

const (
	// OutcomeApplied means the status transition and ledger insert committed.
	OutcomeApplied Outcome = iota
	// OutcomeDuplicate means the event id was already in the ledger.
	OutcomeDuplicate
	// OutcomeStale means the order had already left PENDING under a different
	// event; the ledger entry was recorded without touching the order.
	OutcomeStale
	// OutcomeMalformed means the payload did not decode and was dropped.
	OutcomeMalformed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeApplied:
		return "applied"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeStale:
		return "stale"
	case OutcomeMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}
