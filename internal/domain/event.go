package domain

import "time"

const (
	EventCreated   = "created"
	EventCancelled = "cancelled"
)

// TransactionEvent announces a stored or cancelled transaction.
// Transaction is nil for cancellations.
type TransactionEvent struct {
	Action      string       `json:"action"`
	Parser      string       `json:"parser"`
	AccountID   int64        `json:"account_id"`
	ExternalID  string       `json:"external_id"`
	Transaction *Transaction `json:"transaction,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}
