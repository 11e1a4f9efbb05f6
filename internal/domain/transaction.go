package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

const PlaceKindUnknown = "Unknown"

var (
	ErrDuplicateTransaction = errors.New("transaction already recorded")
	ErrAlreadyIngested      = errors.New("message already ingested")
)

type Place struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	Kind string `json:"kind" db:"kind"`
}

// Transaction is one card spend extracted from a bank notification.
// (AccountID, ExternalID) is unique.
type Transaction struct {
	ID             int64           `json:"id"`
	AccountID      int64           `json:"account_id"`
	ExternalID     string          `json:"external_id"`
	FromAddress    string          `json:"from_address"`
	CardNo         string          `json:"card_no"`
	Currency       string          `json:"currency"`
	Amount         decimal.Decimal `json:"amount"`
	OccurredAt     time.Time       `json:"occurred_at"`
	Place          Place           `json:"place"`
	CorrelationTag *string         `json:"correlation_tag,omitempty"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
}
