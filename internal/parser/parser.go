// Package parser turns bank notifications into persisted transactions.
//
// Parsers are keyed by the sender identities they track. A Registry owns the
// sender lookup table and runs each parse inside one storage transaction, so a
// place insert and the transaction insert that references it commit together.
package parser

import (
	"context"
	"fmt"

	"cctracker/internal/domain"
)

// Parser extracts transactions from one bank's notifications.
//
// Parse must return OutcomeNoMatch, not an error, for messages whose shape it
// does not recognize. Recognized messages that cannot be extracted yield a
// *ParseError.
type Parser interface {
	Name() string
	Senders() []string
	Parse(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error)
}

// Gateway is the storage a parser may write through.
type Gateway interface {
	ExistsByExternalID(ctx context.Context, accountID int64, externalID string) (bool, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	DeleteByCorrelationTag(ctx context.Context, accountID int64, tag, createdBy string) (bool, error)
	FindOrCreatePlace(ctx context.Context, name string) (*domain.Place, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Outcome int

const (
	// OutcomeNone means no parser tracks the sender.
	OutcomeNone Outcome = iota
	OutcomeNoMatch
	OutcomeCreated
	OutcomeCancelled
	// OutcomeDuplicate means storage already held the external id.
	OutcomeDuplicate
	// OutcomeFailed carries a reported ParseError.
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNone:
		return "none"
	case OutcomeNoMatch:
		return "no_match"
	case OutcomeCreated:
		return "created"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeDuplicate:
		return "duplicate"
	case OutcomeFailed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

type Result struct {
	Outcome     Outcome
	Parser      string
	Transaction *domain.Transaction
	Err         *ParseError
}

// MarkRead reports whether the source message may be flagged as read.
func (r Result) MarkRead() bool {
	return r.Outcome == OutcomeCreated || r.Outcome == OutcomeCancelled
}

const (
	CodeBodyParseFail       = "BODY_PARSE_FAIL"
	CodeCancelTargetMissing = "CANCEL_TARGET_MISSING"
)

type ParseError struct {
	Parser  string
	Code    string
	Message string
	CardNo  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s [%s][%s]: %s", e.Parser, e.Code, e.CardNo, e.Message)
}
