package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"cctracker/internal/domain"
	"cctracker/internal/mailbox"
	"cctracker/internal/parser"
)

type AccountStore interface {
	ListPollable(ctx context.Context) ([]domain.Account, error)
	SetHealth(ctx context.Context, accountID int64, bad bool, lastErr string) error
}

type TransactionStore interface {
	ExistsByExternalID(ctx context.Context, accountID int64, externalID string) (bool, error)
}

type MailboxPool interface {
	Acquire(ctx context.Context, account domain.Account) (mailbox.Mailbox, error)
	Release(mb mailbox.Mailbox)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, account domain.Account, msg *domain.Message) (parser.Result, error)
}

type Notifier interface {
	NotifyOperators(ctx context.Context, subject, body string)
}

type Publisher interface {
	Publish(ctx context.Context, event *domain.TransactionEvent) error
}
