// Package mailbox talks to remote message stores over IMAP.
package mailbox

//go:generate mockgen -source=mailbox.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"cctracker/internal/domain"
)

// Mailbox is one account's remote message store.
type Mailbox interface {
	Connect(ctx context.Context) error
	ListUnseen(ctx context.Context) ([]string, error)
	Fetch(ctx context.Context, id string) (*domain.Message, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	Disconnect()
}

// AuthError reports rejected credentials. It is never retried.
type AuthError struct {
	Account string
	Err     error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Account, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
