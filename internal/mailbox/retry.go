package mailbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-imap/v2"
)

type Class int

const (
	// Fatal errors are returned to the caller untouched.
	Fatal Class = iota
	// Transient errors mean the session is gone: wait, reconnect, retry.
	Transient
	// Locked errors mean the mailbox is temporarily unwritable: wait, retry.
	Locked
)

var ErrNotConnected = errors.New("mailbox not connected")

const (
	codeReadOnly = imap.ResponseCode("READ-ONLY")
	codeInUse    = imap.ResponseCode("INUSE")
)

// Policy drives Do. Attempts is the number of retries after the first call.
type Policy struct {
	Attempts  int
	Delay     time.Duration
	Classify  func(error) Class
	Reconnect func(ctx context.Context) error
	Sleep     func(ctx context.Context, d time.Duration) error
}

// Do runs op until it succeeds, fails with a Fatal error, or has been retried
// p.Attempts times. Reconnect is called without retry; its failure ends Do.
func Do[T any](ctx context.Context, p Policy, op func() (T, error)) (T, error) {
	var zero T

	classify := p.Classify
	if classify == nil {
		classify = Classify
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 1; ; attempt++ {
		v, err := op()
		if err == nil {
			return v, nil
		}

		class := classify(err)
		if class == Fatal {
			return zero, err
		}
		if attempt > p.Attempts {
			return zero, fmt.Errorf("after %d attempts: %w", attempt, err)
		}

		if serr := sleep(ctx, p.Delay); serr != nil {
			return zero, serr
		}

		if class == Transient && p.Reconnect != nil {
			if rerr := p.Reconnect(ctx); rerr != nil {
				return zero, fmt.Errorf("reconnect after %q: %w", err.Error(), rerr)
			}
		}
	}
}

// Classify maps IMAP and network failures onto retry classes.
func Classify(err error) Class {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Fatal
	}

	var authErr *AuthError
	if errors.As(err, &authErr) {
		return Fatal
	}

	var imapErr *imap.Error
	if errors.As(err, &imapErr) {
		switch {
		case imapErr.Type == imap.StatusResponseTypeBye:
			return Transient
		case imapErr.Code == codeReadOnly, imapErr.Code == codeInUse:
			return Locked
		default:
			return Fatal
		}
	}

	if errors.Is(err, ErrNotConnected) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) {
		return Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}

	return Fatal
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
