package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	"github.com/google/uuid"

	"cctracker/internal/breaker"
	"cctracker/internal/domain"
	"cctracker/internal/mailbox"
	"cctracker/internal/parser"
)

const (
	subjectMarkReadFailed = "Could not mark mail as read."
	subjectException      = "CCTracker Exception: "
)

// PollService runs sweeps over every pollable mailbox.
type PollService struct {
	accounts     AccountStore
	transactions TransactionStore
	pool         MailboxPool
	dispatcher   Dispatcher
	notifier     Notifier
	publisher    Publisher
	breaker      *breaker.Breaker
	logger       *slog.Logger
}

func NewPollService(
	accounts AccountStore,
	transactions TransactionStore,
	pool MailboxPool,
	dispatcher Dispatcher,
	notifier Notifier,
	publisher Publisher,
	brk *breaker.Breaker,
	logger *slog.Logger,
) *PollService {
	return &PollService{
		accounts:     accounts,
		transactions: transactions,
		pool:         pool,
		dispatcher:   dispatcher,
		notifier:     notifier,
		publisher:    publisher,
		breaker:      brk,
		logger:       logger.With("component", "poller"),
	}
}

// Sweep polls each pollable account once. An authentication failure marks
// the account bad and moves on. Any other account failure is reported to the
// operators and counted by the breaker; Sweep returns breaker.ErrTripped as
// soon as the breaker trips.
func (s *PollService) Sweep(ctx context.Context) (*domain.SweepStats, error) {
	startTime := time.Now()
	stats := &domain.SweepStats{SweepID: uuid.NewString()}
	logger := s.logger.With("sweep_id", stats.SweepID)

	accounts, err := s.accounts.ListPollable(ctx)
	if err != nil {
		return stats, fmt.Errorf("list pollable accounts: %w", err)
	}
	stats.Accounts = len(accounts)
	logger.Debug("starting sweep", "accounts", len(accounts))

	for _, account := range accounts {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		err := s.pollAccount(ctx, logger.With("account", account.Address), account, stats)
		if err == nil {
			continue
		}
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		var authErr *mailbox.AuthError
		if errors.As(err, &authErr) {
			stats.AuthFailures++
			logger.Warn("authentication failed, marking account bad", "account", account.Address, "error", err)
			if herr := s.accounts.SetHealth(ctx, account.ID, true, authErr.Error()); herr != nil {
				logger.Error("failed to mark account bad", "account", account.Address, "error", herr)
			}
			continue
		}

		stats.Errors++
		logger.Error("account poll failed", "account", account.Address, "error", err)
		s.notifier.NotifyOperators(ctx, subjectException+err.Error(),
			fmt.Sprintf("sweep: %s\naccount: %s\nerror: %v", stats.SweepID, account.Address, err))

		if s.breaker.RecordError() {
			logger.Error("too many consecutive errors, halting", "count", s.breaker.Count())
			return stats, breaker.ErrTripped
		}
	}

	stats.Duration = time.Since(startTime)

	logger.Info("sweep completed",
		"accounts", stats.Accounts,
		"listed", stats.Listed,
		"skipped", stats.Skipped,
		"created", stats.Created,
		"cancelled", stats.Cancelled,
		"parse_failures", stats.ParseFailures,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *PollService) pollAccount(ctx context.Context, logger *slog.Logger, account domain.Account, stats *domain.SweepStats) error {
	mb, err := s.pool.Acquire(ctx, account)
	if err != nil {
		return fmt.Errorf("open mailbox: %w", err)
	}
	defer s.pool.Release(mb)

	ids, err := mb.ListUnseen(ctx)
	if err != nil {
		return err
	}
	stats.Listed += len(ids)
	sortMessageIDs(ids)

	for _, id := range ids {
		if err := s.handleMessage(ctx, logger, account, mb, id, stats); err != nil {
			return fmt.Errorf("message %s: %w", id, err)
		}
	}
	return nil
}

func (s *PollService) handleMessage(
	ctx context.Context,
	logger *slog.Logger,
	account domain.Account,
	mb mailbox.Mailbox,
	id string,
	stats *domain.SweepStats,
) error {
	exists, err := s.transactions.ExistsByExternalID(ctx, account.ID, id)
	if err != nil {
		return err
	}
	if exists {
		stats.Skipped++
		return nil
	}

	msg, err := mb.Fetch(ctx, id)
	if err != nil {
		return err
	}
	stats.Fetched++

	res, err := s.dispatcher.Dispatch(ctx, account, msg)
	if err != nil {
		return err
	}
	countOutcome(stats, res)

	if res.Outcome == parser.OutcomeFailed {
		logger.Warn("parse failed",
			"id", id,
			"parser", res.Parser,
			"code", res.Err.Code,
			"card_no", res.Err.CardNo,
			"error", res.Err.Message,
		)
	}

	if !res.MarkRead() {
		return nil
	}

	s.publish(ctx, logger, account, msg, res, stats)

	ok, err := mb.MarkRead(ctx, id)
	if err != nil || !ok {
		stats.MarkReadFailures++
		logger.Error("could not mark message read", "id", id, "error", err)
		s.notifier.NotifyOperators(ctx, subjectMarkReadFailed,
			fmt.Sprintf("account: %s\nmessage id: %s\nerror: %v", account.Address, id, err))
	}
	return nil
}

func (s *PollService) publish(ctx context.Context, logger *slog.Logger, account domain.Account, msg *domain.Message, res parser.Result, stats *domain.SweepStats) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, eventFor(account, msg, res)); err != nil {
		logger.Warn("publish transaction event", "id", msg.ExternalID, "error", err)
		return
	}
	stats.Published++
}

func eventFor(account domain.Account, msg *domain.Message, res parser.Result) *domain.TransactionEvent {
	action := domain.EventCreated
	if res.Outcome == parser.OutcomeCancelled {
		action = domain.EventCancelled
	}
	return &domain.TransactionEvent{
		Action:      action,
		Parser:      res.Parser,
		AccountID:   account.ID,
		ExternalID:  msg.ExternalID,
		Transaction: res.Transaction,
	}
}

func countOutcome(stats *domain.SweepStats, res parser.Result) {
	switch res.Outcome {
	case parser.OutcomeNone:
		stats.Unparsed++
	case parser.OutcomeNoMatch:
		stats.NoMatch++
	case parser.OutcomeCreated:
		stats.Created++
	case parser.OutcomeCancelled:
		stats.Cancelled++
	case parser.OutcomeDuplicate:
		stats.Duplicates++
	case parser.OutcomeFailed:
		stats.ParseFailures++
	}
}

// sortMessageIDs orders ids numerically when all of them are numbers and
// lexicographically otherwise.
func sortMessageIDs(ids []string) {
	for _, id := range ids {
		if _, err := strconv.ParseUint(id, 10, 64); err != nil {
			slices.Sort(ids)
			return
		}
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, _ := strconv.ParseUint(a, 10, 64)
		nb, _ := strconv.ParseUint(b, 10, 64)
		return cmp.Compare(na, nb)
	})
}
