package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"cctracker/internal/domain"
	"cctracker/internal/parser"
)

var ErrNotSMSAccount = errors.New("account does not accept SMS")

// SMSService ingests SMS alerts forwarded by a user's phone.
type SMSService struct {
	transactions TransactionStore
	dispatcher   Dispatcher
	publisher    Publisher
	logger       *slog.Logger
}

func NewSMSService(transactions TransactionStore, dispatcher Dispatcher, publisher Publisher, logger *slog.Logger) *SMSService {
	return &SMSService{
		transactions: transactions,
		dispatcher:   dispatcher,
		publisher:    publisher,
		logger:       logger.With("component", "sms"),
	}
}

// Ingest parses one SMS. An smsID already stored for the account returns
// domain.ErrAlreadyIngested without parsing.
func (s *SMSService) Ingest(ctx context.Context, account domain.Account, sender, body string, at time.Time, smsID string) (parser.Result, error) {
	if !account.SMSOnly {
		return parser.Result{}, ErrNotSMSAccount
	}

	exists, err := s.transactions.ExistsByExternalID(ctx, account.ID, smsID)
	if err != nil {
		return parser.Result{}, fmt.Errorf("check sms %s: %w", smsID, err)
	}
	if exists {
		return parser.Result{}, domain.ErrAlreadyIngested
	}

	msg := &domain.Message{
		Channel:    domain.ChannelSMS,
		ExternalID: smsID,
		From:       sender,
		Body:       body,
		Date:       at,
	}

	res, err := s.dispatcher.Dispatch(ctx, account, msg)
	if err != nil {
		return res, err
	}

	logger := s.logger.With("account", account.Address, "sms_id", smsID)
	switch res.Outcome {
	case parser.OutcomeDuplicate:
		return res, domain.ErrAlreadyIngested
	case parser.OutcomeFailed:
		logger.Warn("sms parse failed", "parser", res.Parser, "code", res.Err.Code, "error", res.Err.Message)
	case parser.OutcomeCreated:
		logger.Info("sms transaction recorded", "parser", res.Parser)
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, eventFor(account, msg, res)); err != nil {
				logger.Warn("publish transaction event", "error", err)
			}
		}
	default:
		logger.Debug("sms not recognized", "outcome", res.Outcome.String())
	}

	return res, nil
}
