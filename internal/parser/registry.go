package parser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"cctracker/internal/domain"
)

var multiSpace = regexp.MustCompile(`\s{2,}`)

// Registry maps normalized sender identities to parsers.
type Registry struct {
	parsers map[string]Parser
	byName  map[string]Parser
	gw      Gateway
	tx      TransactionManager
	logger  *slog.Logger
}

func NewRegistry(gw Gateway, tx TransactionManager, logger *slog.Logger) *Registry {
	return &Registry{
		parsers: make(map[string]Parser),
		byName:  make(map[string]Parser),
		gw:      gw,
		tx:      tx,
		logger:  logger.With("component", "parser_registry"),
	}
}

// Register adds p under each of its senders. A later parser claiming the same
// sender replaces the earlier one.
func (r *Registry) Register(p Parser) {
	r.byName[p.Name()] = p
	for _, sender := range p.Senders() {
		key := NormalizeSender(sender)
		if prev, ok := r.parsers[key]; ok && prev.Name() != p.Name() {
			r.logger.Warn("sender re-registered", "sender", key, "previous", prev.Name(), "parser", p.Name())
		}
		r.parsers[key] = p
	}
}

// Dispatch runs the parser tracking msg.From. A sender nobody tracks yields
// OutcomeNone. Parse errors are returned as OutcomeFailed results; only
// storage and other unexpected failures come back as errors.
func (r *Registry) Dispatch(ctx context.Context, account domain.Account, msg *domain.Message) (Result, error) {
	p, ok := r.parsers[NormalizeSender(msg.From)]
	if !ok {
		r.logger.Debug("no parser for sender", "sender", msg.From)
		return Result{Outcome: OutcomeNone}, nil
	}

	m := *msg
	if m.Channel == domain.ChannelSMS {
		m.Body = NormalizeSMS(m.Body)
	}

	var res Result
	err := r.withTransaction(ctx, func(txCtx context.Context) error {
		var err error
		res, err = p.Parse(txCtx, r.gw, account, &m)
		return err
	})

	var parseErr *ParseError
	switch {
	case err == nil:
		res.Parser = p.Name()
		return res, nil
	case errors.As(err, &parseErr):
		return Result{Outcome: OutcomeFailed, Parser: p.Name(), Err: parseErr}, nil
	case errors.Is(err, domain.ErrDuplicateTransaction):
		return Result{Outcome: OutcomeDuplicate, Parser: p.Name()}, nil
	default:
		return Result{Parser: p.Name()}, fmt.Errorf("parse with %s: %w", p.Name(), err)
	}
}

func (r *Registry) withTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.tx == nil {
		return fn(ctx)
	}
	return r.tx.WithTransaction(ctx, fn)
}

// Senders lists every tracked sender identity, sorted.
func (r *Registry) Senders() []string {
	out := make([]string, 0, len(r.parsers))
	for sender := range r.parsers {
		out = append(out, sender)
	}
	sort.Strings(out)
	return out
}

func (r *Registry) ParserNames() []string {
	out := make([]string, 0, len(r.byName))
	for name := range r.byName {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// SendersFor lists the senders tracked by the named parsers. Unknown names are skipped.
func (r *Registry) SendersFor(names ...string) []string {
	var out []string
	for _, name := range names {
		p, ok := r.byName[name]
		if !ok {
			continue
		}
		for _, sender := range p.Senders() {
			out = append(out, NormalizeSender(sender))
		}
	}
	return out
}

func NormalizeSender(sender string) string {
	return strings.ToLower(strings.TrimSpace(sender))
}

// NormalizeSMS trims, drops carriage returns and collapses whitespace runs.
func NormalizeSMS(body string) string {
	body = strings.TrimSpace(body)
	body = strings.ReplaceAll(body, "\r", "")
	return multiSpace.ReplaceAllString(body, " ")
}
