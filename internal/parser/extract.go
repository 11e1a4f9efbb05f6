package parser

import (
	"context"
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cctracker/internal/domain"
)

const placeCutset = ".,;:'\"[]|?*\\`~-+=_"

var (
	htmlTag    = regexp.MustCompile(`(?s)<[^>]*>`)
	whitespace = regexp.MustCompile(`\s+`)
)

// CanonicalPlace trims, strips punctuation from both ends and upper-cases a merchant name.
func CanonicalPlace(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Trim(name, placeCutset)
	return strings.ToUpper(strings.TrimSpace(name))
}

// htmlSegments returns the non-empty text runs between tags, unescaped and
// with whitespace collapsed. Patterns are matched within one run.
func htmlSegments(body string) []string {
	var out []string
	for _, part := range htmlTag.Split(body, -1) {
		text := whitespace.ReplaceAllString(html.UnescapeString(part), " ")
		if text = strings.TrimSpace(text); text != "" {
			out = append(out, text)
		}
	}
	return out
}

func parseAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
}

func firstGroups(re *regexp.Regexp, segments []string) map[string]string {
	for _, s := range segments {
		if g := groups(re, s); g != nil {
			return g
		}
	}
	return nil
}

// groups returns the named submatches of re in s, or nil.
func groups(re *regexp.Regexp, s string) map[string]string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for i, name := range re.SubexpNames() {
		if name != "" {
			out[name] = m[i]
		}
	}
	return out
}

// spend is the common shape every bank notification reduces to.
type spend struct {
	Currency string
	Amount   string
	CardNo   string
	Date     string
	Place    string
}

// recorder builds and stores transactions on behalf of one parser.
type recorder struct {
	name       string
	dateLayout string
	loc        *time.Location
}

func (r recorder) fail(code, cardNo, format string, args ...any) *ParseError {
	return &ParseError{Parser: r.name, Code: code, CardNo: cardNo, Message: fmt.Sprintf(format, args...)}
}

// record persists s as a new transaction. Dates are read in the zone the
// message was sent from and stored in the normalized zone.
func (r recorder) record(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message, s spend, tag *string) (Result, error) {
	amount, err := parseAmount(s.Amount)
	if err != nil {
		return Result{}, r.fail(CodeBodyParseFail, s.CardNo, "invalid amount %q", s.Amount)
	}

	srcLoc := msg.Date.Location()
	occurred, err := time.ParseInLocation(r.dateLayout, s.Date, srcLoc)
	if err != nil {
		return Result{}, r.fail(CodeBodyParseFail, s.CardNo, "invalid date %q", s.Date)
	}
	if r.loc != nil {
		occurred = occurred.In(r.loc)
	}

	name := CanonicalPlace(s.Place)
	if name == "" {
		return Result{}, r.fail(CodeBodyParseFail, s.CardNo, "empty place name")
	}
	place, err := gw.FindOrCreatePlace(ctx, name)
	if err != nil {
		return Result{}, fmt.Errorf("find or create place %q: %w", name, err)
	}

	tx := &domain.Transaction{
		AccountID:      account.ID,
		ExternalID:     msg.ExternalID,
		FromAddress:    NormalizeSender(msg.From),
		CardNo:         s.CardNo,
		Currency:       strings.ToUpper(s.Currency),
		Amount:         amount,
		OccurredAt:     occurred,
		Place:          *place,
		CorrelationTag: tag,
		CreatedBy:      r.name,
	}
	if err := gw.CreateTransaction(ctx, tx); err != nil {
		return Result{}, err
	}

	return Result{Outcome: OutcomeCreated, Transaction: tx}, nil
}
