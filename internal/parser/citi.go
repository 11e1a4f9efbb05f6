package parser

import (
	"context"
	"regexp"
	"strings"

	"cctracker/internal/domain"
)

const (
	CitiMailName = "CitiIndia"
	CitiSMSName  = "Citi Bank"

	citiDateLayout = "2-Jan-06"
)

const citiSpendHead = `(?P<currency>[a-z.$]+?)\.?\s*(?P<amt>[0-9][0-9,]*(?:\.[0-9]+)?)\s+was spent on your Credit Card\s+(?P<cc>[0-9X]+)\s+on\s+(?P<date>[0-9]{1,2}-[A-Z]{3}-[0-9]{2})\s+at\s+`

var (
	// The place runs to the last period followed by whitespace, or to a
	// period ending the text when no such period exists.
	citiSpend     = regexp.MustCompile(`(?i)` + citiSpendHead + `(?P<place>.+)\.\s`)
	citiSpendTail = regexp.MustCompile(`(?i)` + citiSpendHead + `(?P<place>.+?)\.$`)
	citiRef       = regexp.MustCompile(`(?i)Reference\s*No:\s*(?P<refid>[0-9A-Za-z-]+)`)

	citiConfirmSubject = regexp.MustCompile(`^\s*transaction confirmation on your citibank credit card`)
	citiCancelSubject  = regexp.MustCompile(`^\s*cancellation of transaction on your citibank credit card`)
)

func citiSpendFrom(text string) (spend, bool) {
	g := groups(citiSpend, text)
	if g == nil {
		g = groups(citiSpendTail, text)
	}
	if g == nil {
		return spend{}, false
	}
	return spend{
		Currency: g["currency"],
		Amount:   g["amt"],
		CardNo:   g["cc"],
		Date:     g["date"],
		Place:    g["place"],
	}, true
}

// CitiMail handles Citibank India card alert mails: spend confirmations and
// their cancellations, linked by the mail's reference number.
type CitiMail struct {
	recorder
}

func NewCitiMail(opts Options) *CitiMail {
	return &CitiMail{recorder{name: CitiMailName, dateLayout: citiDateLayout, loc: opts.Location}}
}

func (p *CitiMail) Name() string { return p.name }

func (p *CitiMail) Senders() []string {
	return []string{"CitiAlert.India@citicorp.com"}
}

func (p *CitiMail) Parse(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error) {
	subject := strings.ToLower(msg.Subject)

	switch {
	case citiConfirmSubject.MatchString(subject):
		return p.confirm(ctx, gw, account, msg)
	case citiCancelSubject.MatchString(subject):
		return p.cancel(ctx, gw, account, msg)
	default:
		return Result{Outcome: OutcomeNoMatch}, nil
	}
}

func (p *CitiMail) confirm(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error) {
	segments := htmlSegments(msg.Body)

	var s spend
	var ok bool
	for _, text := range segments {
		if s, ok = citiSpendFrom(text); ok {
			break
		}
	}
	if !ok {
		return Result{}, p.fail(CodeBodyParseFail, "", "could not parse transaction confirmation mail body")
	}

	var tag *string
	if g := firstGroups(citiRef, segments); g != nil {
		ref := g["refid"]
		tag = &ref
	}

	return p.record(ctx, gw, account, msg, s, tag)
}

func (p *CitiMail) cancel(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error) {
	g := firstGroups(citiRef, htmlSegments(msg.Body))
	if g == nil {
		return Result{}, p.fail(CodeBodyParseFail, "", "could not parse cancel transaction mail body")
	}
	ref := g["refid"]

	deleted, err := gw.DeleteByCorrelationTag(ctx, account.ID, ref, p.name)
	if err != nil {
		return Result{}, err
	}
	if !deleted {
		return Result{}, p.fail(CodeCancelTargetMissing, "", "cannot cancel transaction with reference id %s: no such record", ref)
	}

	return Result{Outcome: OutcomeCancelled}, nil
}

// CitiSMS handles Citibank India card spend SMS alerts.
type CitiSMS struct {
	recorder
}

func NewCitiSMS(opts Options) *CitiSMS {
	return &CitiSMS{recorder{name: CitiSMSName, dateLayout: citiDateLayout, loc: opts.Location}}
}

func (p *CitiSMS) Name() string { return p.name }

func (p *CitiSMS) Senders() []string {
	return []string{"LM-Citibk"}
}

func (p *CitiSMS) Parse(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error) {
	s, ok := citiSpendFrom(msg.Body)
	if !ok {
		return Result{Outcome: OutcomeNoMatch}, nil
	}
	return p.record(ctx, gw, account, msg, s, nil)
}

var _ Parser = (*CitiMail)(nil)
var _ Parser = (*CitiSMS)(nil)
