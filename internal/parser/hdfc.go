package parser

import (
	"context"
	"regexp"

	"cctracker/internal/domain"
)

const HDFCSMSName = "HDFC Bank"

var hdfcSpend = regexp.MustCompile(`(?i)Thank you for using your HDFC bank CREDIT card ending\s+(?P<cc>[0-9X]+)\s+for\s+(?P<currency>[a-z.$]+?)\.?\s*(?P<amt>[0-9][0-9,]*(?:\.[0-9]+)?)\s+in\s+(?P<city>[a-z ]*?)\.?\s+at\s+(?P<place>.*?)\.?\s*,?\s*on\s+(?P<date>[0-9]{4}-[0-9]{2}-[0-9]{2})`)

type HDFCSMS struct {
	recorder
}

func NewHDFCSMS(opts Options) *HDFCSMS {
	return &HDFCSMS{recorder{name: HDFCSMSName, dateLayout: "2006-01-02", loc: opts.Location}}
}

func (p *HDFCSMS) Name() string { return p.name }

func (p *HDFCSMS) Senders() []string {
	return []string{"AM-HDFCBK"}
}

func (p *HDFCSMS) Parse(ctx context.Context, gw Gateway, account domain.Account, msg *domain.Message) (Result, error) {
	g := groups(hdfcSpend, msg.Body)
	if g == nil {
		return Result{Outcome: OutcomeNoMatch}, nil
	}

	return p.record(ctx, gw, account, msg, spend{
		Currency: g["currency"],
		Amount:   g["amt"],
		CardNo:   g["cc"],
		Date:     g["date"],
		Place:    g["place"],
	}, nil)
}
