package parser

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cctracker/internal/domain"
)

var ist = time.FixedZone("IST", 5*3600+30*60)

const citiConfirmBody = `<html><body><table><tr><td>Dear Cardmember,</td></tr>
<tr><td>Rs. 1,499.00 was spent on your Credit Card 5123XXXXXXXX0042 on 05-JAN-21 at
SWIGGY &amp; CO.</td></tr>
<tr><td>Reference No: 210105-A7</td></tr><tr><td>Thank you for banking with us.</td></tr></table></body></html>`

func newCitiRegistry(gw *fakeGateway) *Registry {
	r := NewRegistry(gw, &passthroughTx{}, discardLogger())
	r.Register(NewCitiMail(Options{Location: time.UTC}))
	r.Register(NewCitiSMS(Options{Location: time.UTC}))
	return r
}

func citiMail(id, subject, body string) *domain.Message {
	return &domain.Message{
		Channel:    domain.ChannelMail,
		ExternalID: id,
		From:       "CitiAlert.India@citicorp.com",
		Subject:    subject,
		Body:       body,
		Date:       time.Date(2021, 1, 5, 20, 0, 0, 0, ist),
	}
}

func TestCitiMail_Confirmation(t *testing.T) {
	gw := newFakeGateway()
	r := newCitiRegistry(gw)
	account := domain.Account{ID: 7}

	res, err := r.Dispatch(context.Background(), account,
		citiMail("101", "Transaction confirmation on your Citibank credit card", citiConfirmBody))
	require.NoError(t, err)
	require.Equal(t, OutcomeCreated, res.Outcome)
	assert.True(t, res.MarkRead())

	tx := res.Transaction
	assert.Equal(t, int64(7), tx.AccountID)
	assert.Equal(t, "101", tx.ExternalID)
	assert.Equal(t, "RS", tx.Currency)
	assert.True(t, decimal.RequireFromString("1499").Equal(tx.Amount))
	assert.Equal(t, "5123XXXXXXXX0042", tx.CardNo)
	assert.Equal(t, "SWIGGY & CO", tx.Place.Name)
	assert.Equal(t, domain.PlaceKindUnknown, tx.Place.Kind)
	require.NotNil(t, tx.CorrelationTag)
	assert.Equal(t, "210105-A7", *tx.CorrelationTag)
	assert.Equal(t, CitiMailName, tx.CreatedBy)
	assert.True(t, tx.OccurredAt.Equal(time.Date(2021, 1, 5, 0, 0, 0, 0, ist)))
	assert.Equal(t, time.UTC, tx.OccurredAt.Location())
}

func TestCitiMail_CancellationRemovesTransaction(t *testing.T) {
	gw := newFakeGateway()
	r := newCitiRegistry(gw)
	account := domain.Account{ID: 7}
	ctx := context.Background()

	_, err := r.Dispatch(ctx, account, citiMail("101", "Transaction confirmation on your Citibank credit card", citiConfirmBody))
	require.NoError(t, err)
	require.Len(t, gw.transactions, 1)

	res, err := r.Dispatch(ctx, account, citiMail("102",
		"  Cancellation of transaction on your Citibank credit card ending 0042",
		"<p>Your transaction with Reference No: 210105-A7 has been cancelled.</p>"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeCancelled, res.Outcome)
	assert.True(t, res.MarkRead())
	assert.Empty(t, gw.transactions)
}

func TestCitiMail_CancellationWithoutTarget(t *testing.T) {
	gw := newFakeGateway()
	r := newCitiRegistry(gw)

	res, err := r.Dispatch(context.Background(), domain.Account{ID: 7}, citiMail("103",
		"Cancellation of transaction on your Citibank credit card",
		"<p>Reference No: NOPE-1</p>"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.NotNil(t, res.Err)
	assert.Equal(t, CodeCancelTargetMissing, res.Err.Code)
	assert.Equal(t, CitiMailName, res.Err.Parser)
	assert.False(t, res.MarkRead())
}

func TestCitiMail_CancellationScopedToAccount(t *testing.T) {
	gw := newFakeGateway()
	r := newCitiRegistry(gw)
	ctx := context.Background()

	_, err := r.Dispatch(ctx, domain.Account{ID: 7}, citiMail("101", "Transaction confirmation on your Citibank credit card", citiConfirmBody))
	require.NoError(t, err)

	res, err := r.Dispatch(ctx, domain.Account{ID: 8}, citiMail("9",
		"Cancellation of transaction on your Citibank credit card", "Reference No: 210105-A7"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Len(t, gw.transactions, 1)
}

func TestCitiMail_UnparsableConfirmation(t *testing.T) {
	r := newCitiRegistry(newFakeGateway())

	res, err := r.Dispatch(context.Background(), domain.Account{ID: 7},
		citiMail("104", "Transaction confirmation on your Citibank credit card", "<p>layout changed</p>"))
	require.NoError(t, err)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Equal(t, CodeBodyParseFail, res.Err.Code)
}

func TestCitiMail_UnknownSubject(t *testing.T) {
	r := newCitiRegistry(newFakeGateway())

	res, err := r.Dispatch(context.Background(), domain.Account{ID: 7},
		citiMail("105", "Your statement is ready", citiConfirmBody))
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
	assert.False(t, res.MarkRead())
}

func TestCitiSMS_NoMatch(t *testing.T) {
	r := newCitiRegistry(newFakeGateway())

	res, err := r.Dispatch(context.Background(), domain.Account{ID: 7}, &domain.Message{
		Channel:    domain.ChannelSMS,
		ExternalID: "s1",
		From:       "LM-Citibk",
		Body:       "Your OTP is 123456",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, res.Outcome)
}

func TestCitiSMS_StorageFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.createErr = errStorage
	r := newCitiRegistry(gw)

	_, err := r.Dispatch(context.Background(), domain.Account{ID: 7}, &domain.Message{
		Channel:    domain.ChannelSMS,
		ExternalID: "s1",
		From:       "LM-Citibk",
		Body:       "USD 45.00 was spent on your Credit Card 1234 on 05-JAN-21 at AMAZON.COM.",
	})
	assert.ErrorIs(t, err, errStorage)
}

func TestCitiSMS_PlaceBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantPlace string
		wantCur   string
	}{
		{
			name:      "period ends the text",
			body:      "USD 45.00 was spent on your Credit Card 1234 on 05-JAN-21 at AMAZON.COM.",
			wantPlace: "AMAZON.COM",
			wantCur:   "USD",
		},
		{
			name:      "inner period in merchant",
			body:      "Rs 500.00 was spent on your Credit Card 1234 on 5-JAN-21 at DR. REDDYS CLINIC. Avl lmt Rs 100.",
			wantPlace: "DR. REDDYS CLINIC",
			wantCur:   "RS",
		},
		{
			name:      "lower-case currency",
			body:      "usd 12.50 was spent on your Credit Card 1234 on 05-JAN-21 at ST. JOHNS CAFE. Thanks",
			wantPlace: "ST. JOHNS CAFE",
			wantCur:   "USD",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newCitiRegistry(newFakeGateway())

			res, err := r.Dispatch(context.Background(), domain.Account{ID: 7}, &domain.Message{
				Channel:    domain.ChannelSMS,
				ExternalID: "s1",
				From:       "LM-Citibk",
				Body:       tt.body,
				Date:       time.Date(2021, 1, 5, 20, 0, 0, 0, ist),
			})
			require.NoError(t, err)
			require.Equal(t, OutcomeCreated, res.Outcome)
			assert.Equal(t, tt.wantPlace, res.Transaction.Place.Name)
			assert.Equal(t, tt.wantCur, res.Transaction.Currency)
		})
	}
}

func TestHTMLSegments(t *testing.T) {
	got := htmlSegments("<p>Dear  Cardmember,</p>\n<td> A &amp; B.\n next </td><br/>")
	assert.Equal(t, []string{"Dear Cardmember,", "A & B. next"}, got)
}

func TestCanonicalPlace(t *testing.T) {
	tests := map[string]string{
		"  amazon.com. ":     "AMAZON.COM",
		"--Big Bazaar;":      "BIG BAZAAR",
		"\"Cafe Coffee Day\"": "CAFE COFFEE DAY",
		"[_shell_]":          "SHELL",
		"...":                "",
	}
	for in, want := range tests {
		assert.Equal(t, want, CanonicalPlace(in), in)
	}
}
