package mailbox

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cctracker/internal/domain"
)

func TestParseMessage_PrefersHTML(t *testing.T) {
	header := []byte("From: \"Citi Alerts\" <CitiAlert.India@Citicorp.com>\r\n" +
		"To: Me <ME@example.com>, other@example.com\r\n" +
		"Cc: other@example.com, citialert.india@citicorp.com\r\n" +
		"Subject: =?utf-8?q?Transaction_confirmation?=\r\n" +
		"Date: Tue, 05 Jan 2021 10:15:00 +0530\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: multipart/alternative; boundary=\"b1\"\r\n\r\n")
	text := []byte("--b1\r\n" +
		"Content-Type: text/plain; charset=utf-8\r\n\r\n" +
		"plain body\r\n" +
		"--b1\r\n" +
		"Content-Type: text/html; charset=utf-8\r\n\r\n" +
		"<p>html body</p>\r\n" +
		"--b1--\r\n")

	msg, err := parseMessage(header, text)
	require.NoError(t, err)

	assert.Equal(t, domain.ChannelMail, msg.Channel)
	assert.Equal(t, "citialert.india@citicorp.com", msg.From)
	assert.Equal(t, []string{"me@example.com", "other@example.com"}, msg.To)
	assert.Equal(t, "Transaction confirmation", msg.Subject)
	assert.Contains(t, msg.Body, "<p>html body</p>")
	assert.NotContains(t, msg.Body, "plain body")

	_, offset := msg.Date.Zone()
	assert.Equal(t, 5*3600+30*60, offset)
	assert.True(t, msg.Date.Equal(time.Date(2021, 1, 5, 4, 45, 0, 0, time.UTC)))
}

func TestParseMessage_WrapsPlainText(t *testing.T) {
	header := []byte("From: bank@example.com\r\nSubject: hi\r\n")
	text := []byte("amount <100>")

	msg, err := parseMessage(header, text)
	require.NoError(t, err)

	assert.Equal(t, "<html><head></head><body><pre>amount &lt;100&gt;</pre></body></html>", msg.Body)
	assert.Empty(t, msg.To)
	assert.True(t, msg.Date.IsZero())
}
