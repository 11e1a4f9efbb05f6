package mailbox

import (
	"bytes"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"cctracker/internal/domain"
)

const preWrapper = "<html><head></head><body><pre>%s</pre></body></html>"

// parseMessage assembles a message from separately fetched header and text
// sections. The body is the HTML part when present, otherwise the plain
// text part wrapped in <pre>.
func parseMessage(header, text []byte) (*domain.Message, error) {
	raw := make([]byte, 0, len(header)+len(text)+2)
	raw = append(raw, header...)
	if !bytes.HasSuffix(header, []byte("\r\n\r\n")) && !bytes.HasSuffix(header, []byte("\n\n")) {
		raw = append(raw, '\r', '\n')
	}
	raw = append(raw, text...)

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return nil, fmt.Errorf("read message: %w", err)
	}
	defer mr.Close()

	msg := &domain.Message{Channel: domain.ChannelMail}

	from, _ := mr.Header.AddressList("From")
	if len(from) > 0 {
		msg.From = normalizeAddress(from[0].Address)
	}
	msg.To = recipients(mr.Header, msg.From)

	if subject, err := mr.Header.Subject(); err == nil {
		msg.Subject = subject
	} else {
		msg.Subject = mr.Header.Get("Subject")
	}

	if date, err := mr.Header.Date(); err == nil {
		msg.Date = date
	}

	var plain, htmlBody string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if message.IsUnknownCharset(err) {
				continue
			}
			break
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(contentType, "text/html") && htmlBody == "":
			htmlBody = string(body)
		case (contentType == "" || strings.HasPrefix(contentType, "text/plain")) && plain == "":
			plain = string(body)
		}
	}

	if htmlBody != "" {
		msg.Body = htmlBody
	} else {
		msg.Body = fmt.Sprintf(preWrapper, html.EscapeString(plain))
	}

	return msg, nil
}

// recipients merges To and Cc, de-duplicated, without the sender.
func recipients(h mail.Header, sender string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, field := range []string{"To", "Cc"} {
		list, _ := h.AddressList(field)
		for _, a := range list {
			addr := normalizeAddress(a.Address)
			if addr == "" || addr == sender {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, addr)
		}
	}
	return out
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
