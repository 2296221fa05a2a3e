package imapclient

import (
	"bytes"
	"io"
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/pkg/errors"
)

// parseRecord turns a raw RFC 5322 message into a MessageRecord. A
// message without a parseable Date header is malformed.
func parseRecord(raw []byte, loc *time.Location) (analytics.MessageRecord, error) {
	if len(raw) == 0 {
		return analytics.MessageRecord{}, errors.Wrap(analytics.ErrMalformedRecord, "empty message")
	}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return analytics.MessageRecord{}, errors.Wrap(analytics.ErrMalformedRecord, err.Error())
	}
	if mr == nil {
		return analytics.MessageRecord{}, errors.Wrap(analytics.ErrMalformedRecord, "unreadable message")
	}
	defer mr.Close()

	header := mr.Header
	date, err := header.Date()
	if err != nil || date.IsZero() {
		return analytics.MessageRecord{}, errors.Wrap(analytics.ErrMalformedRecord, "unparseable date")
	}
	if loc != nil {
		date = date.In(loc)
	}

	record := analytics.MessageRecord{
		Recipients: addressList(&header, "To"),
		Date:       date,
	}
	if from := addressList(&header, "From"); len(from) > 0 {
		record.Sender = from[0]
	}
	if header.Has("Cc") {
		record.Cc = addressList(&header, "Cc")
	}
	if header.Has("Bcc") {
		record.Bcc = addressList(&header, "Bcc")
	}
	if header.Has("Subject") {
		subject, err := header.Subject()
		if err != nil {
			subject = header.Get("Subject")
		}
		record.Subject = &subject
	}
	record.Body = plainTextBody(mr)

	return record, nil
}

// addressList returns the bare addresses of a header. An unparseable list
// yields no addresses rather than failing the record.
func addressList(header *mail.Header, key string) []string {
	list, err := header.AddressList(key)
	if err != nil {
		return []string{}
	}
	out := make([]string, 0, len(list))
	for _, addr := range list {
		if addr == nil || strings.TrimSpace(addr.Address) == "" {
			continue
		}
		out = append(out, addr.Address)
	}
	return out
}

// plainTextBody returns the last text/plain inline part, or nil. A part
// without Content-Type is plain text.
func plainTextBody(mr *mail.Reader) *string {
	var body *string
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			break
		}

		inline, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		contentType, _, _ := inline.ContentType()
		if contentType != "" && !strings.EqualFold(contentType, "text/plain") {
			continue
		}
		data, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		text := string(data)
		body = &text
	}
	return body
}
