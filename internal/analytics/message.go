// Package analytics computes send-volume, domain, keyword and contact
// influence statistics over already-retrieved message records.
package analytics

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Folder names the side of the mailbox a record was retrieved from.
type Folder string

const (
	Sent     Folder = "sent"
	Received Folder = "received"
)

// ErrMalformedRecord marks a record that cannot take part in aggregation.
var ErrMalformedRecord = errors.New("malformed message record")

// MessageRecord is a parsed message as delivered by the retrieval layer.
// Cc and Bcc are nil when the header was absent. Body is nil when the
// message has no text/plain part.
type MessageRecord struct {
	Sender     string
	Recipients []string
	Cc         []string
	Bcc        []string
	Date       time.Time
	Subject    *string
	Body       *string
}

// Validate reports whether the record can be counted. The date is the
// only field every analysis depends on.
func (m MessageRecord) Validate() error {
	if m.Date.IsZero() {
		return errors.Wrap(ErrMalformedRecord, "missing date")
	}
	return nil
}

// validateReceived additionally requires a sender, which keys the contact.
func (m MessageRecord) validateReceived() error {
	if err := m.Validate(); err != nil {
		return err
	}
	if normalizeAddress(m.Sender) == "" {
		return errors.Wrap(ErrMalformedRecord, "missing sender")
	}
	return nil
}

// Addresses returns a new slice holding To, Cc and Bcc in that order.
func (m MessageRecord) Addresses() []string {
	merged := make([]string, 0, len(m.Recipients)+len(m.Cc)+len(m.Bcc))
	merged = append(merged, m.Recipients...)
	merged = append(merged, m.Cc...)
	merged = append(merged, m.Bcc...)
	return merged
}

// CountMalformed returns how many records fail Validate.
func CountMalformed(records []MessageRecord) int {
	n := 0
	for _, record := range records {
		if record.Validate() != nil {
			n++
		}
	}
	return n
}

// normalizeAddress lowercases and trims an address for use as a contact key.
func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

func containsAddress(addrs []string, target string) bool {
	if target == "" {
		return false
	}
	for _, addr := range addrs {
		if normalizeAddress(addr) == target {
			return true
		}
	}
	return false
}
