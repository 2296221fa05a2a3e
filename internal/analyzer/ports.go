package analyzer

//go:generate mockgen -source=ports.go -destination=mock_ports_test.go -package=analyzer

import (
	"context"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
)

// MessageSource retrieves parsed messages of one folder for [start, end).
type MessageSource interface {
	GetMessages(ctx context.Context, start, end time.Time, folder analytics.Folder) ([]analytics.MessageRecord, error)
}

// IdentityProvider returns the mailbox owner's address.
type IdentityProvider interface {
	SelfAddress(ctx context.Context) (string, error)
}
