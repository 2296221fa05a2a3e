package imapclient

import (
	"context"
	"crypto/tls"
	"log/slog"
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/pkg/errors"
)

const (
	defaultSentFolder     = "Sent"
	defaultReceivedFolder = "INBOX"
)

// Client encapsulates an IMAP connection used to retrieve message records.
type Client struct {
	Addr           string
	Username       string
	Password       string
	TLSConfig      *tls.Config
	SentFolder     string
	ReceivedFolder string
	// Self overrides the address returned by SelfAddress.
	Self     string
	Location *time.Location
	Logger   *slog.Logger

	client *imapclient.Client
}

// Connect establishes the IMAP connection and logs in.
func (c *Client) Connect() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("IMAP address is required")
	}
	if strings.TrimSpace(c.Username) == "" || strings.TrimSpace(c.Password) == "" {
		return errors.New("IMAP credentials are required")
	}
	if strings.TrimSpace(c.SentFolder) == "" {
		c.SentFolder = defaultSentFolder
	}
	if strings.TrimSpace(c.ReceivedFolder) == "" {
		c.ReceivedFolder = defaultReceivedFolder
	}
	if c.Location == nil {
		c.Location = time.Local
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	var options *imapclient.Options
	if c.TLSConfig != nil {
		options = &imapclient.Options{TLSConfig: c.TLSConfig}
	}

	client, err := imapclient.DialTLS(c.Addr, options)
	if err != nil {
		return errors.Wrapf(err, "dial %s", c.Addr)
	}

	if err := client.Login(c.Username, c.Password).Wait(); err != nil {
		_ = client.Logout().Wait()
		return errors.Wrap(err, "login")
	}

	c.client = client
	return nil
}

// Close logs out and clears the connection.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	err := c.client.Logout().Wait()
	c.client = nil
	return err
}

// ListMailboxes returns the names of all mailboxes on the server.
func (c *Client) ListMailboxes(ctx context.Context) ([]string, error) {
	if c.client == nil {
		return nil, errors.New("IMAP client is not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.client.List("", "*", nil).Collect()
	if err != nil {
		return nil, errors.Wrap(err, "list mailboxes")
	}
	names := make([]string, 0, len(data))
	for _, item := range data {
		names = append(names, item.Mailbox)
	}
	return names, nil
}

// FolderName maps a folder kind to the configured mailbox name.
func (c *Client) FolderName(folder analytics.Folder) (string, error) {
	switch folder {
	case analytics.Sent:
		return c.SentFolder, nil
	case analytics.Received:
		return c.ReceivedFolder, nil
	}
	return "", errors.Errorf("unknown folder %q", folder)
}

// GetMessages selects the folder read-only, searches messages dated in
// [start, end) and returns them parsed. Messages that cannot be parsed
// are skipped.
func (c *Client) GetMessages(ctx context.Context, start, end time.Time, folder analytics.Folder) ([]analytics.MessageRecord, error) {
	if c.client == nil {
		return nil, errors.New("IMAP client is not connected")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mailbox, err := c.FolderName(folder)
	if err != nil {
		return nil, err
	}
	if _, err := c.client.Select(mailbox, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		return nil, errors.Wrapf(err, "select %s", mailbox)
	}
	defer c.unselect(mailbox)

	uids, err := c.searchPeriod(ctx, start, end)
	if err != nil {
		return nil, errors.Wrapf(err, "search %s", mailbox)
	}
	records, err := c.fetchRecords(ctx, uids)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", mailbox)
	}
	return records, nil
}

// SelfAddress returns the configured self address or the login user.
func (c *Client) SelfAddress(context.Context) (string, error) {
	self := strings.TrimSpace(c.Self)
	if self == "" {
		self = strings.TrimSpace(c.Username)
	}
	if !strings.Contains(self, "@") {
		return "", errors.Errorf("login %q is not an email address", self)
	}
	return self, nil
}

func (c *Client) searchPeriod(ctx context.Context, start, end time.Time) ([]imap.UID, error) {
	criteria := buildPeriodCriteria(start, end)
	data, err := c.client.UIDSearch(criteria, nil).Wait()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return data.AllUIDs(), nil
}

// buildPeriodCriteria converts [start, end) to SINCE/BEFORE, which IMAP
// compares by date only. An end inside a day keeps that day.
func buildPeriodCriteria(start, end time.Time) *imap.SearchCriteria {
	since := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	before := time.Date(end.Year(), end.Month(), end.Day(), 0, 0, 0, 0, end.Location())
	if before.Before(end) {
		before = before.AddDate(0, 0, 1)
	}
	return &imap.SearchCriteria{
		Since:   since,
		Before:  before,
		NotFlag: []imap.Flag{imap.FlagDeleted},
	}
}

func (c *Client) fetchRecords(ctx context.Context, uids []imap.UID) ([]analytics.MessageRecord, error) {
	records := []analytics.MessageRecord{}
	if len(uids) == 0 {
		return records, nil
	}

	uidSet := imap.UIDSetNum(uids...)
	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchOptions := &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{bodySection},
	}

	fetchCmd := c.client.Fetch(uidSet, fetchOptions)
	skipped := 0
	for {
		if err := ctx.Err(); err != nil {
			_ = fetchCmd.Close()
			return nil, err
		}

		msg := fetchCmd.Next()
		if msg == nil {
			break
		}
		buf, err := msg.Collect()
		if err != nil {
			_ = fetchCmd.Close()
			return nil, err
		}

		record, err := parseRecord(buf.FindBodySection(bodySection), c.Location)
		if err != nil {
			skipped++
			c.Logger.DebugContext(ctx, "Skipping unparseable message",
				slog.Any("uid", buf.UID),
				slog.String("error", err.Error()),
			)
			continue
		}
		records = append(records, record)
	}

	if err := fetchCmd.Close(); err != nil {
		return nil, err
	}
	if skipped > 0 {
		c.Logger.WarnContext(ctx, "Skipped malformed messages", slog.Int("count", skipped))
	}
	return records, nil
}

func (c *Client) unselect(mailbox string) {
	if c.client == nil || !c.client.Caps().Has(imap.CapUnselect) {
		return
	}
	if err := c.client.Unselect().Wait(); err != nil {
		c.Logger.Warn("Failed to unselect mailbox",
			slog.String("mailbox", mailbox),
			slog.String("error", err.Error()),
		)
	}
}
