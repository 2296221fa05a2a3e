package imapclient

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/testutil"
	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var periodStart = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func TestGetMessagesSentFolderLocalServer(t *testing.T) {
	client := setupTestServer(t, []testutil.Message{
		{
			Mailbox: "Sent",
			From:    "Me <user@example.com>",
			To:      "Alice <alice@example.com>, bob@example.org",
			Cc:      "carol@example.net",
			Subject: "Quarterly numbers",
			Body:    "See attached numbers.",
			Time:    periodStart.Add(36 * time.Hour),
		},
		{
			Mailbox: "Sent",
			From:    "user@example.com",
			To:      "dave@example.com",
			Subject: "=?utf-8?q?Caf=C3=A9?=",
			Body:    "Coffee?",
			Time:    periodStart.Add(72 * time.Hour),
		},
		{
			Mailbox: "Sent",
			From:    "user@example.com",
			To:      "late@example.com",
			Subject: "Outside",
			Body:    "Not in period",
			Time:    periodStart.AddDate(0, 1, 2),
		},
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	records, err := client.GetMessages(ctx, periodStart, periodStart.AddDate(0, 1, 0), analytics.Sent)
	require.NoError(t, err)
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "user@example.com", first.Sender)
	assert.Equal(t, []string{"alice@example.com", "bob@example.org"}, first.Recipients)
	assert.Equal(t, []string{"carol@example.net"}, first.Cc)
	assert.Nil(t, first.Bcc, "absent header stays nil")
	require.NotNil(t, first.Subject)
	assert.Equal(t, "Quarterly numbers", *first.Subject)
	require.NotNil(t, first.Body)
	assert.Equal(t, "See attached numbers.", strings.TrimSpace(*first.Body))
	assert.True(t, periodStart.Add(36*time.Hour).Equal(first.Date), "date %s", first.Date)
	assert.Equal(t, time.UTC, first.Date.Location())

	second := records[1]
	assert.Nil(t, second.Cc)
	require.NotNil(t, second.Subject)
	assert.Equal(t, "Café", *second.Subject)
}

func TestGetMessagesReceivedFolderLocalServer(t *testing.T) {
	client := setupTestServer(t, []testutil.Message{
		{
			Mailbox: "INBOX",
			From:    "News <news@example.com>",
			To:      "list@example.com",
			Subject: "Digest",
			Body:    "Weekly digest",
			Time:    periodStart.Add(2 * time.Hour),
		},
	})

	records, err := client.GetMessages(context.Background(), periodStart, periodStart.AddDate(0, 0, 1), analytics.Received)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "news@example.com", records[0].Sender)
	assert.Equal(t, []string{"list@example.com"}, records[0].Recipients)
}

func TestGetMessagesSkipsMalformedDate(t *testing.T) {
	client := setupTestServer(t, []testutil.Message{
		{
			Mailbox: "Sent",
			From:    "user@example.com",
			To:      "alice@example.com",
			Subject: "Good",
			Body:    "ok",
			Time:    periodStart.Add(time.Hour),
		},
		{
			Mailbox:   "Sent",
			From:      "user@example.com",
			To:        "alice@example.com",
			Subject:   "Bad",
			Body:      "broken date",
			Time:      periodStart.Add(2 * time.Hour),
			RawHeader: "Date: not a date\r\n",
		},
	})

	records, err := client.GetMessages(context.Background(), periodStart, periodStart.AddDate(0, 0, 1), analytics.Sent)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Good", *records[0].Subject)
}

func TestGetMessagesEmptyPeriod(t *testing.T) {
	client := setupTestServer(t, nil)

	records, err := client.GetMessages(context.Background(), periodStart, periodStart.AddDate(0, 0, 1), analytics.Sent)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}

func TestGetMessagesMissingFolder(t *testing.T) {
	client := setupTestServer(t, nil)
	client.SentFolder = "Does Not Exist"

	_, err := client.GetMessages(context.Background(), periodStart, periodStart.AddDate(0, 0, 1), analytics.Sent)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "select Does Not Exist")
}

func TestGetMessagesRequiresConnection(t *testing.T) {
	client := &Client{}
	_, err := client.GetMessages(context.Background(), periodStart, periodStart.AddDate(0, 0, 1), analytics.Sent)
	assert.EqualError(t, err, "IMAP client is not connected")
}

func TestGetMessagesHonoursCancelledContext(t *testing.T) {
	client := setupTestServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.GetMessages(ctx, periodStart, periodStart.AddDate(0, 0, 1), analytics.Sent)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListMailboxesLocalServer(t *testing.T) {
	client := setupTestServer(t, nil)

	names, err := client.ListMailboxes(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"INBOX", "Sent"}, names)
}

func TestSelfAddress(t *testing.T) {
	cases := []struct {
		name    string
		client  Client
		want    string
		wantErr bool
	}{
		{name: "login user", client: Client{Username: " user@example.com\n"}, want: "user@example.com"},
		{name: "override", client: Client{Username: "user", Self: "me@example.com"}, want: "me@example.com"},
		{name: "not an address", client: Client{Username: "user"}, wantErr: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.client.SelfAddress(context.Background())
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestBuildPeriodCriteria(t *testing.T) {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	criteria := buildPeriodCriteria(start, start.AddDate(0, 0, 1))
	assert.Equal(t, start, criteria.Since)
	assert.Equal(t, start.AddDate(0, 0, 1), criteria.Before)
	assert.Equal(t, []imap.Flag{imap.FlagDeleted}, criteria.NotFlag)

	criteria = buildPeriodCriteria(start.Add(5*time.Hour), start.Add(7*time.Hour))
	assert.Equal(t, start, criteria.Since)
	assert.Equal(t, start.AddDate(0, 0, 1), criteria.Before, "partial end day is included")
}

func TestConnectValidation(t *testing.T) {
	assert.EqualError(t, (&Client{}).Connect(), "IMAP address is required")
	assert.EqualError(t, (&Client{Addr: "localhost:993"}).Connect(), "IMAP credentials are required")
}

func setupTestServer(t *testing.T, messages []testutil.Message) *Client {
	t.Helper()

	server := testutil.StartIMAPServer(t, messages)
	client := &Client{
		Addr:      server.Addr,
		Username:  testutil.Username,
		Password:  testutil.Password,
		TLSConfig: server.ClientTLS,
		Location:  time.UTC,
	}
	if err := client.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
