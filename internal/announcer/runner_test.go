package announcer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoPostsAnnouncement(t *testing.T) {
	var got map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, webhookAnnouncePath, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(server.Close)

	err := New(WithWebhookURL(server.URL+"/")).Do(context.Background(), Announcement{
		Kind:     "domains",
		Period:   "2024-03",
		Entries:  4,
		Location: "s3://bucket/reports/domains.csv",
	})
	require.NoError(t, err)
	assert.Equal(t, "mailpulse: domains report for 2024-03 produced 4 entries (s3://bucket/reports/domains.csv)", got["message"])
}

func TestDoWithoutWebhook(t *testing.T) {
	assert.NoError(t, New().Do(context.Background(), Announcement{Kind: "volume"}))
}

func TestDoRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	err := New(WithWebhookURL(server.URL), WithHTTPClient(server.Client())).Do(context.Background(), Announcement{Kind: "volume"})
	assert.EqualError(t, err, "reporting webhook returned status 502 Bad Gateway")
}
