package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/analyzer"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type staticSource struct {
	sent     []analytics.MessageRecord
	received []analytics.MessageRecord
	err      error
}

func (s staticSource) GetMessages(_ context.Context, start, end time.Time, folder analytics.Folder) ([]analytics.MessageRecord, error) {
	if s.err != nil {
		return nil, s.err
	}
	records := s.sent
	if folder == analytics.Received {
		records = s.received
	}
	out := []analytics.MessageRecord{}
	for _, r := range records {
		if !r.Date.Before(start) && r.Date.Before(end) {
			out = append(out, r)
		}
	}
	return out, nil
}

type staticIdentity string

func (s staticIdentity) SelfAddress(context.Context) (string, error) {
	return string(s), nil
}

func ptr(s string) *string {
	return &s
}

func newTestServer(t *testing.T, source staticSource) *Server {
	t.Helper()
	a, err := analyzer.New(source,
		analyzer.WithIdentity(staticIdentity("me@example.com")),
		analyzer.WithLocation(time.UTC),
		analyzer.WithClock(func() time.Time { return now }),
	)
	require.NoError(t, err)
	s, err := New(a, WithClock(func() time.Time { return now }), WithTop(10))
	require.NoError(t, err)
	return s
}

func sampleSource() staticSource {
	return staticSource{
		sent: []analytics.MessageRecord{
			{
				Sender:     "me@example.com",
				Recipients: []string{"alice@example.com", "bob@example.org"},
				Date:       time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC),
				Subject:    ptr("Budget review"),
				Body:       ptr("budget numbers"),
			},
			{
				Sender:     "me@example.com",
				Recipients: []string{"alice@example.com"},
				Date:       time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC),
				Subject:    ptr("Budget"),
			},
		},
		received: []analytics.MessageRecord{
			{
				Sender:     "alice@example.com",
				Recipients: []string{"me@example.com"},
				Date:       time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC),
			},
		},
	}
}

func getJSON(t *testing.T, s *Server, target string, out any) int {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

type countsBody struct {
	Kind   string                `json:"kind"`
	Total  int                   `json:"total"`
	Series analytics.Series[int] `json:"series"`
}

func TestVolumeDaily(t *testing.T) {
	s := newTestServer(t, sampleSource())

	var body countsBody
	status := getJSON(t, s, "/api/volume?granularity=daily&date=2024-03", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "volume", body.Kind)
	assert.Len(t, body.Series, 31)
	assert.Equal(t, 2, body.Total)
	value, ok := body.Series.Get("2024-03-04")
	assert.True(t, ok)
	assert.Equal(t, 1, value)
}

func TestVolumeRejectsGranularity(t *testing.T) {
	s := newTestServer(t, sampleSource())

	var body map[string]string
	status := getJSON(t, s, "/api/volume?granularity=weekly", &body)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "weekly")
}

func TestDomainsTop(t *testing.T) {
	s := newTestServer(t, sampleSource())

	var body countsBody
	status := getJSON(t, s, "/api/domains?from=2024-03-01&to=2024-03-31&top=1", &body)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, analytics.Series[int]{{Label: "example.com", Value: 2}}, body.Series)
	assert.Equal(t, 3, body.Total)
}

func TestKeywords(t *testing.T) {
	s := newTestServer(t, sampleSource())

	var body countsBody
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/keywords", &body))
	value, _ := body.Series.Get("budget")
	assert.Equal(t, 3, value)
}

func TestContacts(t *testing.T) {
	s := newTestServer(t, sampleSource())

	var body struct {
		Series analytics.Series[float64] `json:"series"`
	}
	require.Equal(t, http.StatusOK, getJSON(t, s, "/api/contacts?from=2024-03-01", &body))
	require.NotEmpty(t, body.Series)
	assert.Equal(t, "alice@example.com", body.Series[0].Label)
}

func TestBadRange(t *testing.T) {
	s := newTestServer(t, sampleSource())
	assert.Equal(t, http.StatusBadRequest, getJSON(t, s, "/api/domains?to=2024-03-01", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, s, "/api/domains?top=-3", nil))
}

func TestRetrievalFailureIsBadGateway(t *testing.T) {
	s := newTestServer(t, staticSource{err: errors.New("connection reset")})

	var body map[string]string
	status := getJSON(t, s, "/api/domains", &body)
	assert.Equal(t, http.StatusBadGateway, status)
	assert.Contains(t, body["error"], "connection reset")
}

func TestOverviewRendersHTML(t *testing.T) {
	s := newTestServer(t, sampleSource())

	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, "/?from=2024-03-01&to=2024-03-31", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	page, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	html := string(page)
	assert.Contains(t, html, "mailpulse 2024-03-01..2024-03-31")
	assert.Contains(t, html, "example.org")
	assert.Contains(t, html, "alice@example.com")
	assert.Contains(t, html, "budget")
}

func TestNotFound(t *testing.T) {
	s := newTestServer(t, sampleSource())
	assert.Equal(t, http.StatusNotFound, getJSON(t, s, "/api/unknown", nil))
}

func TestNewRequiresAnalyses(t *testing.T) {
	_, err := New(nil)
	assert.EqualError(t, err, "requires analyses")
}
