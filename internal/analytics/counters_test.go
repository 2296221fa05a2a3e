package analytics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func text(s string) *string { return &s }

func TestCountByTime(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(3 * time.Hour)
	records := []MessageRecord{
		{Sender: "me@x.com", Date: start.Add(10 * time.Minute)},
		{Sender: "me@x.com", Date: start.Add(50 * time.Minute)},
		{Sender: "me@x.com", Date: start.Add(2*time.Hour + 59*time.Minute)},
		{Sender: "me@x.com", Date: end},
		{Sender: "me@x.com", Date: start.Add(-time.Minute)},
		{Sender: "me@x.com"},
	}

	counts := CountByTime(records, start, end, Hourly)
	assert.Equal(t, Series[int]{
		{Label: "2024-01-01 00:00", Value: 2},
		{Label: "2024-01-01 01:00", Value: 0},
		{Label: "2024-01-01 02:00", Value: 1},
	}, counts)
}

func TestCountByTimeUsesGridLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 0, 1)
	records := []MessageRecord{
		// 23:30 UTC on April 30 is 01:30 on May 1 in the grid's zone.
		{Sender: "me@x.com", Date: time.Date(2024, 4, 30, 23, 30, 0, 0, time.UTC)},
	}

	counts := CountByTime(records, start, end, Hourly)
	value, ok := counts.Get("2024-05-01 01:00")
	require.True(t, ok)
	assert.Equal(t, 1, value)
	assert.Equal(t, 1, counts.Total())
}

func TestCountDomainsScenarioB(t *testing.T) {
	date := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	records := []MessageRecord{
		{Sender: "me@z.com", Recipients: []string{"a@x.com", "b@y.com"}, Date: date},
		{Sender: "me@z.com", Recipients: []string{"c@x.com"}, Cc: []string{"d@x.com"}, Date: date},
	}

	counts := CountDomains(records)
	assert.Equal(t, Series[int]{
		{Label: "x.com", Value: 3},
		{Label: "y.com", Value: 1},
	}, counts)
	assert.Len(t, records[1].Recipients, 1, "input must not be mutated")
}

func TestCountDomainsSumsAddressOccurrences(t *testing.T) {
	date := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	records := []MessageRecord{
		{Recipients: []string{"a@b.org", "A@B.ORG"}, Bcc: []string{"x@c.net"}, Date: date},
		{Recipients: []string{"not-an-address"}, Cc: []string{}, Date: date},
		{Recipients: []string{"q@c.net"}, Date: date},
	}

	counts := CountDomains(records)
	assert.Equal(t, Series[int]{
		{Label: "b.org", Value: 2},
		{Label: "c.net", Value: 2},
	}, counts, "ties keep encounter order")
	assert.Equal(t, 4, counts.Total())
}

func TestCountKeywordsScenarioC(t *testing.T) {
	records := []MessageRecord{{
		Sender:  "me@x.com",
		Date:    time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		Subject: text("Hello world"),
		Body:    text("Visit http://example.com/page now."),
	}}

	counts := CountKeywords(records)
	assert.ElementsMatch(t, []string{"hello", "world", "visit", "now"}, counts.Labels())
	for _, entry := range counts {
		assert.Equal(t, 1, entry.Value, entry.Label)
	}
}

func TestCountKeywordsTextSelection(t *testing.T) {
	date := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	records := []MessageRecord{
		{Date: date, Subject: text("report")},
		{Date: date, Body: text("Report <b>ready</b> ... ``quoted''")},
		{Date: date},
	}

	counts := CountKeywords(records)
	assert.Equal(t, Series[int]{
		{Label: "report", Value: 2},
		{Label: "ready", Value: 1},
		{Label: "quoted", Value: 1},
	}, counts)
}

func TestTokenize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want []string
	}{
		{name: "empty", in: "", want: nil},
		{name: "punctuation only", in: "!!! ... ?", want: nil},
		{name: "https link with path", in: "see https://go.dev/doc/effective_go please", want: []string{"see", "please"}},
		{name: "tags", in: "<p>Hi</p> there", want: []string{"hi", "there"}},
		{name: "apostrophes", in: "Don't stop", want: []string{"don't", "stop"}},
		{name: "unicode", in: "Zażółć gęślą", want: []string{"zażółć", "gęślą"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Tokenize(tc.in))
		})
	}
}

func TestExtractDomain(t *testing.T) {
	assert.Equal(t, "example.co.uk", ExtractDomain("Bob@Example.co.uk"))
	assert.Equal(t, "", ExtractDomain("localhost"))
	assert.Equal(t, "", ExtractDomain("user@localhost"))
}

func TestSeriesTop(t *testing.T) {
	s := Series[int]{{Label: "a", Value: 3}, {Label: "b", Value: 2}, {Label: "c", Value: 1}}
	assert.Equal(t, s[:2], s.Top(2))
	assert.Equal(t, s, s.Top(0))
	assert.Equal(t, s, s.Top(10))
}
