package analytics

import (
	"regexp"
	"strings"
	"time"
	"unicode"
)

var (
	domainPattern = regexp.MustCompile(`@([\w\-.]+\.[\w\-.]+)`)
	urlPattern    = regexp.MustCompile(`(?i)https?://[^\s/]+\.[^\s/]+(?:/\S*)?`)
	tagPattern    = regexp.MustCompile(`<[^<>]*>`)
	tokenPattern  = regexp.MustCompile(`[\p{L}\p{N}_]+(?:['’][\p{L}\p{N}_]+)*|[^\p{L}\p{N}_\s]+`)
)

// Quote and ellipsis artifacts produced by tokenizing plain-text mail.
var tokenStopwords = map[string]struct{}{
	"``":  {},
	"''":  {},
	`""`:  {},
	"...": {},
	"…":   {},
}

// CountByTime counts records per bucket of a dense grid covering
// [start, end). Records outside the grid are ignored.
func CountByTime(records []MessageRecord, start, end time.Time, g Granularity) Series[int] {
	grid := timeGrid(start, end, g)
	for _, record := range records {
		if record.Validate() != nil {
			continue
		}
		if record.Date.Before(start) || !record.Date.Before(end) {
			continue
		}
		grid.incrementSeeded(g.Label(record.Date.In(start.Location())))
	}
	return grid.series()
}

// CountDomains counts recipient domains over To, Cc and Bcc. Every
// address occurrence counts once.
func CountDomains(records []MessageRecord) Series[int] {
	counts := newTally()
	for _, record := range records {
		if record.Validate() != nil {
			continue
		}
		for _, addr := range record.Addresses() {
			if domain := ExtractDomain(addr); domain != "" {
				counts.add(domain)
			}
		}
	}
	out := counts.series()
	sortDescending(out)
	return out
}

// ExtractDomain returns the lowercased part after '@', or "" when addr
// does not look like an email address.
func ExtractDomain(addr string) string {
	match := domainPattern.FindStringSubmatch(addr)
	if match == nil {
		return ""
	}
	return strings.ToLower(match[1])
}

// CountKeywords counts lowercased word tokens over body and subject.
func CountKeywords(records []MessageRecord) Series[int] {
	counts := newTally()
	for _, record := range records {
		if record.Validate() != nil {
			continue
		}
		for _, token := range Tokenize(keywordText(record)) {
			counts.add(token)
		}
	}
	out := counts.series()
	sortDescending(out)
	return out
}

func keywordText(record MessageRecord) string {
	switch {
	case record.Body != nil && record.Subject != nil:
		return *record.Body + " " + *record.Subject
	case record.Body != nil:
		return *record.Body
	case record.Subject != nil:
		return *record.Subject
	}
	return ""
}

// Tokenize strips links and angle-bracket tags, splits text on word
// boundaries and drops punctuation-only tokens.
func Tokenize(text string) []string {
	if text == "" {
		return nil
	}
	text = urlPattern.ReplaceAllString(text, " ")
	text = tagPattern.ReplaceAllString(text, " ")

	var tokens []string
	for _, token := range tokenPattern.FindAllString(text, -1) {
		if _, stop := tokenStopwords[token]; stop {
			continue
		}
		if isPunctuation(token) {
			continue
		}
		tokens = append(tokens, strings.ToLower(token))
	}
	return tokens
}

func isPunctuation(token string) bool {
	for _, r := range token {
		if !unicode.IsPunct(r) && !unicode.IsSymbol(r) {
			return false
		}
	}
	return true
}
