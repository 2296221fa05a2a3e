package analytics

import (
	"math"
	"time"
)

const day = 24 * time.Hour

// Score weights. Mutual engagement and outbound initiative dominate,
// inbound volume and directness follow, recency and incidental exposure
// come last.
const (
	primaryWeight   = 1.0
	secondaryWeight = 0.5
	tertiaryWeight  = 0.3
)

// ContactParameters are the per-contact ratios and rates fed to scoring.
type ContactParameters struct {
	Contact           string
	Recency           int
	SpanDays          int
	SentRate          float64
	ReceivedRate      float64
	ToMeRatio         float64
	FromMeRatio       float64
	SecondaryRatio    float64
	Reciprocity       float64
	TotalInteractions int
}

// DeriveParameters converts relationships into parameters relative to
// now. Contacts without interactions are dropped; order is preserved.
func DeriveParameters(rs *Relationships, now time.Time) []ContactParameters {
	if rs == nil {
		return nil
	}
	params := make([]ContactParameters, 0, rs.Len())
	for _, contact := range rs.order {
		rel := rs.contacts[contact]
		total := rel.TotalInteractions()
		if total == 0 {
			continue
		}

		span := wholeDays(rel.LastContact.Sub(rel.FirstContact))
		if span <= 0 {
			span = 1
		}
		recency := wholeDays(now.Sub(rel.LastContact))
		if recency < 0 {
			recency = 0
		}

		sent := rel.Sent()
		received := rel.Received()
		params = append(params, ContactParameters{
			Contact:           contact,
			Recency:           recency,
			SpanDays:          span,
			SentRate:          float64(sent) / float64(span),
			ReceivedRate:      float64(received) / float64(span),
			ToMeRatio:         float64(rel.ToMe) / float64(total),
			FromMeRatio:       float64(rel.FromMe) / float64(total),
			SecondaryRatio:    float64(rel.Secondary()) / float64(total),
			Reciprocity:       1 - math.Abs(float64(received-sent))/float64(total),
			TotalInteractions: total,
		})
	}
	return params
}

func wholeDays(d time.Duration) int {
	return int(math.Floor(float64(d) / float64(day)))
}

// bounds is the observed range of one parameter across contacts.
type bounds struct {
	min, max float64
}

func newBounds() bounds {
	return bounds{min: math.Inf(1), max: math.Inf(-1)}
}

func (b *bounds) include(v float64) {
	b.min = math.Min(b.min, v)
	b.max = math.Max(b.max, v)
}

// normalize maps v into [0,1]. A zero-width range yields 0.
func (b bounds) normalize(v float64) float64 {
	width := b.max - b.min
	if width == 0 || math.IsInf(width, 0) || math.IsNaN(width) {
		return 0
	}
	return (v - b.min) / width
}

// ScoreInfluence min-max normalizes sent rate, received rate and recency
// across all contacts and combines them with the ratios into one score.
// The result is ordered by descending score, ties in input order.
func ScoreInfluence(params []ContactParameters) Series[float64] {
	sentRate, receivedRate, recency := newBounds(), newBounds(), newBounds()
	for _, p := range params {
		sentRate.include(p.SentRate)
		receivedRate.include(p.ReceivedRate)
		recency.include(float64(p.Recency))
	}

	scores := make(Series[float64], 0, len(params))
	for _, p := range params {
		most := p.Reciprocity + p.FromMeRatio + sentRate.normalize(p.SentRate)
		medium := receivedRate.normalize(p.ReceivedRate) + p.ToMeRatio
		less := recency.normalize(float64(p.Recency)) + p.SecondaryRatio
		scores = append(scores, Entry[float64]{
			Label: p.Contact,
			Value: primaryWeight*most + secondaryWeight*medium + tertiaryWeight*less,
		})
	}
	sortDescending(scores)
	return scores
}

// ContactInfluence runs aggregation, derivation and scoring in one go.
func ContactInfluence(sent, received []MessageRecord, selfAddress string, now time.Time) Series[float64] {
	return ScoreInfluence(DeriveParameters(Aggregate(sent, received, selfAddress), now))
}
