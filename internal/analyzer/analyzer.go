// Package analyzer retrieves messages for a period and routes them through
// the analytics engine.
package analyzer

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/aaronromeo/mailpulse/internal/analyzer"

// Analyzer answers volume, domain, keyword and contact questions for a
// mailbox. Calls are independent and keep no state between them.
type Analyzer struct {
	source   MessageSource
	identity IdentityProvider
	logger   *slog.Logger
	now      func() time.Time
	location *time.Location

	tracer    trace.Tracer
	meter     metric.Meter
	retrieved metric.Int64Counter
	skipped   metric.Int64Counter
}

type Option func(*Analyzer)

// New builds an Analyzer over source.
func New(source MessageSource, opts ...Option) (*Analyzer, error) {
	a := &Analyzer{source: source}
	for _, opt := range opts {
		opt(a)
	}

	if a.source == nil {
		return nil, errors.New("requires message source")
	}
	if a.logger == nil {
		a.logger = slog.Default()
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.location == nil {
		a.location = time.Local
	}
	if a.tracer == nil {
		a.tracer = otel.Tracer(instrumentationName)
	}

	if a.meter == nil {
		a.meter = otel.Meter(instrumentationName)
	}
	var err error
	a.retrieved, err = a.meter.Int64Counter("mailpulse.records.retrieved",
		metric.WithDescription("Message records returned by the source"))
	if err != nil {
		return nil, errors.Wrap(err, "create retrieved counter")
	}
	a.skipped, err = a.meter.Int64Counter("mailpulse.records.skipped",
		metric.WithDescription("Message records skipped as malformed"))
	if err != nil {
		return nil, errors.Wrap(err, "create skipped counter")
	}

	return a, nil
}

func WithIdentity(identity IdentityProvider) Option {
	return func(a *Analyzer) {
		a.identity = identity
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// WithClock sets the reference time used for recency.
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) {
		a.now = now
	}
}

// WithLocation sets the zone calendar periods and buckets are built in.
func WithLocation(loc *time.Location) Option {
	return func(a *Analyzer) {
		a.location = loc
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(a *Analyzer) {
		a.tracer = tracer
	}
}

func WithMeter(meter metric.Meter) Option {
	return func(a *Analyzer) {
		a.meter = meter
	}
}

// Location is the zone periods are built in.
func (a *Analyzer) Location() *time.Location {
	return a.location
}

// CountSentHourly counts sent mail per hour of the day containing day.
func (a *Analyzer) CountSentHourly(ctx context.Context, day time.Time) (analytics.Series[int], error) {
	return a.CountSent(ctx, DayPeriod(day, a.location), analytics.Hourly)
}

// CountSentDaily counts sent mail per day of the month containing month.
func (a *Analyzer) CountSentDaily(ctx context.Context, month time.Time) (analytics.Series[int], error) {
	return a.CountSent(ctx, MonthPeriod(month, a.location), analytics.Daily)
}

// CountSentMonthly counts sent mail per month of the year containing year.
func (a *Analyzer) CountSentMonthly(ctx context.Context, year time.Time) (analytics.Series[int], error) {
	return a.CountSent(ctx, YearPeriod(year, a.location), analytics.Monthly)
}

// CountSent counts sent mail per bucket over period.
func (a *Analyzer) CountSent(ctx context.Context, period Period, g analytics.Granularity) (analytics.Series[int], error) {
	ctx, run, end := a.start(ctx, "CountSent", period, attribute.String("granularity", g.String()))
	records, err := a.fetch(ctx, run, period, analytics.Sent)
	if err != nil {
		end(err)
		return nil, err
	}
	counts := analytics.CountByTime(records, period.Start, period.End, g)
	run.InfoContext(ctx, "Counted sent messages", slog.Int("buckets", len(counts)), slog.Int("total", counts.Total()))
	end(nil)
	return counts, nil
}

// CountSentByDomain counts recipient domains of mail sent in period.
func (a *Analyzer) CountSentByDomain(ctx context.Context, period Period) (analytics.Series[int], error) {
	ctx, run, end := a.start(ctx, "CountSentByDomain", period)
	records, err := a.fetch(ctx, run, period, analytics.Sent)
	if err != nil {
		end(err)
		return nil, err
	}
	counts := analytics.CountDomains(records)
	run.InfoContext(ctx, "Counted recipient domains", slog.Int("domains", len(counts)))
	end(nil)
	return counts, nil
}

// CountKeywords counts words used in mail sent in period.
func (a *Analyzer) CountKeywords(ctx context.Context, period Period) (analytics.Series[int], error) {
	ctx, run, end := a.start(ctx, "CountKeywords", period)
	records, err := a.fetch(ctx, run, period, analytics.Sent)
	if err != nil {
		end(err)
		return nil, err
	}
	counts := analytics.CountKeywords(records)
	run.InfoContext(ctx, "Counted keywords", slog.Int("keywords", len(counts)))
	end(nil)
	return counts, nil
}

// ContactInfluence ranks contacts of period by influence score.
func (a *Analyzer) ContactInfluence(ctx context.Context, period Period) (analytics.Series[float64], error) {
	ctx, run, end := a.start(ctx, "ContactInfluence", period)
	sent, err := a.fetch(ctx, run, period, analytics.Sent)
	if err != nil {
		end(err)
		return nil, err
	}
	received, err := a.fetch(ctx, run, period, analytics.Received)
	if err != nil {
		end(err)
		return nil, err
	}

	self := a.selfAddress(ctx, run)
	relationships := analytics.Aggregate(sent, received, self)
	params := analytics.DeriveParameters(relationships, a.now())
	scores := analytics.ScoreInfluence(params)

	// fetch already counted records without a date; what remains are
	// received records without a sender.
	unattributed := relationships.Skipped - analytics.CountMalformed(sent) - analytics.CountMalformed(received)
	if unattributed > 0 {
		a.skipped.Add(ctx, int64(unattributed),
			metric.WithAttributes(attribute.String("folder", string(analytics.Received))))
		run.WarnContext(ctx, "Skipping received records without sender", slog.Int("count", unattributed))
	}

	run.InfoContext(ctx, "Scored contacts",
		slog.Int("contacts", relationships.Len()),
		slog.Int("scored", len(scores)),
		slog.Int("skipped", relationships.Skipped),
	)
	end(nil)
	return scores, nil
}

// start opens a span and a run-scoped logger. The returned func ends both.
func (a *Analyzer) start(ctx context.Context, op string, period Period, attrs ...attribute.KeyValue) (context.Context, *slog.Logger, func(error)) {
	runID := uuid.NewString()
	attrs = append(attrs,
		attribute.String("run.id", runID),
		attribute.String("period.start", period.Start.Format(time.RFC3339)),
		attribute.String("period.end", period.End.Format(time.RFC3339)),
	)
	ctx, span := a.tracer.Start(ctx, "analyzer."+op, trace.WithAttributes(attrs...))

	run := a.logger.With(
		slog.String("op", op),
		slog.String("run_id", runID),
	)
	run.InfoContext(ctx, "Starting analysis",
		slog.Time("start", period.Start),
		slog.Time("end", period.End),
	)

	return ctx, run, func(err error) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			run.ErrorContext(ctx, "Analysis failed", slog.String("error", err.Error()))
		}
		span.End()
	}
}

func (a *Analyzer) fetch(ctx context.Context, run *slog.Logger, period Period, folder analytics.Folder) ([]analytics.MessageRecord, error) {
	if err := period.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid period")
	}
	records, err := a.source.GetMessages(ctx, period.Start, period.End, folder)
	if err != nil {
		return nil, &RetrievalError{Folder: folder, Err: err}
	}

	folderAttr := metric.WithAttributes(attribute.String("folder", string(folder)))
	a.retrieved.Add(ctx, int64(len(records)), folderAttr)
	if malformed := analytics.CountMalformed(records); malformed > 0 {
		a.skipped.Add(ctx, int64(malformed), folderAttr)
		run.WarnContext(ctx, "Skipping malformed records",
			slog.String("folder", string(folder)),
			slog.Int("count", malformed),
		)
	}
	run.DebugContext(ctx, "Retrieved messages",
		slog.String("folder", string(folder)),
		slog.Int("count", len(records)),
	)
	return records, nil
}

// selfAddress never fails the run; without an identity received mail
// is classified as group delivery.
func (a *Analyzer) selfAddress(ctx context.Context, run *slog.Logger) string {
	if a.identity == nil {
		run.WarnContext(ctx, "No identity provider; received mail counts as group delivery")
		return ""
	}
	self, err := a.identity.SelfAddress(ctx)
	if err != nil {
		run.WarnContext(ctx, "Self address unavailable; received mail counts as group delivery",
			slog.String("error", err.Error()))
		return ""
	}
	self = strings.TrimSpace(self)
	if !strings.Contains(self, "@") {
		run.WarnContext(ctx, "Self address is malformed; received mail counts as group delivery",
			slog.String("self", self))
		return ""
	}
	return self
}
