package server

import (
	"context"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/analyzer"
	"github.com/aaronromeo/mailpulse/internal/report"
	"github.com/gofiber/fiber/v2"
)

// volume renders sent mail counts for the grid around date.
func (s *Server) volume(c *fiber.Ctx) error {
	g, err := analytics.ParseGranularity(c.Query("granularity", analytics.Daily.String()))
	if err != nil {
		return badRequest(err)
	}
	date, err := analyzer.ParseDate(c.Query("date"), s.now(), s.analyses.Location())
	if err != nil {
		return badRequest(err)
	}
	period := analyzer.PeriodFor(g, date, s.analyses.Location())

	s.mu.Lock()
	counts, err := s.analyses.CountSent(c.UserContext(), period, g)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return c.JSON(report.New("volume", volumeTitle(g, period), "period", "sent", counts, 0))
}

func (s *Server) domains(c *fiber.Ctx) error {
	return s.countReport(c, "domains", "Recipient domains", "domain", "count", s.analyses.CountSentByDomain)
}

func (s *Server) keywords(c *fiber.Ctx) error {
	return s.countReport(c, "keywords", "Keywords", "keyword", "count", s.analyses.CountKeywords)
}

func (s *Server) contacts(c *fiber.Ctx) error {
	period, err := s.period(c)
	if err != nil {
		return err
	}
	top, err := s.topParam(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	scores, err := s.analyses.ContactInfluence(c.UserContext(), period)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return c.JSON(report.New("contacts", "Contact influence "+period.String(), "contact", "score", scores, top))
}

type rangeCounter func(ctx context.Context, period analyzer.Period) (analytics.Series[int], error)

func (s *Server) countReport(c *fiber.Ctx, kind, title, label, value string, count rangeCounter) error {
	period, err := s.period(c)
	if err != nil {
		return err
	}
	top, err := s.topParam(c)
	if err != nil {
		return err
	}

	s.mu.Lock()
	counts, err := count(c.UserContext(), period)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return c.JSON(report.New(kind, title+" "+period.String(), label, value, counts, top))
}

// overview renders every analysis for the requested range as HTML.
func (s *Server) overview(c *fiber.Ctx) error {
	period, err := s.period(c)
	if err != nil {
		return err
	}
	top, err := s.topParam(c)
	if err != nil {
		return err
	}
	ctx := c.UserContext()

	s.mu.Lock()
	defer s.mu.Unlock()

	volume, err := s.analyses.CountSent(ctx, period, analytics.Daily)
	if err != nil {
		return err
	}
	domains, err := s.analyses.CountSentByDomain(ctx, period)
	if err != nil {
		return err
	}
	keywords, err := s.analyses.CountKeywords(ctx, period)
	if err != nil {
		return err
	}
	contacts, err := s.analyses.ContactInfluence(ctx, period)
	if err != nil {
		return err
	}

	return c.Render("index", fiber.Map{
		"Title":    "mailpulse " + period.String(),
		"Period":   period.String(),
		"Volume":   report.New("volume", "Sent per day", "day", "sent", volume, 0),
		"Domains":  report.New("domains", "Recipient domains", "domain", "count", domains, top),
		"Keywords": report.New("keywords", "Keywords", "keyword", "count", keywords, top),
		"Contacts": contactRows(report.New("contacts", "Contact influence", "contact", "score", contacts, top)),
	})
}

func volumeTitle(g analytics.Granularity, period analyzer.Period) string {
	return "Sent " + g.String() + " " + period.String()
}

type scoreRow struct {
	Label string
	Value string
}

// contactRows preformats scores; templates cannot call generic functions.
func contactRows(r report.Report[float64]) fiber.Map {
	rows := make([]scoreRow, 0, len(r.Series))
	for _, entry := range r.Series {
		rows = append(rows, scoreRow{Label: entry.Label, Value: report.FormatValue(entry.Value)})
	}
	return fiber.Map{"Title": r.Title, "Rows": rows}
}
