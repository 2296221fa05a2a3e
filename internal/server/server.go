// Package server exposes the analyses over HTTP.
package server

import (
	"context"
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/analyzer"
	"github.com/gofiber/contrib/otelfiber/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/template/html/v2"
	"github.com/pkg/errors"
)

//go:embed views/*.html
var viewsFS embed.FS

// Analyses is the set of operations served over HTTP.
type Analyses interface {
	Location() *time.Location
	CountSent(ctx context.Context, period analyzer.Period, g analytics.Granularity) (analytics.Series[int], error)
	CountSentByDomain(ctx context.Context, period analyzer.Period) (analytics.Series[int], error)
	CountKeywords(ctx context.Context, period analyzer.Period) (analytics.Series[int], error)
	ContactInfluence(ctx context.Context, period analyzer.Period) (analytics.Series[float64], error)
}

// Server serves JSON reports under /api and an HTML overview at /.
type Server struct {
	app      *fiber.App
	analyses Analyses
	logger   *slog.Logger
	now      func() time.Time
	top      int

	// mu serializes analyses; the IMAP session holds one selected mailbox.
	mu sync.Mutex
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// WithTop sets the default number of entries per report.
func WithTop(top int) Option {
	return func(s *Server) {
		s.top = top
	}
}

// New builds the fiber app and registers the routes.
func New(analyses Analyses, opts ...Option) (*Server, error) {
	s := &Server{analyses: analyses}
	for _, opt := range opts {
		opt(s)
	}
	if s.analyses == nil {
		return nil, errors.New("requires analyses")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}

	views, err := fs.Sub(viewsFS, "views")
	if err != nil {
		return nil, errors.Wrap(err, "load views")
	}
	engine := html.NewFileSystem(http.FS(views), ".html")

	s.app = fiber.New(fiber.Config{
		Views:                 engine,
		DisableStartupMessage: true,
		ErrorHandler:          s.handleError,
	})
	s.app.Use(otelfiber.Middleware())

	s.app.Get("/", s.overview)
	api := s.app.Group("/api")
	api.Get("/volume", s.volume)
	api.Get("/domains", s.domains)
	api.Get("/keywords", s.keywords)
	api.Get("/contacts", s.contacts)
	s.app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "not found")
	})

	return s, nil
}

// App returns the underlying fiber app.
func (s *Server) App() *fiber.App {
	return s.app
}

// Run listens on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.app.Listen(addr)
	}()
	s.logger.InfoContext(ctx, "Serving reports", slog.String("addr", addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.app.ShutdownWithContext(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fiberErr *fiber.Error
	switch {
	case errors.As(err, &fiberErr):
		code = fiberErr.Code
	case errors.Is(err, analyzer.ErrRetrieval):
		code = fiber.StatusBadGateway
	}
	if code >= fiber.StatusInternalServerError {
		s.logger.ErrorContext(c.UserContext(), "Request failed",
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}

func badRequest(err error) error {
	return fiber.NewError(fiber.StatusBadRequest, err.Error())
}

// period reads from/to query parameters.
func (s *Server) period(c *fiber.Ctx) (analyzer.Period, error) {
	period, err := analyzer.ParseRange(c.Query("from"), c.Query("to"), s.now(), s.analyses.Location())
	if err != nil {
		return analyzer.Period{}, badRequest(err)
	}
	return period, nil
}

func (s *Server) topParam(c *fiber.Ctx) (int, error) {
	raw := strings.TrimSpace(c.Query("top"))
	if raw == "" {
		return s.top, nil
	}
	top, err := strconv.Atoi(raw)
	if err != nil || top < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "top must be a non-negative integer")
	}
	return top, nil
}
