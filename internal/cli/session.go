package cli

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/aaronromeo/mailpulse/internal/analyzer"
	"github.com/aaronromeo/mailpulse/internal/announcer"
	"github.com/aaronromeo/mailpulse/internal/config"
	"github.com/aaronromeo/mailpulse/internal/imapclient"
	"github.com/aaronromeo/mailpulse/internal/reportstore"
	"github.com/aaronromeo/mailpulse/internal/telemetry"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const configEnvVar = "MAILPULSE_CONFIG"
const defaultEnvFile = ".env"

// imapTLSConfig is used for every IMAP connection; nil means system defaults.
var imapTLSConfig *tls.Config

// session bundles what a command needs once configuration is loaded.
type session struct {
	cfg       config.Config
	logger    *slog.Logger
	client    *imapclient.Client
	analyzer  *analyzer.Analyzer
	store     *reportstore.Store
	announcer announcer.Service
	shutdown  func(context.Context) error
}

func resolveConfigPath(cmd *cobra.Command) (string, error) {
	cfgPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(cfgPath) == "" {
		cfgPath = os.Getenv(configEnvVar)
	}
	if strings.TrimSpace(cfgPath) == "" {
		return "", errors.New("config path is required via --config or MAILPULSE_CONFIG")
	}
	return cfgPath, nil
}

func loadEnvFile() error {
	if _, err := os.Stat(defaultEnvFile); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(defaultEnvFile)
}

// loadConfig resolves, loads and validates the YAML config.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgPath, err := resolveConfigPath(cmd)
	if err != nil {
		return config.Config{}, err
	}

	if err := loadEnvFile(); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}

	if err := config.Validate(cfg); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// openSession loads configuration, starts telemetry and connects to IMAP.
// The caller must call close.
func openSession(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	imapEnv, err := config.IMAPEnvFromEnv()
	if err != nil {
		return nil, err
	}
	s3Env, uploadConfigured, err := config.S3EnvFromEnv()
	if err != nil {
		return nil, err
	}

	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	otlpEnv, err := config.OTLPEnvFromEnv()
	if err != nil {
		return nil, err
	}

	ctx := commandContext(cmd)
	opts := telemetryOptions(otlpEnv, verbose, cmd.ErrOrStderr())
	providers, shutdown, err := telemetry.Setup(ctx, opts)
	if err != nil {
		return nil, err
	}
	sess := &session{cfg: cfg, shutdown: shutdown}
	if opts.Endpoint != "" || opts.LogWriter != nil {
		sess.logger = telemetry.NewLogger(cmd.ErrOrStderr(), verbose, providers.LoggerProvider())
	} else {
		sess.logger = telemetry.NewLogger(cmd.ErrOrStderr(), verbose, nil)
	}

	loc, err := cfg.Location()
	if err != nil {
		sess.close(ctx)
		return nil, err
	}

	sess.client = &imapclient.Client{
		Addr:           fmt.Sprintf("%s:%d", imapEnv.Host, imapEnv.Port),
		Username:       imapEnv.User,
		Password:       imapEnv.Pass,
		TLSConfig:      imapTLSConfig,
		SentFolder:     cfg.Folders.Sent,
		ReceivedFolder: cfg.Folders.Received,
		Self:           cfg.Self,
		Location:       loc,
		Logger:         sess.logger,
	}
	if err := sess.client.Connect(); err != nil {
		sess.close(ctx)
		return nil, err
	}

	sess.analyzer, err = analyzer.New(sess.client,
		analyzer.WithIdentity(sess.client),
		analyzer.WithLogger(sess.logger),
		analyzer.WithLocation(loc),
	)
	if err != nil {
		sess.close(ctx)
		return nil, err
	}

	if uploadConfigured {
		sess.store, err = reportstore.New(s3Env, reportstore.WithLogger(sess.logger))
		if err != nil {
			sess.close(ctx)
			return nil, err
		}
	}
	sess.announcer = announcer.New(announcer.WithWebhookURL(config.WebhookURL()))

	return sess, nil
}

// telemetryOptions exports to the collector when one is configured.
// Without one, --verbose writes OpenTelemetry log records to stderr.
func telemetryOptions(env config.OTLPEnv, verbose bool, stderr io.Writer) telemetry.Options {
	opts := telemetry.Options{
		Endpoint: env.Endpoint,
		Headers:  env.Headers,
		Insecure: env.Insecure,
	}
	if opts.Endpoint == "" && verbose {
		opts.LogWriter = stderr
	}
	return opts
}

func (s *session) close(ctx context.Context) {
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn("Failed to log out", slog.String("error", err.Error()))
		}
	}
	if s.shutdown != nil {
		if err := s.shutdown(ctx); err != nil {
			s.logger.Warn("Failed to shut down telemetry", slog.String("error", err.Error()))
		}
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}
