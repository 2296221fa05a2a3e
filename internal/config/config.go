package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/99designs/keyring"
	"gopkg.in/yaml.v3"
)

const (
	envIMAPHost     = "MAILPULSE_IMAP_HOST"
	envIMAPPort     = "MAILPULSE_IMAP_PORT"
	envIMAPUser     = "MAILPULSE_IMAP_USER"
	envIMAPPass     = "MAILPULSE_IMAP_PASS"
	envS3Endpoint   = "MAILPULSE_S3_ENDPOINT"
	envS3Region     = "MAILPULSE_S3_REGION"
	envS3Bucket     = "MAILPULSE_S3_BUCKET"
	envS3Key        = "MAILPULSE_S3_KEY"
	envS3Secret     = "MAILPULSE_S3_SECRET"
	envWebhookURL   = "MAILPULSE_WEBHOOK_URL"
	envOTLPEndpoint = "MAILPULSE_OTLP_ENDPOINT"
	envOTLPHeaders  = "MAILPULSE_OTLP_HEADERS"
	envOTLPInsecure = "MAILPULSE_OTLP_INSECURE"

	keyringService = "mailpulse"
)

// Report formats.
const (
	FormatTable = "table"
	FormatCSV   = "csv"
	FormatJSON  = "json"
)

// Config holds non-secret configuration loaded from YAML.
type Config struct {
	Folders  Folders `yaml:"folders"`
	Self     string  `yaml:"self"`
	Timezone string  `yaml:"timezone"`
	Report   Report  `yaml:"report"`
	Server   Server  `yaml:"server"`
}

// Folders names the mailboxes holding sent and received mail.
type Folders struct {
	Sent     string `yaml:"sent"`
	Received string `yaml:"received"`
}

// Report controls how results are rendered.
type Report struct {
	Format string `yaml:"format"`
	Top    int    `yaml:"top"`
}

// Server configures the HTTP report server.
type Server struct {
	Addr string `yaml:"addr"`
}

// IMAPEnv holds the IMAP connection details from environment variables.
type IMAPEnv struct {
	Host string
	Port int
	User string
	Pass string
}

// S3Env holds the optional report upload target.
type S3Env struct {
	Endpoint string
	Region   string
	Bucket   string
	Key      string
	Secret   string
}

// Default returns the configuration used when a file leaves fields empty.
func Default() Config {
	return Config{
		Folders: Folders{Sent: "Sent", Received: "INBOX"},
		Report:  Report{Format: FormatTable, Top: 20},
		Server:  Server{Addr: ":8080"},
	}
}

// Load reads configuration from a YAML file and fills in defaults.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, err
	}
	applyDefaults(&cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	defaults := Default()
	cfg.Folders.Sent = defaultIfEmpty(cfg.Folders.Sent, defaults.Folders.Sent)
	cfg.Folders.Received = defaultIfEmpty(cfg.Folders.Received, defaults.Folders.Received)
	cfg.Report.Format = strings.ToLower(defaultIfEmpty(cfg.Report.Format, defaults.Report.Format))
	cfg.Server.Addr = defaultIfEmpty(cfg.Server.Addr, defaults.Server.Addr)
}

// Validate performs basic validation on non-secret config.
func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Folders.Sent) == "" {
		return errors.New("config must define folders.sent")
	}
	if strings.TrimSpace(cfg.Folders.Received) == "" {
		return errors.New("config must define folders.received")
	}
	if _, err := cfg.Location(); err != nil {
		return err
	}
	switch cfg.Report.Format {
	case FormatTable, FormatCSV, FormatJSON:
	default:
		return fmt.Errorf("unsupported report.format %q", cfg.Report.Format)
	}
	if cfg.Report.Top < 0 {
		return errors.New("report.top must not be negative")
	}
	if self := strings.TrimSpace(cfg.Self); self != "" && !strings.Contains(self, "@") {
		return fmt.Errorf("self %q is not an email address", self)
	}
	return nil
}

// Location resolves the configured timezone; empty means the local zone.
func (c Config) Location() (*time.Location, error) {
	name := strings.TrimSpace(c.Timezone)
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone: %w", err)
	}
	return loc, nil
}

// keyringOpen is replaced in tests.
var keyringOpen = keyring.Open

// IMAPEnvFromEnv loads IMAP connection details and validates required
// entries. A missing password is looked up in the OS keyring under the
// IMAP user.
func IMAPEnvFromEnv() (IMAPEnv, error) {
	missing := []string{}

	host := strings.TrimSpace(os.Getenv(envIMAPHost))
	if host == "" {
		missing = append(missing, envIMAPHost)
	}

	portRaw := strings.TrimSpace(os.Getenv(envIMAPPort))
	if portRaw == "" {
		missing = append(missing, envIMAPPort)
	}

	user := strings.TrimSpace(os.Getenv(envIMAPUser))
	if user == "" {
		missing = append(missing, envIMAPUser)
	}

	pass := strings.TrimSpace(os.Getenv(envIMAPPass))
	if pass == "" && user != "" {
		pass = passwordFromKeyring(user)
	}
	if pass == "" {
		missing = append(missing, envIMAPPass)
	}

	if len(missing) > 0 {
		return IMAPEnv{}, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(portRaw)
	if err != nil {
		return IMAPEnv{}, fmt.Errorf("invalid %s: %w", envIMAPPort, err)
	}

	return IMAPEnv{
		Host: host,
		Port: port,
		User: user,
		Pass: pass,
	}, nil
}

func passwordFromKeyring(user string) string {
	ring, err := keyringOpen(keyring.Config{ServiceName: keyringService})
	if err != nil {
		return ""
	}
	item, err := ring.Get(user)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(item.Data))
}

// S3EnvFromEnv returns the upload target. ok is false when no S3
// variable is set; a partial set is an error.
func S3EnvFromEnv() (env S3Env, ok bool, err error) {
	values := map[string]string{}
	missing := []string{}
	for _, name := range s3EnvVars() {
		value := strings.TrimSpace(os.Getenv(name))
		if value == "" {
			missing = append(missing, name)
		}
		values[name] = value
	}

	if len(missing) == len(s3EnvVars()) {
		return S3Env{}, false, nil
	}
	if len(missing) > 0 {
		return S3Env{}, false, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return S3Env{
		Endpoint: values[envS3Endpoint],
		Region:   values[envS3Region],
		Bucket:   values[envS3Bucket],
		Key:      values[envS3Key],
		Secret:   values[envS3Secret],
	}, true, nil
}

// WebhookURL returns the announcement webhook, or "".
func WebhookURL() string {
	return strings.TrimSpace(os.Getenv(envWebhookURL))
}

// ReportingEnabled returns true when a webhook URL is configured via env var.
func ReportingEnabled() bool {
	return WebhookURL() != ""
}

// OTLPEnv describes the telemetry collector. An empty Endpoint keeps
// telemetry local.
type OTLPEnv struct {
	Endpoint string
	Headers  map[string]string
	Insecure bool
}

// OTLPEnvFromEnv reads the collector settings. Headers are given as
// comma separated key=value pairs.
func OTLPEnvFromEnv() (OTLPEnv, error) {
	env := OTLPEnv{Endpoint: strings.TrimSpace(os.Getenv(envOTLPEndpoint))}

	if raw := strings.TrimSpace(os.Getenv(envOTLPHeaders)); raw != "" {
		env.Headers = map[string]string{}
		for _, pair := range strings.Split(raw, ",") {
			key, value, found := strings.Cut(pair, "=")
			key = strings.TrimSpace(key)
			if !found || key == "" {
				return OTLPEnv{}, fmt.Errorf("invalid %s: expected key=value, got %q", envOTLPHeaders, strings.TrimSpace(pair))
			}
			env.Headers[key] = strings.TrimSpace(value)
		}
	}

	if raw := strings.TrimSpace(os.Getenv(envOTLPInsecure)); raw != "" {
		insecure, err := strconv.ParseBool(raw)
		if err != nil {
			return OTLPEnv{}, fmt.Errorf("invalid %s: %w", envOTLPInsecure, err)
		}
		env.Insecure = insecure
	}
	return env, nil
}

// Summary returns a concise config summary for validation runs.
func Summary(cfg Config) string {
	reportingStatus := "disabled"
	if ReportingEnabled() {
		reportingStatus = "enabled"
	}
	uploadStatus := "disabled"
	if _, ok, _ := S3EnvFromEnv(); ok {
		uploadStatus = "enabled"
	}
	return fmt.Sprintf(
		"Config summary\n"+
			"- sent folder: %s\n"+
			"- received folder: %s\n"+
			"- timezone: %s\n"+
			"- report: %s (top %d)\n"+
			"- reporting webhook: %s\n"+
			"- report upload: %s",
		cfg.Folders.Sent,
		cfg.Folders.Received,
		defaultIfEmpty(cfg.Timezone, "(local)"),
		cfg.Report.Format,
		cfg.Report.Top,
		reportingStatus,
		uploadStatus,
	)
}

func s3EnvVars() []string {
	return []string{
		envS3Endpoint,
		envS3Region,
		envS3Bucket,
		envS3Key,
		envS3Secret,
	}
}

func defaultIfEmpty(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
