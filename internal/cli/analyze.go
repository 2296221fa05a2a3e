package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/analyzer"
	"github.com/aaronromeo/mailpulse/internal/announcer"
	"github.com/aaronromeo/mailpulse/internal/config"
	"github.com/aaronromeo/mailpulse/internal/report"
	"github.com/aaronromeo/mailpulse/internal/reportstore"
	"github.com/spf13/cobra"
)

func newVolumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "volume",
		Short: "Count sent mail per hour, day or month",
		Long: "Count sent mail per hour of a day, per day of a month or per month of a year.\n" +
			"--date selects the day, month or year (YYYY-MM-DD, YYYY-MM or YYYY).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			granularity, err := cmd.Flags().GetString("granularity")
			if err != nil {
				return err
			}
			g, err := analytics.ParseGranularity(granularity)
			if err != nil {
				return err
			}
			date, err := cmd.Flags().GetString("date")
			if err != nil {
				return err
			}

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			defer sess.close(ctx)

			loc := sess.analyzer.Location()
			day, err := analyzer.ParseDate(date, time.Now(), loc)
			if err != nil {
				return err
			}
			period := analyzer.PeriodFor(g, day, loc)

			counts, err := sess.analyzer.CountSent(ctx, period, g)
			if err != nil {
				return err
			}
			r := report.New("volume", "Sent "+g.String()+" "+period.String(), "period", "sent", counts, 0)
			return emit(cmd, sess, period, r)
		},
	}
	cmd.Flags().String("granularity", analytics.Daily.String(), "Bucket size: hourly, daily or monthly")
	cmd.Flags().String("date", "", "Day, month or year to report (default: now)")
	addReportFlags(cmd)
	return cmd
}

func newDomainsCmd() *cobra.Command {
	return newRangeCmd("domains", "Count recipient domains of sent mail", "Recipient domains", "domain", "count",
		func(ctx context.Context, a *analyzer.Analyzer, p analyzer.Period) (analytics.Series[int], error) {
			return a.CountSentByDomain(ctx, p)
		})
}

func newKeywordsCmd() *cobra.Command {
	return newRangeCmd("keywords", "Count words used in sent mail", "Keywords", "keyword", "count",
		func(ctx context.Context, a *analyzer.Analyzer, p analyzer.Period) (analytics.Series[int], error) {
			return a.CountKeywords(ctx, p)
		})
}

func newContactsCmd() *cobra.Command {
	return newRangeCmd("contacts", "Rank contacts by influence score", "Contact influence", "contact", "score",
		func(ctx context.Context, a *analyzer.Analyzer, p analyzer.Period) (analytics.Series[float64], error) {
			return a.ContactInfluence(ctx, p)
		})
}

// newRangeCmd builds a command reporting one analysis over --from/--to.
func newRangeCmd[V analytics.Number](use, short, title, label, value string, run func(context.Context, *analyzer.Analyzer, analyzer.Period) (analytics.Series[V], error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			from, err := cmd.Flags().GetString("from")
			if err != nil {
				return err
			}
			to, err := cmd.Flags().GetString("to")
			if err != nil {
				return err
			}

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			ctx := commandContext(cmd)
			defer sess.close(ctx)

			period, err := analyzer.ParseRange(from, to, time.Now(), sess.analyzer.Location())
			if err != nil {
				return err
			}

			series, err := run(ctx, sess.analyzer, period)
			if err != nil {
				return err
			}
			top, err := topFlag(cmd, sess.cfg)
			if err != nil {
				return err
			}
			return emit(cmd, sess, period, report.New(use, title+" "+period.String(), label, value, series, top))
		},
	}
	cmd.Flags().String("from", "", "First day to include, YYYY-MM-DD (default: start of this month)")
	cmd.Flags().String("to", "", "Last day to include, YYYY-MM-DD (default: today)")
	cmd.Flags().Int("top", -1, "Entries to show, 0 for all (default: report.top from config)")
	addReportFlags(cmd)
	return cmd
}

func addReportFlags(cmd *cobra.Command) {
	cmd.Flags().String("format", "", "Output format: table, csv or json (default: report.format from config)")
	cmd.Flags().Bool("upload", false, "Upload the report to the configured S3 bucket")
}

func topFlag(cmd *cobra.Command, cfg config.Config) (int, error) {
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return 0, err
	}
	if top < 0 {
		return cfg.Report.Top, nil
	}
	return top, nil
}

func formatFlag(cmd *cobra.Command, cfg config.Config) (string, error) {
	format, err := cmd.Flags().GetString("format")
	if err != nil {
		return "", err
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		return cfg.Report.Format, nil
	}
	switch format {
	case config.FormatTable, config.FormatCSV, config.FormatJSON:
		return format, nil
	}
	return "", fmt.Errorf("unsupported format %q", format)
}

// emit writes r to stdout, uploads it when asked and announces it.
func emit[V analytics.Number](cmd *cobra.Command, sess *session, period analyzer.Period, r report.Report[V]) error {
	format, err := formatFlag(cmd, sess.cfg)
	if err != nil {
		return err
	}
	body, err := report.Render(format, r)
	if err != nil {
		return err
	}
	if _, err := cmd.OutOrStdout().Write(body); err != nil {
		return err
	}

	ctx := commandContext(cmd)
	location, err := upload(cmd, sess, r.Kind, format, body)
	if err != nil {
		return err
	}

	if sess.announcer == nil {
		return nil
	}
	if err := sess.announcer.Do(ctx, announcer.Announcement{
		Kind:     r.Kind,
		Period:   period.String(),
		Entries:  len(r.Series),
		Location: location,
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "reporting failed for %s: %v\n", r.Kind, err)
	}
	return nil
}

func upload(cmd *cobra.Command, sess *session, kind, format string, body []byte) (string, error) {
	enabled, err := cmd.Flags().GetBool("upload")
	if err != nil || !enabled {
		return "", err
	}
	if sess.store == nil {
		return "", errors.New("--upload requires the MAILPULSE_S3_* environment variables")
	}
	location, err := sess.store.Upload(commandContext(cmd), reportstore.Object{
		Kind:        kind,
		Extension:   report.Extension(format),
		ContentType: report.ContentType(format),
		Body:        body,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		return "", err
	}
	sess.logger.Debug("Report stored", slog.String("location", location))
	return location, nil
}
