// Package report renders analysis results for terminals, files and HTTP.
package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/aaronromeo/mailpulse/internal/analytics"
	"github.com/aaronromeo/mailpulse/internal/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/pkg/errors"
)

// Report is a titled series ready to render.
type Report[V analytics.Number] struct {
	Kind   string              `json:"kind"`
	Title  string              `json:"title"`
	Label  string              `json:"-"`
	Value  string              `json:"-"`
	Total  *V                  `json:"total,omitempty"`
	Series analytics.Series[V] `json:"series"`
}

// New builds a report keeping at most top entries. top <= 0 keeps all.
// Total is computed before truncation and is nil for scores.
func New[V analytics.Number](kind, title, label, value string, series analytics.Series[V], top int) Report[V] {
	if series == nil {
		series = analytics.Series[V]{}
	}
	r := Report[V]{
		Kind:   kind,
		Title:  title,
		Label:  label,
		Value:  value,
		Series: series.Top(top),
	}
	if _, counts := any(r.Total).(*int); counts {
		total := series.Total()
		r.Total = &total
	}
	return r
}

// ContentType returns the MIME type of a rendered format.
func ContentType(format string) string {
	switch format {
	case config.FormatCSV:
		return "text/csv"
	case config.FormatJSON:
		return "application/json"
	}
	return "text/plain; charset=utf-8"
}

// Extension returns the file extension of a rendered format.
func Extension(format string) string {
	switch format {
	case config.FormatCSV:
		return ".csv"
	case config.FormatJSON:
		return ".json"
	}
	return ".txt"
}

// Write renders r to w in the given format.
func Write[V analytics.Number](w io.Writer, format string, r Report[V]) error {
	switch format {
	case config.FormatCSV:
		return writeCSV(w, r)
	case config.FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		return encoder.Encode(r)
	case config.FormatTable, "":
		_, err := fmt.Fprintln(w, renderTable(r))
		return err
	}
	return errors.Errorf("unsupported report format %q", format)
}

// Render returns r rendered in the given format.
func Render[V analytics.Number](format string, r Report[V]) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, format, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCSV[V analytics.Number](w io.Writer, r Report[V]) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{r.Label, r.Value}); err != nil {
		return err
	}
	for _, entry := range r.Series {
		if err := writer.Write([]string{entry.Label, FormatValue(entry.Value)}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).MarginBottom(1)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func renderTable[V analytics.Number](r Report[V]) string {
	rows := make([][]string, 0, len(r.Series))
	for _, entry := range r.Series {
		rows = append(rows, []string{entry.Label, FormatValue(entry.Value)})
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(borderStyle).
		Headers(r.Label, r.Value).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return headerStyle
			case col == 1:
				return numberStyle
			default:
				return cellStyle
			}
		})

	parts := []string{titleStyle.Render(r.Title), t.Render()}
	switch {
	case len(r.Series) == 0:
		parts = append(parts, "No results.")
	case r.Total != nil:
		parts = append(parts, fmt.Sprintf("total: %s", FormatValue(*r.Total)))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// FormatValue prints counts as integers and scores with three decimals.
func FormatValue[V analytics.Number](v V) string {
	switch value := any(v).(type) {
	case int:
		return strconv.Itoa(value)
	case float64:
		return strconv.FormatFloat(value, 'f', 3, 64)
	}
	return fmt.Sprint(v)
}
