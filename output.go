// ABOUTME: Output helpers: single-line JSON, activity tables, and the stderr spinner.
// ABOUTME: stdout only ever carries JSON or a rendered table; progress goes to stderr.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
)

// writeJSON writes v as one line of JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func writeError(w io.Writer, msg string) {
	_ = writeJSON(w, map[string]string{"error": msg})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// withSpinner runs fn while a spinner animates on w, if w is a terminal.
func withSpinner(w io.Writer, label string, fn func()) {
	if !isTerminal(w) {
		fn()
		return
	}

	s := spinner.New(spinner.CharSets[11], 100*time.Millisecond, spinner.WithWriter(w))
	s.Prefix = "["
	s.Suffix = "] " + label
	s.Start()
	defer s.Stop()

	fn()
}

func renderActivities(w io.Writer, activities []ActivityRecord) error {
	table := tablewriter.NewWriter(w)
	table.Configure(func(cfg *tablewriter.Config) {
		cfg.Row.Formatting.AutoWrap = tw.WrapTruncate
		cfg.Row.Alignment.PerColumn = []tw.Align{
			tw.AlignLeft,  // Date
			tw.AlignLeft,  // Type
			tw.AlignLeft,  // Name
			tw.AlignRight, // Distance
			tw.AlignRight, // Duration
			tw.AlignRight, // Pace
			tw.AlignRight, // HR
		}
	})
	table.Header("Date", "Type", "Name", "km", "Time", "Pace", "HR")

	for _, a := range activities {
		table.Append(
			orDash(a.Time),
			fmt.Sprint(orEmpty(a.Type)),
			fmt.Sprint(orEmpty(a.Name)),
			formatKm(a.DistanceM),
			formatDuration(a.DurationSec),
			formatPace(a.AvgPaceSecPerKm),
			formatInt(a.AvgHR),
		)
	}

	return table.Render()
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func orEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}

func formatKm(m *float64) string {
	if m == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *m/1000)
}

func formatDuration(sec *int) string {
	if sec == nil {
		return "-"
	}
	h, m, s := *sec/3600, *sec%3600/60, *sec%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func formatPace(secPerKm *float64) string {
	if secPerKm == nil {
		return "-"
	}
	total := int(*secPerKm + 0.5)
	return fmt.Sprintf("%d:%02d/km", total/60, total%60)
}

func formatInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}
