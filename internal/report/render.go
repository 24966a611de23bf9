package report

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/abhisek/cohortwatch/internal/ui/theme"
)

// Render formats the bottom line for the console. With styled false the
// output is plain text suitable for pipes and logs.
func Render(title string, rows []CategorySummary, styled bool) string {
	pick := func(s lipgloss.Style) lipgloss.Style {
		if styled {
			return s
		}
		return theme.Plain
	}

	width := len("category")
	for _, r := range rows {
		width = max(width, len(r.Category))
	}

	var b strings.Builder
	b.WriteString(pick(theme.Title).Render(title))
	b.WriteString("\n")
	b.WriteString(pick(theme.Header).Render(fmt.Sprintf("%-*s  %6s  %8s  %7s  %7s  %9s",
		width, "category", "total", "on track", "behind", "at risk", "no engage")))
	b.WriteString("\n")

	for _, r := range rows {
		fmt.Fprintf(&b, "%-*s  %6d  %s  %s  %s  %9s\n",
			width, r.Category, r.Total,
			pick(theme.OnTrack).Render(fmt.Sprintf("%8s", FormatPct(r.PctOnTrack))),
			pick(theme.Behind).Render(fmt.Sprintf("%7s", FormatPct(r.PctBehind))),
			pick(theme.AtRisk).Render(fmt.Sprintf("%7s", FormatPct(r.PctAtRisk))),
			FormatPct(r.PctNoEngagement),
		)
	}
	if len(rows) == 0 {
		b.WriteString(pick(theme.Hint).Render("No entities."))
		b.WriteString("\n")
	}
	return b.String()
}
