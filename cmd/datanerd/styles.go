package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"datanerd/internal/graph"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7D56F4"))

	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFB347")).Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#767676"))

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1)
)

// statusStyle picks the style for a run status.
func statusStyle(s graph.Status) lipgloss.Style {
	switch s {
	case graph.StatusCompleted:
		return okStyle
	case graph.StatusCancelled, graph.StatusRetryExhausted:
		return warnStyle
	default:
		return errorStyle
	}
}

// statusLine renders the one-line result of a run.
func statusLine(o *outcome) string {
	res := o.Result
	var sb strings.Builder
	sb.WriteString(statusStyle(res.Status).Render(string(res.Status)))
	fmt.Fprintf(&sb, "  %s  %d/%d tasks, %d failed attempt(s), %d steps, %s",
		res.Dataset, len(res.Results), len(res.Plan), len(res.Failures), res.Steps,
		res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond))
	sb.WriteString(dimStyle.Render("  run " + res.RunID))
	return sb.String()
}

// renderMarkdown renders md for the terminal.
func renderMarkdown(md string, width int) (string, error) {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return "", err
	}
	return r.Render(md)
}
