package agents

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"datanerd/internal/analysis"
	"datanerd/internal/logging"
	"datanerd/internal/state"
	"datanerd/internal/types"
)

const (
	stdoutExcerptLines = 40
	footerMarker       = "<!-- datanerd:footer -->"
)

// =============================================================================
// REPORTER
// =============================================================================

// Reporter writes the markdown report. It requires every planned task to
// have completed.
func (c *Crew) Reporter(ctx context.Context, st *state.AnalysisState) error {
	sum, err := st.MustSummary(NodeReporter)
	if err != nil {
		return err
	}
	if _, err := st.MustPlan(NodeReporter); err != nil {
		return err
	}
	if !st.Done() {
		return &types.PreconditionError{Node: NodeReporter, Field: "execution_results"}
	}
	results := st.Results()

	if c.llm.Enabled() {
		out, err := c.llm.Call(ctx, NodeReporter, reporterSystemPrompt, reporterPrompt(sum, results))
		if err == nil {
			st.SetReport(strings.TrimSpace(out) + "\n\n" + chartIndex(results))
			logging.Reporter("LLM report written (%d bytes)", len(st.Report()))
			return nil
		}
		st.Note("%s: using deterministic report: %v", NodeReporter, err)
	}

	st.SetReport(buildReport(st, ""))
	logging.Reporter("report written for %d task(s)", len(results))
	return nil
}

// PartialReport renders a report from whatever completed before the run
// stopped. The banner names the reason.
func PartialReport(st *state.AnalysisState, reason string) string {
	return buildReport(st, reason)
}

func buildReport(st *state.AnalysisState, incomplete string) string {
	var sb strings.Builder
	sum := st.Summary()
	name := "dataset"
	if sum != nil && sum.Dataset != "" {
		name = sum.Dataset
	}
	fmt.Fprintf(&sb, "# Analysis report: %s\n\n", name)

	if incomplete != "" {
		fmt.Fprintf(&sb, "> **Incomplete:** %s\n\n", incomplete)
	}

	sb.WriteString("## Data overview\n\n")
	if sum == nil {
		sb.WriteString("No data summary was produced.\n\n")
	} else {
		fmt.Fprintf(&sb, "- Rows: %d\n- Columns: %d\n- Duplicate rows: %d\n", sum.Rows, sum.Cols, sum.Duplicates)
		missing := 0
		for _, col := range sum.Columns {
			missing += col.Missing
		}
		fmt.Fprintf(&sb, "- Missing values: %d\n", missing)
		if sum.Narrative != "" {
			sb.WriteString("\n")
			sb.WriteString(strings.TrimSpace(sum.Narrative))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	results := st.Results()
	sb.WriteString("## Tasks\n\n")
	if len(results) == 0 {
		sb.WriteString("No task completed.\n\n")
	}
	for _, r := range results {
		title := r.Task.Description
		if title == "" {
			title = r.Task.Type
		}
		fmt.Fprintf(&sb, "### %d. %s\n\n", r.TaskIndex+1, title)
		if out := excerpt(r.Stdout, stdoutExcerptLines); out != "" {
			fence := fenceFor(out)
			sb.WriteString(fence + "text\n")
			sb.WriteString(out)
			sb.WriteString(fence + "\n\n")
		}
		for _, t := range r.Tables {
			sb.WriteString(markdownTable(t))
			sb.WriteString("\n")
		}
		for n, ch := range r.Charts {
			fmt.Fprintf(&sb, "- Chart `%s`: %s (%s)\n", state.ChartPath(r.TaskIndex, n), ch.Title, ch.Kind)
		}
		if len(r.Charts) > 0 {
			sb.WriteString("\n")
		}
	}

	if incomplete != "" {
		if remaining := st.PlanLen() - len(results); remaining > 0 {
			fmt.Fprintf(&sb, "## Not completed\n\n%d planned task(s) did not complete.\n\n", remaining)
		}
		if last := st.LastError(); last != nil {
			fmt.Fprintf(&sb, "Last failure on task %d (%s): %s\n", last.TaskIndex+1, last.Kind, last.Message)
		}
	}
	return sb.String()
}

func chartIndex(results []state.ExecutionResult) string {
	var sb strings.Builder
	sb.WriteString("## Charts\n\n")
	n := 0
	for _, r := range results {
		for i, ch := range r.Charts {
			fmt.Fprintf(&sb, "- `%s`: %s\n", state.ChartPath(r.TaskIndex, i), ch.Title)
			n++
		}
	}
	if n == 0 {
		sb.WriteString("No charts.\n")
	}
	return sb.String()
}

func excerpt(s string, maxLines int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > maxLines {
		lines = append(lines[:maxLines], fmt.Sprintf("... (%d more lines)", len(lines)-maxLines))
	}
	return strings.Join(lines, "\n") + "\n"
}

// fenceFor returns a backtick fence longer than any backtick run in s.
func fenceFor(s string) string {
	longest, run := 0, 0
	for i := 0; i < len(s); i++ {
		if s[i] != '`' {
			run = 0
			continue
		}
		run++
		if run > longest {
			longest = run
		}
	}
	return strings.Repeat("`", max(3, longest+1))
}

func markdownTable(t analysis.TableArtifact) string {
	var sb strings.Builder
	if t.Title != "" {
		fmt.Fprintf(&sb, "**%s**\n\n", t.Title)
	}
	if len(t.Header) == 0 {
		return sb.String()
	}
	row := func(cells []string) {
		escaped := make([]string, len(t.Header))
		for i := range escaped {
			if i < len(cells) {
				escaped[i] = strings.ReplaceAll(cells[i], "|", `\|`)
			}
		}
		sb.WriteString("| " + strings.Join(escaped, " | ") + " |\n")
	}
	row(t.Header)
	sep := make([]string, len(t.Header))
	for i := range sep {
		sep[i] = "---"
	}
	row(sep)
	for _, r := range t.Rows {
		row(r)
	}
	return sb.String()
}

// =============================================================================
// REVIEWER
// =============================================================================

// Reviewer polishes the report: through the LLM when configured, otherwise
// by normalizing headings and whitespace. A run footer is appended once.
func (c *Crew) Reviewer(ctx context.Context, st *state.AnalysisState) error {
	report, err := st.MustReport(NodeReviewer)
	if err != nil {
		return err
	}

	if c.llm.Enabled() {
		out, err := c.llm.Call(ctx, NodeReviewer, reviewerSystemPrompt, report)
		if err != nil {
			st.Note("%s: keeping unreviewed report: %v", NodeReviewer, err)
		} else if polished := strings.TrimSpace(out); polished != "" {
			report = polished
		}
	}

	report = Normalize(report)
	if !strings.Contains(report, footerMarker) {
		report += fmt.Sprintf("\n---\n%s\n_%d task(s) completed, %d failed attempt(s)._\n",
			footerMarker, len(st.Results()), len(st.Failures()))
	}
	st.SetReport(report)
	logging.Reviewer("report reviewed (%d bytes)", len(report))
	return nil
}

var (
	headingNoSpace = regexp.MustCompile(`(?m)^(#{1,6})([^#\s])`)
	blankRuns      = regexp.MustCompile(`\n{3,}`)
)

// Normalize trims trailing whitespace, adds the space missing after
// heading markers, collapses blank-line runs and makes sure the report
// starts with a level-one heading.
func Normalize(report string) string {
	lines := strings.Split(report, "\n")
	fence := 0
	for i, l := range lines {
		l = strings.TrimRight(l, " \t\r")
		ticks := len(l) - len(strings.TrimLeft(l, "`"))
		switch {
		case fence == 0 && ticks >= 3:
			fence = ticks
		case fence > 0 && ticks >= fence && ticks == len(l):
			fence = 0
		case fence == 0:
			l = headingNoSpace.ReplaceAllString(l, "$1 $2")
		}
		lines[i] = l
	}
	out := strings.TrimSpace(blankRuns.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
	if !strings.HasPrefix(out, "# ") {
		out = "# Analysis report\n\n" + out
	}
	return out + "\n"
}
