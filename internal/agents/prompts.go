package agents

import (
	"fmt"
	"strings"

	"datanerd/internal/state"
	"datanerd/internal/table"
)

// =============================================================================
// SYSTEM PROMPTS
// =============================================================================

const situationSystemPrompt = `You are a data analyst reviewing a dataset profile.
Write 3 to 5 short bullet points describing notable properties of the data:
skew, missing values, dominant categories, suspicious columns.
Do not invent columns. Do not write code.`

const plannerSystemPrompt = `You are a data analysis planner.
Given a dataset profile, return a JSON array of analysis tasks. Each task is:
  {"task_type": "<type>", "parameters": {...}, "description": "<one line>"}

Supported task types and parameters:
  basic_info          no parameters
  histogram           {"column": <numeric column>}
  bar_chart           {"column": <categorical column>}
  correlation_matrix  {"columns": [<numeric columns>]} (optional; defaults to all numeric)
  scatter_matrix      {"columns": [<2 to 4 numeric columns>]}
  scatter             {"x": <numeric column>, "y": <numeric column>}
  group_summary       {"by": <categorical column>, "value": <numeric column>}
  custom              {} with a precise description of the analysis

Use only columns that appear in the profile. Return at most %d tasks.
Respond with the JSON array only.`

const coderSystemPrompt = `You write Go code that analyzes a dataset inside a restricted interpreter.

Rules:
- Define exactly: func Analyze() error
- You may import only "analysis" and these standard packages: fmt (Sprint/Sprintf/Errorf only), strings, strconv, math, sort, errors, unicode.
- Do not start goroutines. Do not define func main. Do not use recursion; write loops.
- Print with analysis.Printf / analysis.Println, never fmt.Printf.
- Return an error instead of panicking.

The analysis package:
  analysis.Data() *Frame
  (*Frame) Name() string; Rows() int; Columns() []string; Kind(name string) string
  (*Frame) NumericColumns() []string; CategoricalColumns() []string
  (*Frame) Column(name string) (*Series, error)
  (*Frame) CorrelationMatrix(names ...string) (*Matrix, error)
  (*Frame) GroupMean(by, value string) ([]Group, error)
  Series{Name, Kind string; Values []float64 (NaN = missing, nil if not numeric); Labels []string}
  (*Series) Len() int; IsNumeric() bool; Floats() []float64; Missing() int; Mean(), Std(), Min(), Max() float64
  analysis.Describe(s *Series) (Stats, error)   // Stats{Count, Mean, Std, Min, Q25, Median, Q75, Max}
  analysis.Correlation(a, b *Series) (float64, error)
  analysis.ValueCounts(s *Series) []Count       // Count{Value string; N int}
  analysis.Histogram(s *Series, bins int, title string) (Chart, error)
  analysis.BarChart(title string, labels []string, values []float64) (Chart, error)
  analysis.CountsChart(s *Series, n int, title string) Chart
  analysis.Heatmap(title string, m *Matrix) Chart
  analysis.Scatter(title string, x, y *Series) (Chart, error)
  analysis.StatsTable(title string, names []string, stats []Stats) TableArtifact
  analysis.MatrixTable(title string, m *Matrix) TableArtifact
  analysis.Show(c Chart); analysis.ShowTable(t TableArtifact)
  analysis.Printf(format string, args ...interface{}); analysis.Println(args ...interface{})

Respond with a single ` + "```go" + ` code block.`

const revisionSystemPrompt = `You fix Go analysis code that failed in a restricted interpreter.
Keep the same contract: func Analyze() error, imports limited to "analysis" and the allowed standard packages.
Change only what is needed to fix the error. Respond with a single ` + "```go" + ` code block.`

const reporterSystemPrompt = `You are a data analyst writing a markdown report.
Use the dataset profile and the outputs of each analysis task.
Structure: a title, an overview, one section per task with findings, and a conclusion.
Reference charts by the file names given. State only what the outputs support.`

const reviewerSystemPrompt = `You are an editor. Polish the markdown report below for clarity and
consistency. Keep every section, number and chart reference. Return the full report in markdown only.`

// =============================================================================
// USER PROMPTS
// =============================================================================

func plannerPrompt(sum *table.Summary) string {
	return "Dataset profile:\n\n" + sum.Text()
}

func coderPrompt(sum *table.Summary, task state.Task, draft string) string {
	var sb strings.Builder
	if sum != nil {
		sb.WriteString("Dataset profile:\n\n")
		sb.WriteString(sum.Text())
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Task: %s\n", task.Type)
	if len(task.Params) > 0 {
		fmt.Fprintf(&sb, "Parameters: %v\n", task.Params)
	}
	if task.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", task.Description)
	}
	if draft != "" {
		sb.WriteString("\nA working baseline you may improve on:\n```go\n")
		sb.WriteString(draft)
		sb.WriteString("```\n")
	}
	return sb.String()
}

func revisionPrompt(task state.Task, code string, failure *state.AttemptError) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Task: %s\n\n", task)
	sb.WriteString("Code:\n```go\n")
	sb.WriteString(code)
	sb.WriteString("\n```\n\n")
	fmt.Fprintf(&sb, "Error (%s, attempt %d):\n%s\n", failure.Kind, failure.Attempt, failure.Message)
	return sb.String()
}

func reporterPrompt(sum *table.Summary, results []state.ExecutionResult) string {
	var sb strings.Builder
	sb.WriteString("Dataset profile:\n\n")
	sb.WriteString(sum.Text())
	sb.WriteString("\nTask outputs:\n")
	for _, r := range results {
		fmt.Fprintf(&sb, "\n## Task %d: %s\n", r.TaskIndex+1, r.Task)
		sb.WriteString(excerpt(r.Stdout, stdoutExcerptLines))
		for n, c := range r.Charts {
			fmt.Fprintf(&sb, "\nChart %s: %s (%s)\n", state.ChartPath(r.TaskIndex, n), c.Title, c.Kind)
		}
		for _, t := range r.Tables {
			sb.WriteString("\n")
			sb.WriteString(markdownTable(t))
		}
	}
	return sb.String()
}
