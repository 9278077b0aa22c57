package agents

import (
	"bytes"
	"fmt"
	"strconv"
	"text/template"

	"datanerd/internal/state"
)

// Task types understood by the planner and coder.
const (
	TaskBasicInfo         = "basic_info"
	TaskHistogram         = "histogram"
	TaskBarChart          = "bar_chart"
	TaskCorrelationMatrix = "correlation_matrix"
	TaskScatterMatrix     = "scatter_matrix"
	TaskScatter           = "scatter"
	TaskGroupSummary      = "group_summary"
	// TaskCustom has no template; its code must come from the LLM.
	TaskCustom = "custom"
)

const (
	defaultBins = 20
	defaultTop  = 10
)

// =============================================================================
// CODE TEMPLATES
// =============================================================================

var codeTemplates = map[string]string{
	TaskBasicInfo: `import "analysis"

func Analyze() error {
	df := analysis.Data()
	cols := df.Columns()
	analysis.Printf("=== Basic information ===\n")
	analysis.Printf("Dataset: %s\n", df.Name())
	analysis.Printf("Shape: %d rows x %d columns\n", df.Rows(), len(cols))

	analysis.Printf("\n=== Column kinds and missing values ===\n")
	var missing []float64
	total := 0
	for _, name := range cols {
		s, err := df.Column(name)
		if err != nil {
			return err
		}
		n := s.Missing()
		total += n
		missing = append(missing, float64(n))
		analysis.Printf("%-20s %-12s missing=%d\n", name, df.Kind(name), n)
	}

	numeric := df.NumericColumns()
	if len(numeric) > 0 {
		var stats []analysis.Stats
		for _, name := range numeric {
			s, err := df.Column(name)
			if err != nil {
				return err
			}
			st, err := analysis.Describe(s)
			if err != nil {
				return err
			}
			stats = append(stats, st)
		}
		analysis.ShowTable(analysis.StatsTable("Numeric summary", numeric, stats))
	}

	if total > 0 {
		c, err := analysis.BarChart("Missing values per column", cols, missing)
		if err != nil {
			return err
		}
		analysis.Show(c)
		return nil
	}

	kinds := map[string]float64{}
	var order []string
	for _, name := range cols {
		k := df.Kind(name)
		if _, ok := kinds[k]; !ok {
			order = append(order, k)
		}
		kinds[k]++
	}
	var counts []float64
	for _, k := range order {
		counts = append(counts, kinds[k])
	}
	c, err := analysis.BarChart("Column kinds", order, counts)
	if err != nil {
		return err
	}
	analysis.Show(c)
	return nil
}
`,

	TaskHistogram: `import "analysis"

func Analyze() error {
	s, err := analysis.Data().Column({{q .Column}})
	if err != nil {
		return err
	}
	h, err := analysis.Histogram(s, {{.Bins}}, {{q .Title}})
	if err != nil {
		return err
	}
	analysis.Show(h)

	st, err := analysis.Describe(s)
	if err != nil {
		return err
	}
	analysis.Printf("Histogram of %s: n=%d mean=%.4g std=%.4g min=%.4g max=%.4g\n",
		s.Name, st.Count, st.Mean, st.Std, st.Min, st.Max)
	return nil
}
`,

	TaskBarChart: `import "analysis"

func Analyze() error {
	s, err := analysis.Data().Column({{q .Column}})
	if err != nil {
		return err
	}
	analysis.Show(analysis.CountsChart(s, {{.Top}}, {{q .Title}}))

	counts := analysis.ValueCounts(s)
	analysis.Printf("Bar chart of %s: %d distinct values\n", s.Name, len(counts))
	for i, c := range counts {
		if i >= {{.Top}} {
			break
		}
		analysis.Printf("  %s: %d\n", c.Value, c.N)
	}
	return nil
}
`,

	TaskCorrelationMatrix: `import "analysis"

func Analyze() error {
	m, err := analysis.Data().CorrelationMatrix({{range .Columns}}{{q .}}, {{end}})
	if err != nil {
		return err
	}
	analysis.Show(analysis.Heatmap({{q .Title}}, m))
	analysis.ShowTable(analysis.MatrixTable({{q .Title}}, m))
	analysis.Printf("Correlation matrix over %d numeric columns\n", len(m.Labels))
	return nil
}
`,

	TaskScatterMatrix: `import "analysis"

func Analyze() error {
	df := analysis.Data()
	names := []string{
		{{range .Columns}}{{q .}},
		{{end}}
	}
	for i := 0; i < len(names); i++ {
		x, err := df.Column(names[i])
		if err != nil {
			return err
		}
		for j := i + 1; j < len(names); j++ {
			y, err := df.Column(names[j])
			if err != nil {
				return err
			}
			c, err := analysis.Scatter(names[i]+" vs "+names[j], x, y)
			if err != nil {
				return err
			}
			analysis.Show(c)
		}
	}
	analysis.Printf("Scatter matrix over %d columns\n", len(names))
	return nil
}
`,

	TaskScatter: `import "analysis"

func Analyze() error {
	df := analysis.Data()
	x, err := df.Column({{q .X}})
	if err != nil {
		return err
	}
	y, err := df.Column({{q .Y}})
	if err != nil {
		return err
	}
	c, err := analysis.Scatter({{q .Title}}, x, y)
	if err != nil {
		return err
	}
	analysis.Show(c)

	r, err := analysis.Correlation(x, y)
	if err != nil {
		return err
	}
	analysis.Printf("%s vs %s: %d points, pearson r=%.3f\n", x.Name, y.Name, len(c.X), r)
	return nil
}
`,

	TaskGroupSummary: `import (
	"analysis"
	"fmt"
)

func Analyze() error {
	groups, err := analysis.Data().GroupMean({{q .By}}, {{q .Value}})
	if err != nil {
		return err
	}
	t := analysis.TableArtifact{Title: {{q .Title}}, Header: []string{ {{q .By}}, "count", "mean" }}
	var labels []string
	var means []float64
	for _, g := range groups {
		labels = append(labels, g.Key)
		means = append(means, g.Mean)
		t.Rows = append(t.Rows, []string{g.Key, fmt.Sprint(g.Count), fmt.Sprintf("%.4g", g.Mean)})
	}
	c, err := analysis.BarChart({{q .Title}}, labels, means)
	if err != nil {
		return err
	}
	analysis.Show(c)
	analysis.ShowTable(t)
	analysis.Printf("Mean of %s by %s across %d groups\n", {{q .Value}}, {{q .By}}, len(groups))
	return nil
}
`,
}

var parsedTemplates = func() map[string]*template.Template {
	funcs := template.FuncMap{"q": strconv.Quote}
	out := make(map[string]*template.Template, len(codeTemplates))
	for name, src := range codeTemplates {
		out[name] = template.Must(template.New(name).Funcs(funcs).Parse(src))
	}
	return out
}()

type templateData struct {
	Column  string
	Columns []string
	X, Y    string
	By      string
	Value   string
	Title   string
	Bins    int
	Top     int
}

func newTemplateData(task state.Task) templateData {
	d := templateData{
		Column: task.Column(),
		X:      paramString(task, "x"),
		Y:      paramString(task, "y"),
		By:     paramString(task, "by"),
		Value:  paramString(task, "value"),
		Title:  paramString(task, "title"),
		Bins:   paramInt(task, "bins", defaultBins),
		Top:    paramInt(task, "top", defaultTop),
	}
	for _, c := range task.Columns() {
		if c != d.Column && c != d.X && c != d.Y && c != d.By && c != d.Value {
			d.Columns = append(d.Columns, c)
		}
	}
	if d.Title == "" {
		d.Title = defaultTitle(task.Type, d)
	}
	return d
}

func defaultTitle(taskType string, d templateData) string {
	switch taskType {
	case TaskHistogram:
		return "Distribution of " + d.Column
	case TaskBarChart:
		return fmt.Sprintf("Distribution of %s (top %d)", d.Column, d.Top)
	case TaskCorrelationMatrix:
		return "Correlation matrix"
	case TaskScatter:
		return d.X + " vs " + d.Y
	case TaskGroupSummary:
		return fmt.Sprintf("Mean %s by %s", d.Value, d.By)
	}
	return taskType
}

// RenderTemplate returns the deterministic code for task. ok is false for
// task types without a template.
func RenderTemplate(task state.Task) (code string, ok bool) {
	tmpl, found := parsedTemplates[task.Type]
	if !found {
		return "", false
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, newTemplateData(task)); err != nil {
		return "", false
	}
	return buf.String(), true
}

// HasTemplate reports whether taskType has deterministic code.
func HasTemplate(taskType string) bool {
	_, ok := codeTemplates[taskType]
	return ok
}

func paramString(task state.Task, key string) string {
	if s, ok := task.Params[key].(string); ok {
		return s
	}
	return ""
}

func paramInt(task state.Task, key string, def int) int {
	switch v := task.Params[key].(type) {
	case int:
		if v > 0 {
			return v
		}
	case float64:
		if v > 0 {
			return int(v)
		}
	}
	return def
}
