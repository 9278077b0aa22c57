package analysis

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"
)

const truncationMarker = "\n...[output truncated]\n"

// TableArtifact is a small named table produced by generated code, such as
// a describe() grid or a group summary.
type TableArtifact struct {
	Title  string     `json:"title"`
	Header []string   `json:"header"`
	Rows   [][]string `json:"rows"`
}

// Output collects everything one attempt emits. Text beyond the byte
// limit is dropped and a truncation marker is appended once.
type Output struct {
	mu        sync.Mutex
	limit     int
	buf       strings.Builder
	truncated bool
	charts    []Chart
	tables    []TableArtifact
}

// NewOutput returns a collector. limit <= 0 means unlimited.
func NewOutput(limit int) *Output {
	return &Output{limit: limit}
}

func (o *Output) write(s string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.truncated {
		return
	}
	if o.limit > 0 && o.buf.Len()+len(s) > o.limit {
		cut := o.limit - o.buf.Len()
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		o.buf.WriteString(s[:cut])
		o.buf.WriteString(truncationMarker)
		o.truncated = true
		return
	}
	o.buf.WriteString(s)
}

// Printf formats to the collected stdout.
func (o *Output) Printf(format string, args ...interface{}) {
	o.write(fmt.Sprintf(format, args...))
}

// Println writes operands separated by spaces and a newline.
func (o *Output) Println(args ...interface{}) {
	o.write(fmt.Sprintln(args...))
}

// Show records a chart.
func (o *Output) Show(c Chart) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.charts = append(o.charts, c)
}

// ShowTable records a table artifact.
func (o *Output) ShowTable(t TableArtifact) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.tables = append(o.tables, t)
}

// Stdout returns the collected text.
func (o *Output) Stdout() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buf.String()
}

// Truncated reports whether text was dropped.
func (o *Output) Truncated() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.truncated
}

// Charts returns the recorded charts.
func (o *Output) Charts() []Chart {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Chart(nil), o.charts...)
}

// Tables returns the recorded table artifacts.
func (o *Output) Tables() []TableArtifact {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]TableArtifact(nil), o.tables...)
}

// StatsTable renders describe() output for several series as a table.
func StatsTable(title string, names []string, stats []Stats) TableArtifact {
	t := TableArtifact{
		Title:  title,
		Header: []string{"column", "count", "mean", "std", "min", "25%", "50%", "75%", "max"},
	}
	for i, s := range stats {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		t.Rows = append(t.Rows, []string{
			name, fmt.Sprint(s.Count), num(s.Mean), num(s.Std), num(s.Min),
			num(s.Q25), num(s.Median), num(s.Q75), num(s.Max),
		})
	}
	return t
}

// MatrixTable renders a labeled matrix as a table.
func MatrixTable(title string, m *Matrix) TableArtifact {
	t := TableArtifact{Title: title, Header: append([]string{""}, m.Labels...)}
	for i, row := range m.Values {
		cells := []string{m.Labels[i]}
		for _, v := range row {
			cells = append(cells, num(v))
		}
		t.Rows = append(t.Rows, cells)
	}
	return t
}

func num(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// Write implements io.Writer so interpreter builtins (print, println) land
// in the same buffer.
func (o *Output) Write(p []byte) (int, error) {
	o.write(string(p))
	return len(p), nil
}
