// Package analysis is the only non-stdlib package generated code can
// import. It exposes a read-only view of the dataset, summary statistics,
// declarative chart descriptors and an output collector.
//
// Generated code looks like:
//
//	package main
//
//	import "analysis"
//
//	func Analyze() error {
//		df := analysis.Data()
//		age, err := df.Column("age")
//		if err != nil {
//			return err
//		}
//		analysis.Show(analysis.Histogram(age, 20, "Distribution of age"))
//		return nil
//	}
package analysis

import (
	"fmt"
	"math"
	"sort"

	"datanerd/internal/table"
)

// Frame is a read-only view of the run's table. Every accessor returns
// copies, so generated code cannot modify the underlying data.
type Frame struct {
	t *table.Table
}

// NewFrame wraps t.
func NewFrame(t *table.Table) *Frame {
	return &Frame{t: t}
}

// Name returns the dataset name.
func (f *Frame) Name() string { return f.t.Name() }

// Rows returns the row count.
func (f *Frame) Rows() int { return f.t.Rows() }

// Columns returns column names in order.
func (f *Frame) Columns() []string { return f.t.ColumnNames() }

// Kind returns the kind of the named column, or "" if absent.
func (f *Frame) Kind(name string) string {
	c, ok := f.t.Column(name)
	if !ok {
		return ""
	}
	return string(c.Kind())
}

// NumericColumns lists numeric column names.
func (f *Frame) NumericColumns() []string {
	return f.columnsOf(table.KindNumeric)
}

// CategoricalColumns lists categorical and boolean column names.
func (f *Frame) CategoricalColumns() []string {
	return f.columnsOf(table.KindCategorical, table.KindBoolean)
}

func (f *Frame) columnsOf(kinds ...table.Kind) []string {
	var out []string
	for _, c := range f.t.Columns() {
		for _, k := range kinds {
			if c.Kind() == k {
				out = append(out, c.Name())
				break
			}
		}
	}
	return out
}

// Column returns a copy of the named column.
func (f *Frame) Column(name string) (*Series, error) {
	c, ok := f.t.Column(name)
	if !ok {
		return nil, fmt.Errorf("no column %q", name)
	}
	s := &Series{
		Name:   c.Name(),
		Kind:   string(c.Kind()),
		Labels: c.Strings(),
	}
	if c.Kind() == table.KindNumeric {
		s.Values = c.FloatsWithNaN()
	}
	return s, nil
}

// Series is a detached copy of one column. Values is nil for non-numeric
// columns; missing numeric rows are NaN. Labels holds the raw strings
// ("" for missing).
type Series struct {
	Name   string
	Kind   string
	Values []float64
	Labels []string
}

// Len returns the row count.
func (s *Series) Len() int { return len(s.Labels) }

// IsNumeric reports whether the series carries numeric values.
func (s *Series) IsNumeric() bool { return s.Values != nil }

// Floats returns the non-missing numeric values.
func (s *Series) Floats() []float64 {
	out := make([]float64, 0, len(s.Values))
	for _, v := range s.Values {
		if !math.IsNaN(v) {
			out = append(out, v)
		}
	}
	return out
}

// Missing returns the count of missing rows.
func (s *Series) Missing() int {
	n := 0
	for _, l := range s.Labels {
		if l == "" {
			n++
		}
	}
	return n
}

// Mean returns the mean of non-missing values.
func (s *Series) Mean() float64 { return table.Mean(s.Floats()) }

// Std returns the sample standard deviation of non-missing values.
func (s *Series) Std() float64 { return table.Std(s.Floats()) }

// Min returns the minimum non-missing value.
func (s *Series) Min() float64 {
	vals := s.Floats()
	if len(vals) == 0 {
		return math.NaN()
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Min(m, v)
	}
	return m
}

// Max returns the maximum non-missing value.
func (s *Series) Max() float64 {
	vals := s.Floats()
	if len(vals) == 0 {
		return math.NaN()
	}
	m := vals[0]
	for _, v := range vals[1:] {
		m = math.Max(m, v)
	}
	return m
}

// Stats mirrors a pandas-style describe().
type Stats struct {
	Count  int
	Mean   float64
	Std    float64
	Min    float64
	Q25    float64
	Median float64
	Q75    float64
	Max    float64
}

// Describe summarizes a numeric series.
func Describe(s *Series) (Stats, error) {
	if !s.IsNumeric() {
		return Stats{}, fmt.Errorf("column %q is %s, not numeric", s.Name, s.Kind)
	}
	d := table.Describe(s.Floats())
	return Stats{
		Count: d.Count, Mean: d.Mean, Std: d.Std, Min: d.Min,
		Q25: d.Q25, Median: d.Median, Q75: d.Q75, Max: d.Max,
	}, nil
}

// Correlation returns the Pearson correlation of two numeric series.
func Correlation(a, b *Series) (float64, error) {
	if !a.IsNumeric() || !b.IsNumeric() {
		return 0, fmt.Errorf("correlation needs numeric columns, got %s and %s", a.Kind, b.Kind)
	}
	return table.Pearson(a.Values, b.Values), nil
}

// Matrix is a labeled square matrix.
type Matrix struct {
	Labels []string
	Values [][]float64
}

// CorrelationMatrix computes pairwise Pearson correlations among the named
// columns, or among all numeric columns when none are named.
func (f *Frame) CorrelationMatrix(names ...string) (*Matrix, error) {
	if len(names) == 0 {
		names = f.NumericColumns()
	}
	if len(names) < 2 {
		return nil, fmt.Errorf("correlation matrix needs at least 2 numeric columns, got %d", len(names))
	}
	series := make([]*Series, len(names))
	for i, n := range names {
		s, err := f.Column(n)
		if err != nil {
			return nil, err
		}
		if !s.IsNumeric() {
			return nil, fmt.Errorf("column %q is %s, not numeric", n, s.Kind)
		}
		series[i] = s
	}
	m := &Matrix{Labels: append([]string(nil), names...), Values: make([][]float64, len(names))}
	for i := range series {
		m.Values[i] = make([]float64, len(names))
		for j := range series {
			if i == j {
				m.Values[i][j] = 1
				continue
			}
			if j < i {
				m.Values[i][j] = m.Values[j][i]
				continue
			}
			m.Values[i][j] = table.Pearson(series[i].Values, series[j].Values)
		}
	}
	return m, nil
}

// Count is a value and its frequency.
type Count struct {
	Value string
	N     int
}

// ValueCounts returns non-missing values by descending frequency.
func ValueCounts(s *Series) []Count {
	freq := make(map[string]int)
	for _, l := range s.Labels {
		if l != "" {
			freq[l]++
		}
	}
	out := make([]Count, 0, len(freq))
	for v, n := range freq {
		out = append(out, Count{Value: v, N: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N == out[j].N {
			return out[i].Value < out[j].Value
		}
		return out[i].N > out[j].N
	})
	return out
}

// Group is one bucket of a grouped aggregate.
type Group struct {
	Key   string
	Count int
	Mean  float64
}

// GroupMean averages the numeric column value within each distinct value
// of column by. Groups are sorted by key.
func (f *Frame) GroupMean(by, value string) ([]Group, error) {
	keys, err := f.Column(by)
	if err != nil {
		return nil, err
	}
	vals, err := f.Column(value)
	if err != nil {
		return nil, err
	}
	if !vals.IsNumeric() {
		return nil, fmt.Errorf("column %q is %s, not numeric", value, vals.Kind)
	}
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for i, k := range keys.Labels {
		if k == "" || math.IsNaN(vals.Values[i]) {
			continue
		}
		sums[k] += vals.Values[i]
		counts[k]++
	}
	out := make([]Group, 0, len(counts))
	for k, n := range counts {
		out = append(out, Group{Key: k, Count: n, Mean: sums[k] / float64(n)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}
