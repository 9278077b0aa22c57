package table

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"datanerd/internal/types"
)

// topValuesLimit is how many most-frequent values a categorical profile keeps.
const topValuesLimit = 5

// ValueCount is a distinct value and its frequency.
type ValueCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// NumericStats describes a numeric column.
type NumericStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// MarshalJSON encodes undefined statistics (NaN) as null.
func (n NumericStats) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Count  int      `json:"count"`
		Mean   *float64 `json:"mean"`
		Std    *float64 `json:"std"`
		Min    *float64 `json:"min"`
		Q25    *float64 `json:"q25"`
		Median *float64 `json:"median"`
		Q75    *float64 `json:"q75"`
		Max    *float64 `json:"max"`
	}{
		n.Count, Nullable(n.Mean), Nullable(n.Std), Nullable(n.Min),
		Nullable(n.Q25), Nullable(n.Median), Nullable(n.Q75), Nullable(n.Max),
	})
}

// ColumnProfile summarizes one column.
type ColumnProfile struct {
	Name      string        `json:"name"`
	Kind      Kind          `json:"kind"`
	Count     int           `json:"count"`
	Missing   int           `json:"missing"`
	Unique    int           `json:"unique"`
	Numeric   *NumericStats `json:"numeric,omitempty"`
	TopValues []ValueCount  `json:"top_values,omitempty"`
}

// Summary is the structured description of a dataset produced before
// planning.
type Summary struct {
	Dataset     string          `json:"dataset"`
	Rows        int             `json:"rows"`
	Cols        int             `json:"cols"`
	Duplicates  int             `json:"duplicates"`
	MemoryBytes int             `json:"memory_bytes"`
	Columns     []ColumnProfile `json:"columns"`
	// Narrative holds optional free-form observations appended after
	// profiling.
	Narrative string `json:"narrative,omitempty"`
}

// Profile computes the dataset summary. An empty table or one without
// columns is a *types.DataError.
func Profile(t *Table) (*Summary, error) {
	if t == nil {
		return nil, &types.DataError{Reason: "no table loaded"}
	}
	if t.NumCols() == 0 {
		return nil, &types.DataError{Reason: "table has no columns"}
	}
	if t.Rows() == 0 {
		return nil, &types.DataError{Reason: "table has no rows"}
	}

	s := &Summary{
		Dataset:    t.Name(),
		Rows:       t.Rows(),
		Cols:       t.NumCols(),
		Duplicates: countDuplicates(t),
	}

	for _, c := range t.Columns() {
		p := ColumnProfile{
			Name:    c.Name(),
			Kind:    c.Kind(),
			Missing: c.MissingCount(),
		}
		p.Count = c.Len() - p.Missing

		freq := make(map[string]int)
		for i := 0; i < c.Len(); i++ {
			if c.IsMissing(i) {
				continue
			}
			freq[c.Str(i)]++
			s.MemoryBytes += len(c.Str(i))
		}
		p.Unique = len(freq)

		switch c.Kind() {
		case KindNumeric:
			s.MemoryBytes += 8 * c.Len()
			p.Numeric = describe(c.Floats())
		case KindCategorical, KindBoolean:
			p.TopValues = topValues(freq, topValuesLimit)
		}
		s.Columns = append(s.Columns, p)
	}
	return s, nil
}

func describe(vals []float64) *NumericStats {
	st := &NumericStats{Count: len(vals)}
	if len(vals) == 0 {
		nan := math.NaN()
		st.Mean, st.Std, st.Min, st.Q25, st.Median, st.Q75, st.Max = nan, nan, nan, nan, nan, nan, nan
		return st
	}
	sorted := Sorted(vals)
	st.Mean = Mean(vals)
	st.Std = Std(vals)
	st.Min = sorted[0]
	st.Q25 = Quantile(sorted, 0.25)
	st.Median = Quantile(sorted, 0.5)
	st.Q75 = Quantile(sorted, 0.75)
	st.Max = sorted[len(sorted)-1]
	return st
}

// Describe computes count, mean, std, min, quartiles and max.
func Describe(vals []float64) NumericStats {
	return *describe(vals)
}

func topValues(freq map[string]int, limit int) []ValueCount {
	out := make([]ValueCount, 0, len(freq))
	for v, n := range freq {
		out = append(out, ValueCount{Value: v, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// ValueCounts returns every distinct non-missing value of c by descending
// frequency.
func ValueCounts(c *Column) []ValueCount {
	freq := make(map[string]int)
	for i := 0; i < c.Len(); i++ {
		if !c.IsMissing(i) {
			freq[c.Str(i)]++
		}
	}
	return topValues(freq, 0)
}

func countDuplicates(t *Table) int {
	seen := make(map[string]struct{}, t.Rows())
	dups := 0
	for i := 0; i < t.Rows(); i++ {
		key := strings.Join(t.Row(i), "\x1f")
		if _, ok := seen[key]; ok {
			dups++
			continue
		}
		seen[key] = struct{}{}
	}
	return dups
}

// Column returns the profile of the named column, or nil.
func (s *Summary) Column(name string) *ColumnProfile {
	for i := range s.Columns {
		if s.Columns[i].Name == name {
			return &s.Columns[i]
		}
	}
	return nil
}

// HasColumn reports whether the dataset has a column with this name.
func (s *Summary) HasColumn(name string) bool {
	return s.Column(name) != nil
}

// NumericColumns lists numeric column names in table order.
func (s *Summary) NumericColumns() []string {
	return s.columnsOf(KindNumeric)
}

// CategoricalColumns lists categorical and boolean column names.
func (s *Summary) CategoricalColumns() []string {
	return s.columnsOf(KindCategorical, KindBoolean)
}

func (s *Summary) columnsOf(kinds ...Kind) []string {
	var out []string
	for _, c := range s.Columns {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, c.Name)
				break
			}
		}
	}
	return out
}

// Text renders the summary as plain text for prompts and reports.
func (s *Summary) Text() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Dataset: %s\n", s.Dataset)
	fmt.Fprintf(&sb, "Shape: %d rows x %d columns\n", s.Rows, s.Cols)
	fmt.Fprintf(&sb, "Duplicate rows: %d\n", s.Duplicates)
	fmt.Fprintf(&sb, "Approximate memory: %.1f KB\n", float64(s.MemoryBytes)/1024)
	sb.WriteString("\nColumns:\n")
	for _, c := range s.Columns {
		fmt.Fprintf(&sb, "- %s (%s): %d non-null, %d missing, %d unique", c.Name, c.Kind, c.Count, c.Missing, c.Unique)
		if n := c.Numeric; n != nil && n.Count > 0 {
			fmt.Fprintf(&sb, "; mean=%.4g std=%.4g min=%.4g 25%%=%.4g 50%%=%.4g 75%%=%.4g max=%.4g",
				n.Mean, n.Std, n.Min, n.Q25, n.Median, n.Q75, n.Max)
		}
		if len(c.TopValues) > 0 {
			parts := make([]string, len(c.TopValues))
			for i, tv := range c.TopValues {
				parts[i] = fmt.Sprintf("%s (%d)", tv.Value, tv.Count)
			}
			fmt.Fprintf(&sb, "; top: %s", strings.Join(parts, ", "))
		}
		sb.WriteString("\n")
	}
	if s.Narrative != "" {
		sb.WriteString("\nObservations:\n")
		sb.WriteString(strings.TrimSpace(s.Narrative))
		sb.WriteString("\n")
	}
	return sb.String()
}
