package analysis

import (
	"encoding/json"
	"fmt"
	"math"

	"datanerd/internal/table"
)

// Chart kinds.
const (
	ChartHistogram = "histogram"
	ChartBar       = "bar"
	ChartHeatmap   = "heatmap"
	ChartScatter   = "scatter"
)

const maxBins = 100

// Chart is a declarative chart descriptor. Rendering is left to consumers;
// descriptors are archived as JSON next to the report.
type Chart struct {
	Kind   string      `json:"kind"`
	Title  string      `json:"title"`
	XLabel string      `json:"x_label,omitempty"`
	YLabel string      `json:"y_label,omitempty"`
	Labels []string    `json:"labels,omitempty"`
	Values []float64   `json:"values,omitempty"`
	X      []float64   `json:"x,omitempty"`
	Y      []float64   `json:"y,omitempty"`
	Matrix [][]float64 `json:"matrix,omitempty"`
}

// MarshalJSON encodes NaN values, such as the correlation of a constant
// column, as null.
func (c Chart) MarshalJSON() ([]byte, error) {
	var matrix [][]*float64
	for _, row := range c.Matrix {
		matrix = append(matrix, table.NullableSlice(row))
	}
	return json.Marshal(struct {
		Kind   string       `json:"kind"`
		Title  string       `json:"title"`
		XLabel string       `json:"x_label,omitempty"`
		YLabel string       `json:"y_label,omitempty"`
		Labels []string     `json:"labels,omitempty"`
		Values []*float64   `json:"values,omitempty"`
		X      []*float64   `json:"x,omitempty"`
		Y      []*float64   `json:"y,omitempty"`
		Matrix [][]*float64 `json:"matrix,omitempty"`
	}{
		c.Kind, c.Title, c.XLabel, c.YLabel, c.Labels,
		table.NullableSlice(c.Values), table.NullableSlice(c.X), table.NullableSlice(c.Y), matrix,
	})
}

// Histogram bins the non-missing values of a numeric series into equal
// width buckets. Labels hold "lo-hi" ranges, Values hold counts.
func Histogram(s *Series, bins int, title string) (Chart, error) {
	if !s.IsNumeric() {
		return Chart{}, fmt.Errorf("histogram needs a numeric column, %q is %s", s.Name, s.Kind)
	}
	if bins <= 0 {
		bins = 20
	}
	if bins > maxBins {
		bins = maxBins
	}
	vals := s.Floats()
	c := Chart{Kind: ChartHistogram, Title: title, XLabel: s.Name, YLabel: "count"}
	if len(vals) == 0 {
		return c, nil
	}
	lo, hi := s.Min(), s.Max()
	if lo == hi {
		c.Labels = []string{formatEdge(lo)}
		c.Values = []float64{float64(len(vals))}
		return c, nil
	}
	width := (hi - lo) / float64(bins)
	c.Values = make([]float64, bins)
	c.Labels = make([]string, bins)
	for i := 0; i < bins; i++ {
		c.Labels[i] = formatEdge(lo+float64(i)*width) + "-" + formatEdge(lo+float64(i+1)*width)
	}
	for _, v := range vals {
		i := int(math.Floor((v - lo) / width))
		if i >= bins {
			i = bins - 1
		}
		c.Values[i]++
	}
	return c, nil
}

func formatEdge(v float64) string {
	return fmt.Sprintf("%.4g", v)
}

// BarChart builds a bar chart from parallel labels and values.
func BarChart(title string, labels []string, values []float64) (Chart, error) {
	if len(labels) != len(values) {
		return Chart{}, fmt.Errorf("bar chart has %d labels and %d values", len(labels), len(values))
	}
	return Chart{
		Kind:   ChartBar,
		Title:  title,
		Labels: append([]string(nil), labels...),
		Values: append([]float64(nil), values...),
	}, nil
}

// CountsChart is a bar chart of the top n value counts of a series.
func CountsChart(s *Series, n int, title string) Chart {
	counts := ValueCounts(s)
	if n > 0 && len(counts) > n {
		counts = counts[:n]
	}
	c := Chart{Kind: ChartBar, Title: title, XLabel: s.Name, YLabel: "count"}
	for _, vc := range counts {
		c.Labels = append(c.Labels, vc.Value)
		c.Values = append(c.Values, float64(vc.N))
	}
	return c
}

// Heatmap renders a matrix such as a correlation matrix.
func Heatmap(title string, m *Matrix) Chart {
	c := Chart{Kind: ChartHeatmap, Title: title, Labels: append([]string(nil), m.Labels...)}
	c.Matrix = make([][]float64, len(m.Values))
	for i, row := range m.Values {
		c.Matrix[i] = append([]float64(nil), row...)
	}
	return c
}

// Scatter plots two numeric series against each other, skipping rows where
// either is missing.
func Scatter(title string, x, y *Series) (Chart, error) {
	if !x.IsNumeric() || !y.IsNumeric() {
		return Chart{}, fmt.Errorf("scatter needs numeric columns, got %s and %s", x.Kind, y.Kind)
	}
	c := Chart{Kind: ChartScatter, Title: title, XLabel: x.Name, YLabel: y.Name}
	n := len(x.Values)
	if len(y.Values) < n {
		n = len(y.Values)
	}
	for i := 0; i < n; i++ {
		if math.IsNaN(x.Values[i]) || math.IsNaN(y.Values[i]) {
			continue
		}
		c.X = append(c.X, x.Values[i])
		c.Y = append(c.Y, y.Values[i])
	}
	return c, nil
}
