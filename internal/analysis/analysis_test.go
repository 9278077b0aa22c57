package analysis

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/table"
)

func testFrame(t *testing.T) *Frame {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader(
		"city,age,income\nKobe,20,100\nKobe,30,200\nOsaka,40,NA\nKyoto,50,400\n"), "people", 0)
	require.NoError(t, err)
	return NewFrame(tbl)
}

func TestFrameAccessors(t *testing.T) {
	f := testFrame(t)
	assert.Equal(t, 4, f.Rows())
	assert.Equal(t, []string{"city", "age", "income"}, f.Columns())
	assert.Equal(t, []string{"age", "income"}, f.NumericColumns())
	assert.Equal(t, []string{"city"}, f.CategoricalColumns())
	assert.Equal(t, "numeric", f.Kind("age"))
	assert.Empty(t, f.Kind("nope"))

	_, err := f.Column("nope")
	assert.Error(t, err)
}

func TestSeriesIsCopy(t *testing.T) {
	f := testFrame(t)
	s, err := f.Column("age")
	require.NoError(t, err)

	s.Values[0] = 999
	s.Labels[0] = "mutated"

	again, err := f.Column("age")
	require.NoError(t, err)
	assert.Equal(t, 20.0, again.Values[0])
	assert.Equal(t, "20", again.Labels[0])
}

func TestSeriesStats(t *testing.T) {
	f := testFrame(t)
	inc, _ := f.Column("income")
	assert.Equal(t, 1, inc.Missing())
	assert.Equal(t, []float64{100, 200, 400}, inc.Floats())
	assert.Equal(t, 100.0, inc.Min())
	assert.Equal(t, 400.0, inc.Max())

	st, err := Describe(inc)
	require.NoError(t, err)
	assert.Equal(t, 3, st.Count)
	assert.InDelta(t, 233.333, st.Mean, 1e-3)

	city, _ := f.Column("city")
	_, err = Describe(city)
	assert.Error(t, err)
}

func TestCorrelationMatrix(t *testing.T) {
	f := testFrame(t)
	m, err := f.CorrelationMatrix()
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "income"}, m.Labels)
	assert.Equal(t, 1.0, m.Values[0][0])
	assert.Equal(t, m.Values[0][1], m.Values[1][0])
	assert.InDelta(t, 1.0, m.Values[0][1], 1e-9, "income is linear in age on complete rows")

	_, err = f.CorrelationMatrix("age")
	assert.Error(t, err)
	_, err = f.CorrelationMatrix("age", "city")
	assert.Error(t, err)
}

func TestValueCountsAndGroupMean(t *testing.T) {
	f := testFrame(t)
	city, _ := f.Column("city")
	assert.Equal(t, []Count{{"Kobe", 2}, {"Kyoto", 1}, {"Osaka", 1}}, ValueCounts(city))

	groups, err := f.GroupMean("city", "income")
	require.NoError(t, err)
	assert.Equal(t, []Group{{"Kobe", 2, 150}, {"Kyoto", 1, 400}}, groups)
}

func TestHistogram(t *testing.T) {
	f := testFrame(t)
	age, _ := f.Column("age")

	c, err := Histogram(age, 3, "Age")
	require.NoError(t, err)
	assert.Equal(t, ChartHistogram, c.Kind)
	assert.Len(t, c.Labels, 3)
	assert.Equal(t, []float64{1, 1, 2}, c.Values)

	var total float64
	for _, v := range c.Values {
		total += v
	}
	assert.Equal(t, 4.0, total)

	city, _ := f.Column("city")
	_, err = Histogram(city, 3, "x")
	assert.Error(t, err)
}

func TestScatterSkipsMissing(t *testing.T) {
	f := testFrame(t)
	age, _ := f.Column("age")
	inc, _ := f.Column("income")
	c, err := Scatter("age vs income", age, inc)
	require.NoError(t, err)
	assert.Equal(t, []float64{20, 30, 50}, c.X)
	assert.Equal(t, []float64{100, 200, 400}, c.Y)
}

func TestBarChartValidation(t *testing.T) {
	_, err := BarChart("x", []string{"a"}, []float64{1, 2})
	assert.Error(t, err)

	c, err := BarChart("x", []string{"a", "b"}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, ChartBar, c.Kind)
}

func TestOutputTruncates(t *testing.T) {
	o := NewOutput(10)
	o.Printf("%s", "hello ")
	o.Println("world", 42)
	o.Printf("dropped")

	assert.True(t, o.Truncated())
	assert.Equal(t, "hello worl"+truncationMarker, o.Stdout())
}

func TestOutputTruncatesOnRuneBoundary(t *testing.T) {
	o := NewOutput(4)
	o.Printf("abcé€")

	assert.True(t, o.Truncated())
	assert.Equal(t, "abc"+truncationMarker, o.Stdout())
	assert.True(t, utf8.ValidString(o.Stdout()))
}

func TestOutputCollectsArtifacts(t *testing.T) {
	o := NewOutput(0)
	o.Show(Chart{Kind: ChartBar, Title: "a"})
	o.ShowTable(StatsTable("describe", []string{"x"}, []Stats{{Count: 1, Mean: 2}}))
	_, _ = o.Write([]byte("builtin\n"))

	require.Len(t, o.Charts(), 1)
	require.Len(t, o.Tables(), 1)
	assert.Equal(t, []string{"x", "1", "2"}, o.Tables()[0].Rows[0][:3])
	assert.Equal(t, "builtin\n", o.Stdout())
}

func TestMatrixTable(t *testing.T) {
	m := &Matrix{Labels: []string{"a", "b"}, Values: [][]float64{{1, 0.5}, {0.5, 1}}}
	tbl := MatrixTable("corr", m)
	assert.Equal(t, []string{"", "a", "b"}, tbl.Header)
	assert.Equal(t, []string{"b", "0.5", "1"}, tbl.Rows[1])

	h := Heatmap("corr", m)
	m.Values[0][1] = math.NaN()
	assert.Equal(t, 0.5, h.Matrix[0][1], "heatmap keeps its own copy")
}

func TestSymbolsExposeSessionBindings(t *testing.T) {
	tbl := table.SampleCustomers(10, 1)
	sess := NewSession(tbl, 0)
	syms := Symbols(sess)

	pkg, ok := syms["analysis/analysis"]
	require.True(t, ok)
	for _, name := range []string{"Data", "Printf", "Show", "Histogram", "Frame", "Chart"} {
		assert.Contains(t, pkg, name)
	}

	data := pkg["Data"].Interface().(func() *Frame)
	assert.Equal(t, 10, data().Rows())

	printf := pkg["Printf"].Interface().(func(string, ...interface{}))
	printf("rows=%d", 10)
	assert.Equal(t, "rows=10", sess.Output().Stdout())
}

func TestChartJSONEncodesNaNAsNull(t *testing.T) {
	c := Heatmap("corr", &Matrix{Labels: []string{"a", "b"}, Values: [][]float64{{1, math.NaN()}, {math.NaN(), 1}}})
	data, err := json.Marshal(c)
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"heatmap","title":"corr","labels":["a","b"],"matrix":[[1,null],[null,1]]}`, string(data))
}
