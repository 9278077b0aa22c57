package analysis

import (
	"reflect"

	"datanerd/internal/table"
)

// ImportPath is the path generated code uses to import this package.
const ImportPath = "analysis"

// Session binds one attempt's frame and output collector. A fresh Session
// is created for every execution attempt.
type Session struct {
	frame  *Frame
	output *Output
}

// NewSession creates a session over t with an output byte limit.
func NewSession(t *table.Table, outputLimit int) *Session {
	return &Session{frame: NewFrame(t), output: NewOutput(outputLimit)}
}

// Data returns the read-only frame.
func (s *Session) Data() *Frame { return s.frame }

// Output returns the collector.
func (s *Session) Output() *Output { return s.output }

// Symbols returns the interpreter export table for this session, keyed the
// way yaegi expects ("importpath/pkgname").
func Symbols(s *Session) map[string]map[string]reflect.Value {
	out := s.output
	return map[string]map[string]reflect.Value{
		ImportPath + "/analysis": {
			// session-bound
			"Data":      reflect.ValueOf(s.Data),
			"Printf":    reflect.ValueOf(out.Printf),
			"Println":   reflect.ValueOf(out.Println),
			"Show":      reflect.ValueOf(out.Show),
			"ShowTable": reflect.ValueOf(out.ShowTable),

			// pure functions
			"Describe":    reflect.ValueOf(Describe),
			"Correlation": reflect.ValueOf(Correlation),
			"ValueCounts": reflect.ValueOf(ValueCounts),
			"Histogram":   reflect.ValueOf(Histogram),
			"BarChart":    reflect.ValueOf(BarChart),
			"CountsChart": reflect.ValueOf(CountsChart),
			"Heatmap":     reflect.ValueOf(Heatmap),
			"Scatter":     reflect.ValueOf(Scatter),
			"StatsTable":  reflect.ValueOf(StatsTable),
			"MatrixTable": reflect.ValueOf(MatrixTable),

			// types
			"Frame":         reflect.ValueOf((*Frame)(nil)),
			"Series":        reflect.ValueOf((*Series)(nil)),
			"Stats":         reflect.ValueOf((*Stats)(nil)),
			"Matrix":        reflect.ValueOf((*Matrix)(nil)),
			"Count":         reflect.ValueOf((*Count)(nil)),
			"Group":         reflect.ValueOf((*Group)(nil)),
			"Chart":         reflect.ValueOf((*Chart)(nil)),
			"TableArtifact": reflect.ValueOf((*TableArtifact)(nil)),
		},
	}
}
