package sandbox

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datanerd/internal/config"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

func newTestSandbox(timeout time.Duration) *Sandbox {
	return New(Config{
		Timeout:         timeout,
		AllowedPackages: config.DefaultAllowedPackages,
		MaxOutputBytes:  4096,
	})
}

func testTable(t *testing.T) *table.Table {
	t.Helper()
	tbl, err := table.ReadCSV(strings.NewReader("city,age\nKobe,20\nOsaka,30\nKobe,40\n"), "t", 0)
	require.NoError(t, err)
	return tbl
}

func requireReason(t *testing.T, err error, want types.SandboxReason) *types.SandboxRuntimeError {
	t.Helper()
	var se *types.SandboxRuntimeError
	require.True(t, errors.As(err, &se), "expected SandboxRuntimeError, got %T: %v", err, err)
	assert.Equal(t, want, se.Reason, se.Message)
	return se
}

func TestExecute_Success(t *testing.T) {
	sb := newTestSandbox(5 * time.Second)
	code := `
import (
	"analysis"
	"fmt"
	"strings"
)

func Analyze() error {
	df := analysis.Data()
	age, err := df.Column("age")
	if err != nil {
		return err
	}
	analysis.Printf("rows=%d mean=%.1f\n", df.Rows(), age.Mean())
	analysis.Println(strings.ToUpper(fmt.Sprint("done")))
	h, err := analysis.Histogram(age, 2, "Age")
	if err != nil {
		return err
	}
	analysis.Show(h)
	return nil
}
`
	res, err := sb.Execute(context.Background(), code, testTable(t))
	require.NoError(t, err)
	assert.Equal(t, "rows=3 mean=30.0\nDONE\n", res.Stdout)
	require.Len(t, res.Charts, 1)
	assert.Equal(t, "histogram", res.Charts[0].Kind)
	assert.False(t, res.Truncated)
}

func TestExecute_PackageClauseOptional(t *testing.T) {
	sb := newTestSandbox(5 * time.Second)
	withClause := "package main\n\nimport \"analysis\"\n\nfunc Analyze() error { analysis.Printf(\"x\"); return nil }\n"
	without := "import \"analysis\"\n\nfunc Analyze() error { analysis.Printf(\"x\"); return nil }\n"

	for _, code := range []string{withClause, without} {
		res, err := sb.Execute(context.Background(), code, testTable(t))
		require.NoError(t, err)
		assert.Equal(t, "x", res.Stdout)
	}
}

func TestExecute_Failures(t *testing.T) {
	tests := []struct {
		name string
		code string
		want types.SandboxReason
	}{
		{"empty", "   ", types.ReasonCompile},
		{"syntax", "func Analyze() error { return nil", types.ReasonCompile},
		{"type error", "func Analyze() error { var x int = \"s\"; _ = x; return nil }", types.ReasonCompile},
		{"os import", "import \"os\"\n\nfunc Analyze() error { os.Exit(1); return nil }", types.ReasonPolicy},
		{"exec import", "import \"os/exec\"\n\nfunc Analyze() error { return nil }", types.ReasonPolicy},
		{"unsafe import", "import \"unsafe\"\n\nfunc Analyze() error { _ = unsafe.Sizeof(1); return nil }", types.ReasonPolicy},
		{"goroutine", "func Analyze() error { go func() {}(); return nil }", types.ReasonPolicy},
		{"main func", "func main() {}\n\nfunc Analyze() error { return nil }", types.ReasonPolicy},
		{"no entry point", "func Run() error { return nil }", types.ReasonPolicy},
		{"wrong signature", "func Analyze(x int) error { return nil }", types.ReasonPolicy},
		{"returns error", "import \"errors\"\n\nfunc Analyze() error { return errors.New(\"bad column\") }", types.ReasonRuntime},
		{"panics", "func Analyze() error { var s []int; _ = s[3]; return nil }", types.ReasonPanic},
		{"explicit panic", "func Analyze() error { panic(\"boom\") }", types.ReasonPanic},
		{"missing column", "import \"analysis\"\n\nfunc Analyze() error { _, err := analysis.Data().Column(\"nope\"); return err }", types.ReasonRuntime},
		{"fmt printf hidden", "import \"fmt\"\n\nfunc Analyze() error { fmt.Printf(\"x\"); return nil }", types.ReasonCompile},
		{"direct recursion", "func f(n int) int { return f(n+1) + 1 }\n\nfunc Analyze() error { _ = f(0); return nil }", types.ReasonPolicy},
		{"mutual recursion", "func even(n int) bool { if n == 0 { return true }; return odd(n - 1) }\n\nfunc odd(n int) bool { if n == 0 { return false }; return even(n - 1) }\n\nfunc Analyze() error { _ = even(4); return nil }", types.ReasonPolicy},
		{"entry point recursion", "func Analyze() error { return Analyze() }", types.ReasonPolicy},
		{"recursive closure", "func Analyze() error { var walk func(int) int; walk = func(n int) int { return walk(n + 1) }; _ = walk(0); return nil }", types.ReasonPolicy},
		{"recursive method", "type node struct{}\n\nfunc (x node) depth() int { return x.depth() + 1 }\n\nfunc Analyze() error { _ = node{}.depth(); return nil }", types.ReasonPolicy},
		{"recursive field", "type box struct{ f func() }\n\nfunc Analyze() error { b := &box{}; b.f = func() { b.f() }; b.f(); return nil }", types.ReasonPolicy},
		{"self application", "type F func(F)\n\nfunc Analyze() error { var g F = func(h F) { h(h) }; g(g); return nil }", types.ReasonPolicy},
	}

	sb := newTestSandbox(5 * time.Second)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sb.Execute(context.Background(), tt.code, testTable(t))
			requireReason(t, err, tt.want)
		})
	}
}

func TestExecute_HelpersWithoutRecursion(t *testing.T) {
	sb := newTestSandbox(5 * time.Second)
	code := `
import (
	"analysis"
	"fmt"
)

type row struct{ n int }

func (r row) Sprintf() string { return fmt.Sprintf("n=%d", r.n) }

func label(r row) string { return r.Sprintf() }

func total(n int) int {
	sum := 0
	for i := 0; i < n; i++ {
		sum += len(label(row{i}))
	}
	return sum
}

func Analyze() error {
	double := func(x int) int { return 2 * x }
	analysis.Printf("%d\n", double(total(3)))
	return nil
}
`
	res, err := sb.Execute(context.Background(), code, testTable(t))
	require.NoError(t, err)
	assert.Equal(t, "18\n", res.Stdout)
}

func TestCheckRecursion_ReportsCycle(t *testing.T) {
	sb := newTestSandbox(time.Second)
	src := normalize("func a() { b() }\n\nfunc b() { c() }\n\nfunc c() { a() }\n\nfunc Analyze() error { a(); return nil }")
	se := requireReason(t, sb.checkPolicy(src), types.ReasonPolicy)
	assert.Contains(t, se.Message, "func a -> func b -> func c -> func a")
}

func TestExecute_Timeout(t *testing.T) {
	sb := newTestSandbox(200 * time.Millisecond)
	code := "func Analyze() error { n := 0; for { n++ } }"

	start := time.Now()
	_, err := sb.Execute(context.Background(), code, testTable(t))
	se := requireReason(t, err, types.ReasonTimeout)
	assert.ErrorIs(t, se, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestExecute_ParentCancelled(t *testing.T) {
	sb := newTestSandbox(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := sb.Execute(ctx, "func Analyze() error { for {} }", testTable(t))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, types.IsRetryable(err))
}

func TestExecute_FreshInterpreterPerAttempt(t *testing.T) {
	sb := newTestSandbox(5 * time.Second)
	code := `
import "analysis"

var calls int

func Analyze() error {
	calls++
	analysis.Printf("%d", calls)
	return nil
}
`
	for i := 0; i < 3; i++ {
		res, err := sb.Execute(context.Background(), code, testTable(t))
		require.NoError(t, err)
		assert.Equal(t, "1", res.Stdout, "state must not leak between attempts")
	}
}

func TestExecute_OutputBounded(t *testing.T) {
	sb := New(Config{Timeout: 5 * time.Second, AllowedPackages: config.DefaultAllowedPackages, MaxOutputBytes: 16})
	code := `
import "analysis"

func Analyze() error {
	for i := 0; i < 100; i++ {
		analysis.Printf("line %d\n", i)
	}
	return nil
}
`
	res, err := sb.Execute(context.Background(), code, testTable(t))
	require.NoError(t, err)
	assert.True(t, res.Truncated)
	assert.True(t, strings.HasPrefix(res.Stdout, "line 0\nline 1\nli"))
}

func TestNew_IgnoresUnknownPackages(t *testing.T) {
	sb := New(Config{AllowedPackages: []string{"strings", "not/a/pkg"}})
	assert.Equal(t, []string{"analysis", "strings"}, sb.allowedList())
}
