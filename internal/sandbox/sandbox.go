// Package sandbox executes generated analysis code in a yaegi interpreter.
//
// Each attempt gets a fresh interpreter whose symbol table holds only an
// allow-listed slice of the standard library plus the analysis package bound
// to that attempt's read-only frame and output collector. No os, net,
// os/exec, syscall, unsafe, reflect, io or time symbols are reachable.
// Execution is bounded by a wall-clock timeout.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"
	"strings"
	"testing/fstest"
	"time"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"datanerd/internal/analysis"
	"datanerd/internal/logging"
	"datanerd/internal/table"
	"datanerd/internal/types"
)

// fmtAllowed restricts fmt to pure formatting; printing goes through
// analysis.Printf so it can be captured and bounded.
var fmtAllowed = map[string]bool{
	"Sprintf":  true,
	"Sprint":   true,
	"Sprintln": true,
	"Errorf":   true,
	"Stringer": true,
}

// Config configures a Sandbox.
type Config struct {
	Timeout         time.Duration
	AllowedPackages []string
	MaxOutputBytes  int
}

// Result is what one successful execution produced.
type Result struct {
	Stdout    string
	Charts    []analysis.Chart
	Tables    []analysis.TableArtifact
	Truncated bool
	Duration  time.Duration
}

// Sandbox executes generated code. It holds no per-run state and is safe
// for concurrent use.
type Sandbox struct {
	timeout   time.Duration
	allowed   map[string]bool
	maxOutput int
	symbols   interp.Exports
}

// New creates a Sandbox. Packages without yaegi stdlib symbols are ignored.
func New(cfg Config) *Sandbox {
	s := &Sandbox{
		timeout:   cfg.Timeout,
		allowed:   make(map[string]bool),
		maxOutput: cfg.MaxOutputBytes,
		symbols:   make(interp.Exports),
	}
	for _, pkg := range cfg.AllowedPackages {
		key := pkg + "/" + path.Base(pkg)
		syms, ok := stdlib.Symbols[key]
		if !ok {
			logging.Get(logging.CategorySandbox).Warn("no interpreter symbols for %q, not exposing it", pkg)
			continue
		}
		filtered := make(map[string]reflect.Value, len(syms))
		for name, v := range syms {
			if pkg == "fmt" && !fmtAllowed[name] {
				continue
			}
			filtered[name] = v
		}
		s.allowed[pkg] = true
		s.symbols[key] = filtered
	}
	return s
}

// Execute runs code against t. The code must define func Analyze() error;
// a package clause is optional. Any failure is a *types.SandboxRuntimeError
// unless ctx itself was cancelled, in which case ctx.Err() is returned
// wrapped.
func (s *Sandbox) Execute(ctx context.Context, code string, t *table.Table) (*Result, error) {
	start := time.Now()
	if strings.TrimSpace(code) == "" {
		return nil, &types.SandboxRuntimeError{Reason: types.ReasonCompile, Message: "no code to execute"}
	}

	src := normalize(code)
	if err := s.checkPolicy(src); err != nil {
		logging.SandboxDebug("policy rejected code: %v", err)
		return nil, err
	}

	parent := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	sess := analysis.NewSession(t, s.maxOutput)
	i := interp.New(interp.Options{
		Stdout:               sess.Output(),
		Stderr:               sess.Output(),
		Env:                  []string{},
		SourcecodeFilesystem: fstest.MapFS{},
	})
	if err := i.Use(s.symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib symbols: %w", err)
	}
	if err := i.Use(analysis.Symbols(sess)); err != nil {
		return nil, fmt.Errorf("failed to load analysis symbols: %w", err)
	}

	if _, err := i.EvalWithContext(ctx, src); err != nil {
		return nil, s.classify(parent, ctx, err, types.ReasonCompile, start)
	}

	res, err := i.EvalWithContext(ctx, "main."+EntryPoint+"()")
	if err != nil {
		return nil, s.classify(parent, ctx, err, types.ReasonRuntime, start)
	}
	if res.IsValid() && res.CanInterface() {
		if rerr, ok := res.Interface().(error); ok && rerr != nil {
			return nil, &types.SandboxRuntimeError{
				Reason:  types.ReasonRuntime,
				Message: fmt.Sprintf("%s returned error: %v", EntryPoint, rerr),
				Elapsed: time.Since(start),
				Err:     rerr,
			}
		}
	}

	out := sess.Output()
	result := &Result{
		Stdout:    out.Stdout(),
		Charts:    out.Charts(),
		Tables:    out.Tables(),
		Truncated: out.Truncated(),
		Duration:  time.Since(start),
	}
	logging.SandboxDebug("execution ok in %v: %d bytes stdout, %d charts, %d tables",
		result.Duration, len(result.Stdout), len(result.Charts), len(result.Tables))
	return result, nil
}

func (s *Sandbox) classify(parent, ctx context.Context, err error, phase types.SandboxReason, start time.Time) error {
	elapsed := time.Since(start)

	if errors.Is(parent.Err(), context.Canceled) {
		return fmt.Errorf("sandbox execution cancelled: %w", parent.Err())
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &types.SandboxRuntimeError{
			Reason:  types.ReasonTimeout,
			Message: fmt.Sprintf("execution exceeded %v", s.timeout),
			Elapsed: elapsed,
			Err:     ctx.Err(),
		}
	}

	if p, ok := asPanic(err); ok {
		return &types.SandboxRuntimeError{
			Reason:  types.ReasonPanic,
			Message: fmt.Sprintf("panic: %v", p.Value),
			Elapsed: elapsed,
			Err:     err,
		}
	}

	return &types.SandboxRuntimeError{
		Reason:  phase,
		Message: err.Error(),
		Elapsed: elapsed,
		Err:     err,
	}
}

func asPanic(err error) (interp.Panic, bool) {
	var p interp.Panic
	if errors.As(err, &p) {
		return p, true
	}
	var pp *interp.Panic
	if errors.As(err, &pp) && pp != nil {
		return *pp, true
	}
	return interp.Panic{}, false
}
