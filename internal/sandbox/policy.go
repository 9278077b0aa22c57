package sandbox

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"sort"
	"strconv"
	"strings"

	"datanerd/internal/analysis"
	"datanerd/internal/types"
)

// EntryPoint is the function generated code must define.
const EntryPoint = "Analyze"

// normalize adds a package clause when the code omits one.
func normalize(code string) string {
	trimmed := strings.TrimSpace(code)
	if strings.HasPrefix(trimmed, "package ") {
		return code
	}
	return "package main\n\n" + code
}

// checkPolicy parses the source and rejects anything the interpreter must
// never see: imports outside the allow-list, goroutines, recursion and a
// missing or malformed entry point. Syntax errors are reported as compile
// failures.
func (s *Sandbox) checkPolicy(src string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "analysis.go", src, parser.AllErrors)
	if err != nil {
		return &types.SandboxRuntimeError{Reason: types.ReasonCompile, Message: err.Error(), Err: err}
	}

	if file.Name.Name != "main" {
		return policyError("package must be main, got %q", file.Name.Name)
	}

	var forbidden []string
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return policyError("malformed import %s", imp.Path.Value)
		}
		if imp.Name != nil && imp.Name.Name == "." {
			return policyError("dot import of %q is not allowed", path)
		}
		if path == analysis.ImportPath {
			continue
		}
		if !s.allowed[path] {
			forbidden = append(forbidden, path)
		}
	}
	if len(forbidden) > 0 {
		return policyError("forbidden imports %v (allowed: %v)", forbidden, s.allowedList())
	}

	var violation error
	ast.Inspect(file, func(n ast.Node) bool {
		if violation != nil {
			return false
		}
		switch n := n.(type) {
		case *ast.GoStmt:
			violation = policyError("%s: go statements are not allowed", fset.Position(n.Pos()))
		case *ast.FuncDecl:
			if n.Recv == nil && n.Name.Name == "main" {
				violation = policyError("%s: func main is not allowed; define func %s() error", fset.Position(n.Pos()), EntryPoint)
			}
		}
		return true
	})
	if violation != nil {
		return violation
	}

	if err := checkEntryPoint(file); err != nil {
		return err
	}
	return checkRecursion(fset, file)
}

func checkEntryPoint(file *ast.File) error {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Recv != nil || fn.Name.Name != EntryPoint {
			continue
		}
		if fn.Type.Params != nil && len(fn.Type.Params.List) > 0 {
			return policyError("func %s must take no parameters", EntryPoint)
		}
		res := fn.Type.Results
		if res == nil || len(res.List) != 1 || len(res.List[0].Names) > 1 {
			return policyError("func %s must return exactly one error", EntryPoint)
		}
		if id, ok := res.List[0].Type.(*ast.Ident); !ok || id.Name != "error" {
			return policyError("func %s must return error", EntryPoint)
		}
		return nil
	}
	return policyError("missing entry point: define func %s() error", EntryPoint)
}

func policyError(format string, args ...interface{}) error {
	return &types.SandboxRuntimeError{Reason: types.ReasonPolicy, Message: fmt.Sprintf(format, args...)}
}

func (s *Sandbox) allowedList() []string {
	out := make([]string, 0, len(s.allowed)+1)
	out = append(out, analysis.ImportPath)
	for p := range s.allowed {
		out = append(out, p)
	}
	sort.Strings(out[1:])
	return out
}
