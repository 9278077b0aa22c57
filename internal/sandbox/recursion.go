package sandbox

import (
	"go/ast"
	"go/token"
	"path"
	"sort"
	"strconv"
	"strings"
)

// Recursion inside the interpreter runs on the host goroutine stack and an
// overflow there is fatal, not a panic. No function, method or func-valued
// variable may reach itself.
//
// Names are resolved by identifier only, without type information: a local
// that shadows a top-level function still counts as a reference to it.

type callGraph struct {
	fset     *token.FileSet
	packages map[string]bool
	funcs    map[string]bool
	methods  map[string]bool
	fields   map[string]bool
	bodies   map[string][]ast.Node
	pos      map[string]token.Pos
}

func funcKey(name string) string   { return "func " + name }
func methodKey(name string) string { return "method " + name }
func fieldKey(name string) string  { return "field " + name }

// checkRecursion rejects direct and mutual recursion and func values that
// are applied to themselves.
func checkRecursion(fset *token.FileSet, file *ast.File) error {
	g := &callGraph{
		fset:     fset,
		packages: make(map[string]bool),
		funcs:    make(map[string]bool),
		methods:  make(map[string]bool),
		fields:   make(map[string]bool),
		bodies:   make(map[string][]ast.Node),
		pos:      make(map[string]token.Pos),
	}
	for _, imp := range file.Imports {
		p, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		name := path.Base(p)
		if imp.Name != nil {
			name = imp.Name.Name
		}
		g.packages[name] = true
	}
	g.collect(file)

	if err := g.checkSelfApplication(file); err != nil {
		return err
	}

	edges := make(map[string][]string, len(g.bodies))
	for key, bodies := range g.bodies {
		seen := make(map[string]bool)
		for _, body := range bodies {
			for _, ref := range g.refs(body) {
				if !seen[ref] {
					seen[ref] = true
					edges[key] = append(edges[key], ref)
				}
			}
		}
	}
	if cycle := findCycle(edges); cycle != nil {
		return policyError("%s: recursive call cycle %s; recursion is not allowed, use a loop",
			fset.Position(g.pos[cycle[0]]), strings.Join(cycle, " -> "))
	}
	return nil
}

// collect records every function-like declaration and the bodies that
// belong to it.
func (g *callGraph) collect(file *ast.File) {
	for _, decl := range file.Decls {
		fn, ok := decl.(*ast.FuncDecl)
		if !ok || fn.Body == nil {
			continue
		}
		key := funcKey(fn.Name.Name)
		if fn.Recv != nil {
			key = methodKey(fn.Name.Name)
			g.methods[fn.Name.Name] = true
		} else {
			g.funcs[fn.Name.Name] = true
		}
		g.bind(key, fn.Pos(), fn.Body)
	}

	ast.Inspect(file, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.AssignStmt:
			if len(n.Lhs) != len(n.Rhs) {
				return true
			}
			for i, lhs := range n.Lhs {
				lit, ok := n.Rhs[i].(*ast.FuncLit)
				if !ok {
					continue
				}
				switch lhs := lhs.(type) {
				case *ast.Ident:
					g.funcs[lhs.Name] = true
					g.bind(funcKey(lhs.Name), lit.Pos(), lit.Body)
				case *ast.SelectorExpr:
					g.fields[lhs.Sel.Name] = true
					g.bind(fieldKey(lhs.Sel.Name), lit.Pos(), lit.Body)
				}
			}
		case *ast.ValueSpec:
			if len(n.Names) != len(n.Values) {
				return true
			}
			for i, name := range n.Names {
				if lit, ok := n.Values[i].(*ast.FuncLit); ok {
					g.funcs[name.Name] = true
					g.bind(funcKey(name.Name), lit.Pos(), lit.Body)
				}
			}
		case *ast.KeyValueExpr:
			if key, ok := n.Key.(*ast.Ident); ok {
				if lit, ok := n.Value.(*ast.FuncLit); ok {
					g.fields[key.Name] = true
					g.bind(fieldKey(key.Name), lit.Pos(), lit.Body)
				}
			}
		}
		return true
	})
}

func (g *callGraph) bind(key string, pos token.Pos, body ast.Node) {
	g.bodies[key] = append(g.bodies[key], body)
	if _, ok := g.pos[key]; !ok {
		g.pos[key] = pos
	}
}

// refs returns the graph nodes body mentions, called or not.
func (g *callGraph) refs(body ast.Node) []string {
	var out []string
	var visit func(n ast.Node) bool
	visit = func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.SelectorExpr:
			if id, ok := n.X.(*ast.Ident); ok && g.packages[id.Name] {
				return false
			}
			if g.methods[n.Sel.Name] {
				out = append(out, methodKey(n.Sel.Name))
			}
			if g.fields[n.Sel.Name] {
				out = append(out, fieldKey(n.Sel.Name))
			}
			ast.Inspect(n.X, visit)
			return false
		case *ast.KeyValueExpr:
			if _, ok := n.Key.(*ast.Ident); ok {
				ast.Inspect(n.Value, visit)
				return false
			}
		case *ast.Ident:
			if g.funcs[n.Name] {
				out = append(out, funcKey(n.Name))
			}
		}
		return true
	}
	ast.Inspect(body, visit)
	return out
}

// checkSelfApplication rejects calls such as h(h), which recurse without
// any name referring to itself.
func (g *callGraph) checkSelfApplication(file *ast.File) error {
	var violation error
	ast.Inspect(file, func(n ast.Node) bool {
		if violation != nil {
			return false
		}
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		fn, ok := call.Fun.(*ast.Ident)
		if !ok {
			return true
		}
		for _, arg := range call.Args {
			if id, ok := arg.(*ast.Ident); ok && id.Name == fn.Name {
				violation = policyError("%s: %s is passed to itself; recursion is not allowed, use a loop",
					g.fset.Position(call.Pos()), fn.Name)
				return false
			}
		}
		return true
	})
	return violation
}

// findCycle returns one cycle in edges, first node repeated at the end, or
// nil. Traversal order is deterministic.
func findCycle(edges map[string][]string) []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int)
	var stack []string

	var visit func(n string) []string
	visit = func(n string) []string {
		color[n] = grey
		stack = append(stack, n)
		for _, m := range edges[n] {
			switch color[m] {
			case grey:
				for i, s := range stack {
					if s == m {
						return append(append([]string(nil), stack[i:]...), m)
					}
				}
			case white:
				if c := visit(m); c != nil {
					return c
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[n] = black
		return nil
	}

	keys := make([]string, 0, len(edges))
	for k := range edges {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if color[k] == white {
			if c := visit(k); c != nil {
				return c
			}
		}
	}
	return nil
}
