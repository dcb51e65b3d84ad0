package rewrite

import (
	"fmt"
	"strings"

	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/source"
)

func checkCall(f *graph.File, s *graph.Statement) error {
	n := len(f.Tokens)

	switch {
	case s.Callee < 0, s.Open <= s.Callee, s.Close <= s.Open, s.Close >= n,
		!s.Computed && (s.Arg <= s.Open || s.Arg >= s.Close),
		!strings.HasPrefix(f.Tokens[s.Open].Data, "("),
		f.Tokens[s.Close].Data != ")":
		return fmt.Errorf("statement %q at token %d: %w", s.Value, s.Callee, ErrMalformedStatement)
	}

	return nil
}

// ResolveStatements points each require at its target: $fsx.r(id) for a file
// in the graph, $fsx.c(file, expr) for a computed require no rule could
// answer. Requires that cannot be resolved are left alone and warned about.
func ResolveStatements(c *Context, f *graph.File) error {
	for _, s := range f.Statements {
		if s.Kind != graph.Require {
			continue
		}

		if err := checkCall(f, s); err != nil {
			return err
		} else if f.Tokens[s.Callee].Data != "require" {
			continue
		}

		if s.Computed {
			c.computed(f, s)

			continue
		}

		if t, ok := c.Graph.Resolve(f, s); ok {
			s.Target = t.Ref

			f.Set(s.Callee, c.API.Variable()+".r")
			f.Set(s.Arg, t.Address)

			continue
		}

		if !s.NodeModule || !c.Target.Node() {
			c.Log.AddWarning(f.FullPath(), fmt.Sprintf("statement %q has failed to resolve", s.Value))
		}
	}

	return nil
}

func (c *Context) computed(f *graph.File, s *graph.Statement) {
	v := c.API.Variable()
	fp := f.FullPath()
	expr := strings.TrimSpace(source.Join(f.Tokens[s.Open+1 : s.Close]))

	for _, r := range c.Rules {
		if r.Resolve == nil || r.Files == nil || !r.Files.Match(fp) {
			continue
		}

		id, ok := r.Resolve(fp, expr)
		if !ok {
			continue
		}

		addr := source.Quote(id)

		if t, ok := c.Graph.LookupPath(id); ok {
			s.Target = t.Ref
			addr = t.Address
		} else {
			s.CustomID = id
		}

		source.Blank(f.Tokens, s.Open+1, s.Close-1)
		f.Set(s.Open, "("+addr)
		f.Set(s.Callee, v+".r")

		return
	}

	s.FunctionName = v + ".c"
	s.BoundID = f.Address
	f.NeedsFileMap = true

	f.Set(s.Callee, s.FunctionName)
	f.Set(s.Open, "("+f.Address+", ")
	c.API.UseFileMap()
}

// DynamicImports turns import("x") into a call to the asynchronous loader,
// $fsx.l(id), which fetches the split bundle holding id when it is not yet
// loaded.
func DynamicImports(c *Context, f *graph.File) error {
	for _, s := range f.Statements {
		if s.Kind != graph.DynamicImport {
			continue
		}

		if err := checkCall(f, s); err != nil {
			return err
		} else if f.Tokens[s.Callee].Data != "import" {
			continue
		}

		t, ok := c.Graph.Resolve(f, s)
		if !ok {
			c.Log.AddWarning(f.FullPath(), fmt.Sprintf("dynamic import %q has failed to resolve", s.Value))

			continue
		}

		s.Target = t.Ref

		f.Set(s.Callee, c.API.Variable()+".l")
		f.Set(s.Arg, t.Address)
	}

	return nil
}
