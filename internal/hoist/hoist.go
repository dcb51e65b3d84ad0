// Package hoist lifts module bodies out of their wrapper functions into the
// bundle scope.
//
// A hoisted file runs once when its bundle loads, its top-level names becoming
// names of the bundle scope. Any file that might behave differently there, or
// whose names could clash with another file's, stays wrapped.
package hoist

import (
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/source"
)

// Options controls hoisting.
type Options struct {
	// Names, when set, limits hoisting to files that declare only these
	// names.
	Names []string

	// Variable is the name of the runtime API object.
	Variable string
}

// ModuleVar returns the name of the variable a hoisted file's module object
// is bound to.
func ModuleVar(variable string, f *graph.File) string {
	return variable + "_m" + strconv.Itoa(f.ID)
}

type candidate struct {
	f        *graph.File
	declared []string
	deps     []graph.FileRef
}

// Run hoists every eligible file. It returns, per bundle, the hoisted files
// with dependencies before dependents.
func Run(g *graph.Graph, zl zerolog.Logger, o Options) map[graph.BundleRef][]*graph.File {
	dynamic := make(map[graph.FileRef]bool)

	for _, f := range g.Files() {
		for _, st := range f.Statements {
			if st.Kind == graph.DynamicImport && st.Resolved() {
				dynamic[st.Target] = true
			}
		}
	}

	var allowed map[string]bool

	if len(o.Names) > 0 {
		allowed = make(map[string]bool, len(o.Names))

		for _, n := range o.Names {
			allowed[n] = true
		}
	}

	order := make(map[graph.BundleRef][]*graph.File)

	for _, b := range g.Bundles() {
		var (
			live     []*graph.File
			idents   = make(map[graph.FileRef]map[string]bool)
			cands    = make(map[graph.FileRef]*candidate)
			required = make(map[graph.FileRef]bool)
		)

		for _, f := range g.FilesIn(b.Ref) {
			if f.Removed {
				continue
			}

			live = append(live, f)
			idents[f.Ref] = source.Idents(f.Tokens)

			for _, st := range f.Statements {
				if st.Kind == graph.Require && !st.Computed && st.Resolved() && st.Target != f.Ref {
					required[st.Target] = true
				}
			}
		}

		for _, f := range live {
			if dynamic[f.Ref] || !required[f.Ref] {
				continue
			}

			if c, ok := eligible(g, f, b.Ref, o.Variable, allowed); ok {
				cands[f.Ref] = c
			}
		}

		hoisted := settle(cands, live, idents)

		for _, f := range hoisted {
			f.Hoisted = true

			rename(f, ModuleVar(o.Variable, f))

			zl.Debug().Str("bundle", b.Name).Str("file", f.FullPath()).Msg("hoisted")
		}

		if len(hoisted) > 0 {
			order[b.Ref] = hoisted
		}
	}

	return order
}

// reserved holds the names the runtime and the entry start code read from the
// bundle scope.
var reserved = map[string]bool{
	"window":     true,
	"global":     true,
	"self":       true,
	"document":   true,
	"require":    true,
	"module":     true,
	"exports":    true,
	"Promise":    true,
	"Error":      true,
	"undefined":  true,
	"__dirname":  true,
	"__filename": true,
}

func eligible(g *graph.Graph, f *graph.File, b graph.BundleRef, variable string, allowed map[string]bool) (*candidate, bool) {
	if f.Entry || f.NeedsFileMap || !scopeSafe(f.Tokens) {
		return nil, false
	}

	c := &candidate{f: f}

	for _, st := range f.Statements {
		if st.Computed || st.Kind != graph.Require || !st.Resolved() {
			return nil, false
		}

		t := g.File(st.Target)
		if bb := g.BundleOf(t); bb == nil || bb.Ref != b {
			return nil, false
		}

		c.deps = append(c.deps, st.Target)
	}

	declared, ok, err := source.TopLevel(f.Text())
	if err != nil || !ok {
		return nil, false
	}

	for _, name := range declared {
		if reserved[name] || strings.HasPrefix(name, variable) || (allowed != nil && !allowed[name]) {
			return nil, false
		}
	}

	c.declared = declared

	return c, true
}

// scopeSafe rejects files that rely on having their own function scope:
// eval, a this or arguments outside any function body, or module/exports used
// as values. Object literals, class bodies, template holes and arrow functions
// do not bind this, so only function and method bodies count.
func scopeSafe(tokens []source.Token) bool {
	var (
		frames []bool
		funcs  int
	)

	pop := func() {
		if n := len(frames); n > 0 {
			if frames[n-1] {
				funcs--
			}

			frames = frames[:n-1]
		}
	}

	for i, t := range tokens {
		if !t.Significant() {
			continue
		}

		switch t.Kind {
		case source.Punct:
			switch t.Data {
			case "{":
				fn := functionBody(tokens, i)
				if fn {
					funcs++
				}

				frames = append(frames, fn)
			case "}":
				pop()
			}
		case source.Template:
			if strings.HasPrefix(t.Data, "}") {
				pop()
			}

			if strings.HasSuffix(t.Data, "${") {
				frames = append(frames, false)
			}
		case source.Ident:
			if source.At(tokens, source.Prev(tokens, i)).Is(".") {
				continue
			}

			switch t.Data {
			case "eval":
				return false
			case "this", "arguments":
				if funcs == 0 {
					return false
				}
			case "module", "exports":
				if n := source.At(tokens, source.Next(tokens, i)); !n.Is(".") && !n.Is("[") {
					return false
				}
			}
		}
	}

	return true
}

var controlWords = map[string]bool{
	"if":     true,
	"for":    true,
	"while":  true,
	"switch": true,
	"catch":  true,
	"with":   true,
}

// functionBody reports whether the brace at i opens the body of a function
// expression, declaration or method.
func functionBody(tokens []source.Token, i int) bool {
	closeParen := source.Prev(tokens, i)
	if !source.At(tokens, closeParen).Is(")") {
		return false
	}

	open := opening(tokens, closeParen)
	if open < 0 {
		return false
	}

	before := source.At(tokens, source.Prev(tokens, open))

	return before.Kind == source.Ident && before.Significant() && !controlWords[before.Data]
}

// opening finds the parenthesis matching the one closed at end.
func opening(tokens []source.Token, end int) int {
	depth := 0

	for i := end; i >= 0; i-- {
		if tokens[i].Kind != source.Punct {
			continue
		}

		switch tokens[i].Data {
		case ")":
			depth++
		case "(":
			if depth--; depth == 0 {
				return i
			}
		}
	}

	return -1
}

// settle narrows the candidates until every survivor requires only other
// survivors, none is part of a cycle, and no survivor declares a name another
// live file of the bundle uses.
func settle(cands map[graph.FileRef]*candidate, live []*graph.File, idents map[graph.FileRef]map[string]bool) []*graph.File {
	for {
		changed := false

		for ref, c := range cands {
			for _, d := range c.deps {
				if _, ok := cands[d]; !ok {
					delete(cands, ref)

					changed = true

					break
				}
			}
		}

		if changed {
			continue
		}

		ordered, cyclic := topo(cands)

		for _, ref := range cyclic {
			delete(cands, ref)

			changed = true
		}

		if changed {
			continue
		}

		for _, c := range ordered {
			if collides(c, live, idents) {
				delete(cands, c.f.Ref)

				changed = true
			}
		}

		if !changed {
			files := make([]*graph.File, len(ordered))

			for n, c := range ordered {
				files[n] = c.f
			}

			return files
		}
	}
}

func collides(c *candidate, live []*graph.File, idents map[graph.FileRef]map[string]bool) bool {
	for _, f := range live {
		if f.Ref == c.f.Ref {
			continue
		}

		for _, name := range c.declared {
			if idents[f.Ref][name] {
				return true
			}
		}
	}

	return false
}

// topo orders the candidates dependencies first, breaking ties by file
// order, and returns the ones that are part of (or depend on) a cycle
// separately.
func topo(cands map[graph.FileRef]*candidate) ([]*candidate, []graph.FileRef) {
	pending := make(map[graph.FileRef]int, len(cands))
	dependents := make(map[graph.FileRef][]graph.FileRef)

	for ref, c := range cands {
		seen := make(map[graph.FileRef]bool)

		for _, d := range c.deps {
			if d != ref && !seen[d] {
				seen[d] = true
				pending[ref]++
				dependents[d] = append(dependents[d], ref)
			} else if d == ref {
				pending[ref]++
			}
		}
	}

	var (
		ready   []graph.FileRef
		ordered []*candidate
	)

	for _, ref := range slices.Sorted(maps.Keys(cands)) {
		if pending[ref] == 0 {
			ready = append(ready, ref)
		}
	}

	for len(ready) > 0 {
		ref := ready[0]
		ready = ready[1:]
		ordered = append(ordered, cands[ref])

		var next []graph.FileRef

		for _, d := range dependents[ref] {
			if pending[d]--; pending[d] == 0 {
				next = append(next, d)
			}
		}

		ready = append(ready, next...)

		slices.Sort(ready)
	}

	var cyclic []graph.FileRef

	for _, ref := range slices.Sorted(maps.Keys(cands)) {
		if pending[ref] > 0 {
			cyclic = append(cyclic, ref)
		}
	}

	return ordered, cyclic
}

// rename points the module and exports identifiers of a hoisted file at the
// module object the bundle declares for it.
func rename(f *graph.File, moduleVar string) {
	for i, t := range f.Tokens {
		if t.Kind != source.Ident || !t.Significant() || source.At(f.Tokens, source.Prev(f.Tokens, i)).Is(".") {
			continue
		}

		switch t.Data {
		case "module":
			f.Set(i, moduleVar)
		case "exports":
			f.Set(i, moduleVar+".exports")
		}
	}
}
