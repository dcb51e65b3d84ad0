// Package shake removes files no entry point can reach, and export
// assignments nothing reads.
//
// Whenever reachability cannot be decided, such as when a live file
// dispatches a computed require, everything is kept.
package shake

import (
	"github.com/rs/zerolog"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/source"
)

// Options controls shaking.
type Options struct {
	// ShouldRemove is asked about each unreachable file; returning false keeps
	// it. A nil ShouldRemove removes every unreachable file.
	ShouldRemove func(fullPath string) bool

	// Roots are extra files to keep, such as split entries.
	Roots []*graph.File
}

type shaker struct {
	g       *graph.Graph
	a       *api.API
	dynamic map[graph.FileRef]bool
	roots   map[graph.FileRef]bool
}

// Run marks unreachable files Removed and strips unread exports from the
// rest. It returns the full paths of the removed files.
func Run(g *graph.Graph, a *api.API, zl zerolog.Logger, o Options) []string {
	s := &shaker{
		g:       g,
		a:       a,
		dynamic: make(map[graph.FileRef]bool),
		roots:   make(map[graph.FileRef]bool),
	}

	for _, f := range o.Roots {
		s.roots[f.Ref] = true
	}

	for _, f := range g.Files() {
		if f.Removed {
			continue
		}

		if f.Entry || s.claimed(f) {
			s.roots[f.Ref] = true
		}

		for _, st := range f.Statements {
			if st.Kind == graph.DynamicImport && st.Resolved() {
				s.dynamic[st.Target] = true
				s.roots[st.Target] = true
			}
		}
	}

	var reachable map[graph.FileRef]bool

	for {
		reachable = s.reach()

		for ref := range reachable {
			if g.File(ref).NeedsFileMap {
				zl.Info().Str("file", g.File(ref).FullPath()).Msg("computed require found, keeping all files")

				return nil
			}
		}

		vetoed := false

		for _, f := range g.Files() {
			if !f.Removed && !reachable[f.Ref] && o.ShouldRemove != nil && !o.ShouldRemove(f.FullPath()) {
				s.roots[f.Ref] = true
				vetoed = true
			}
		}

		if !vetoed {
			break
		}
	}

	var removed []string

	for _, f := range g.Files() {
		if !f.Removed && !reachable[f.Ref] {
			f.Removed = true
			removed = append(removed, f.FullPath())

			zl.Debug().Str("file", f.FullPath()).Msg("removed")
		}
	}

	exports := 0

	for _, f := range g.Files() {
		if !f.Removed {
			exports += s.exports(f)
		}
	}

	zl.Info().Int("files", len(removed)).Int("exports", exports).Msg("tree shaken")

	return removed
}

func (s *shaker) claimed(f *graph.File) bool {
	fp := f.FullPath()

	return s.a.Claims(fp) || s.a.Mapped(fp)
}

func (s *shaker) reach() map[graph.FileRef]bool {
	reachable := make(map[graph.FileRef]bool)
	queue := make([]graph.FileRef, 0, len(s.roots))

	for ref := range s.roots {
		reachable[ref] = true
		queue = append(queue, ref)
	}

	for len(queue) > 0 {
		f := s.g.File(queue[0])
		queue = queue[1:]

		for _, st := range f.Statements {
			if st.Resolved() && !reachable[st.Target] {
				reachable[st.Target] = true
				queue = append(queue, st.Target)
			}
		}
	}

	return reachable
}

// exports strips the assignment target from each exports.NAME = statement
// whose NAME no requirer reads, leaving the assigned expression in place.
func (s *shaker) exports(f *graph.File) int {
	if f.Opaque || f.Entry || len(f.Exports) == 0 || s.dynamic[f.Ref] || s.claimed(f) {
		return 0
	}

	used, ok := s.used(f)
	if !ok {
		return 0
	}

	n := 0

	for _, e := range f.Exports {
		if !e.Removable || used[e.Name] || f.Reads[e.Name] {
			continue
		}

		if t := source.At(f.Tokens, e.Start); !t.Is("exports") && !t.Is("module") {
			continue
		}

		source.Blank(f.Tokens, e.Start+1, e.Assign)
		f.Set(e.Start, "0,")

		n++
	}

	return n
}

// used collects the export names the requirers of f read. It reports false
// when some requirer uses the module object in a way that hides which names
// it reads.
func (s *shaker) used(f *graph.File) (map[string]bool, bool) {
	used := make(map[string]bool)

	for _, r := range s.g.Files() {
		if r.Removed {
			continue
		}

		for _, st := range r.Statements {
			if st.Target != f.Ref {
				continue
			}

			switch {
			case st.Kind != graph.Require:
				return nil, false
			case st.Member != "":
				used[st.Member] = true
			case st.Binding != "":
				if !members(r.Tokens, st, used) {
					return nil, false
				}
			default:
				return nil, false
			}
		}
	}

	return used, true
}

// members records every name read off the variable a require is bound to. It
// reports false if the variable is used other than as the base of a member
// access.
func members(tokens []source.Token, st *graph.Statement, used map[string]bool) bool {
	decl := source.Prev(tokens, source.Prev(tokens, st.Callee))

	for i, t := range tokens {
		if i == decl || t.Kind != source.Ident || !t.Is(st.Binding) || source.At(tokens, source.Prev(tokens, i)).Is(".") {
			continue
		}

		dot := source.Next(tokens, i)
		name := source.Next(tokens, dot)

		if !source.At(tokens, dot).Is(".") || source.At(tokens, name).Kind != source.Ident {
			return false
		}

		used[tokens[name].Data] = true
	}

	return true
}
