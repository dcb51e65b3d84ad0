// Package split moves the code behind each declared split point into a
// bundle of its own.
//
// A split point takes its entry file and every file whose requirers are all
// already taken, repeated until nothing more can be taken. Files still needed
// from elsewhere stay where they are, so the split bundle only ever holds code
// that nothing outside it requires.
package split

import (
	"cmp"
	"fmt"
	"maps"
	"slices"

	"github.com/rs/zerolog"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/logger"
)

// Bit is a declared split point.
type Bit struct {
	Name  string
	Entry string

	// Filled in by Run.
	Bundle   graph.BundleRef
	Files    []*graph.File
	Packages []*graph.Package
}

type state struct {
	g         *graph.Graph
	log       *logger.Log
	info      map[string]*graph.File
	requirers map[string]map[string]bool
	warned    map[string]bool
}

// Run resolves and relocates each bit in order. Bits that cannot be split
// are warned about and left with no files.
func Run(g *graph.Graph, log *logger.Log, zl zerolog.Logger, bits []*Bit) error {
	for _, bit := range bits {
		entry, ok := g.LookupPath(bit.Entry)
		if !ok {
			log.AddWarning(bit.Entry, fmt.Sprintf("split %q: entry file not found", bit.Name))

			continue
		} else if entry.Entry {
			log.AddWarning(entry.FullPath(), fmt.Sprintf("split %q: the program entry cannot be split", bit.Name))

			continue
		}

		s := newState(g, log)

		closure, ok := s.resolve(bit, entry)
		if !ok {
			continue
		}

		s.relocate(bit, closure)

		zl.Info().Str("bundle", bit.Name).Int("files", len(bit.Files)).Int("packages", len(bit.Packages)).Msg("split")
	}

	return nil
}

func newState(g *graph.Graph, log *logger.Log) *state {
	s := &state{
		g:         g,
		log:       log,
		info:      make(map[string]*graph.File),
		requirers: make(map[string]map[string]bool),
		warned:    make(map[string]bool),
	}

	for _, f := range g.Files() {
		if f.Removed {
			continue
		}

		if b := g.BundleOf(f); b != nil && !b.Split {
			s.info[f.Key()] = f
		}

		for _, st := range f.Statements {
			if st.Kind != graph.Require || !st.Resolved() {
				continue
			}

			key := g.RequireKey(f, st)

			r, ok := s.requirers[key]
			if !ok {
				r = make(map[string]bool)
				s.requirers[key] = r
			}

			r[f.Key()] = true
		}
	}

	return s
}

func (s *state) resolve(bit *Bit, entry *graph.File) (map[string]*graph.File, bool) {
	included := map[string]*graph.File{entry.Key(): entry}

	if _, ok := s.info[entry.Key()]; !ok {
		s.log.AddWarning(entry.FullPath(), fmt.Sprintf("split %q: entry is already in a split bundle", bit.Name))

		return nil, false
	}

	for changed := true; changed; {
		changed = false

		for _, key := range slices.Sorted(maps.Keys(included)) {
			f := included[key]

			for _, st := range f.Statements {
				if st.Kind != graph.Require || !st.Resolved() {
					continue
				}

				req := s.g.RequireKey(f, st)
				if _, ok := included[req]; ok {
					continue
				}

				target, ok := s.info[req]
				if !ok {
					if !s.warned[req] {
						s.warned[req] = true
						s.log.AddWarning(f.FullPath(), fmt.Sprintf("split %q: %s is passed, no file information", bit.Name, req))
					}

					continue
				}

				if s.allIncluded(req, included) {
					included[req] = target
					changed = true
				}
			}
		}
	}

	for r := range s.requirers[entry.Key()] {
		if _, ok := included[r]; !ok {
			s.log.AddWarning(entry.FullPath(), fmt.Sprintf("split %q: entry is required statically from %s, skipping", bit.Name, r))

			return nil, false
		}
	}

	return included, true
}

func (s *state) allIncluded(key string, included map[string]*graph.File) bool {
	for r := range s.requirers[key] {
		if _, ok := included[r]; !ok {
			return false
		}
	}

	return true
}

func (s *state) relocate(bit *Bit, closure map[string]*graph.File) {
	b := s.g.BundleByName(bit.Name)
	if b == nil {
		b = s.g.Bundle(s.g.AddBundle(bit.Name))
	}

	b.Split = true
	bit.Bundle = b.Ref

	byPackage := make(map[graph.PackageRef][]*graph.File)

	for _, f := range closure {
		byPackage[f.Package] = append(byPackage[f.Package], f)
	}

	for _, ref := range slices.Sorted(maps.Keys(byPackage)) {
		p := s.g.Package(ref)
		files := byPackage[ref]

		slices.SortFunc(files, func(a, b *graph.File) int {
			return cmp.Compare(a.Ref, b.Ref)
		})

		if live(s.g.FilesOf(ref)) == len(files) {
			s.g.MovePackage(p, b.Ref)
			bit.Packages = append(bit.Packages, p)
		} else {
			dst := s.g.PackageIn(b.Ref, p.Name, p.EntryFile)

			for _, f := range files {
				s.g.MoveFile(f, dst.Ref)
			}
		}

		for _, f := range files {
			f.ReferenceSplit(bit.Name)
		}

		bit.Files = append(bit.Files, files...)
	}
}

func live(files []*graph.File) int {
	n := 0

	for _, f := range files {
		if !f.Removed {
			n++
		}
	}

	return n
}
