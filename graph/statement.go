package graph

import (
	"path"
	"strings"

	"vimagination.zapto.org/quantum/internal/source"
)

// StatementKind distinguishes require calls from dynamic imports.
type StatementKind uint8

// Statement kinds.
const (
	Require StatementKind = iota
	DynamicImport
)

// Statement is one require or import call-site inside a file.
type Statement struct {
	Kind  StatementKind
	Value string

	NodeModule        bool
	NodeModuleName    string
	NodeModulePartial string

	// Computed is set when the argument is not a string literal.
	Computed bool

	// Token indices of the call within the owning file.
	Callee, Open, Arg, Close int

	Member  string
	Binding string

	// Outcome. At most one of Target, CustomID, or a computed dispatch
	// (FunctionName set on a Computed statement) holds.
	Target       FileRef
	CustomID     string
	FunctionName string
	BoundID      string
}

func newStatement(c source.Call) *Statement {
	s := &Statement{
		Kind:     Require,
		Value:    c.Value,
		Computed: c.Computed(),
		Callee:   c.Callee,
		Open:     c.Open,
		Arg:      c.Arg,
		Close:    c.Close,
		Member:   c.Member,
		Binding:  c.Binding,
		Target:   NoFile,
	}

	if c.Kind == source.Import {
		s.Kind = DynamicImport
	}

	if !s.Computed && !isPathLike(s.Value) {
		s.NodeModule = true
		s.NodeModuleName, s.NodeModulePartial = splitModule(s.Value)
	}

	return s
}

func isPathLike(v string) bool {
	return strings.HasPrefix(v, ".") || strings.HasPrefix(v, "/") || strings.HasPrefix(v, "~/")
}

func splitModule(v string) (string, string) {
	parts := strings.SplitN(v, "/", 3)

	if strings.HasPrefix(v, "@") && len(parts) > 1 {
		name := parts[0] + "/" + parts[1]
		if len(parts) == 3 {
			return name, parts[2]
		}

		return name, ""
	}

	name, partial, _ := strings.Cut(v, "/")

	return name, partial
}

// Resolved reports whether the statement targets a file in the graph.
func (s *Statement) Resolved() bool {
	return s.Target != NoFile
}

// Dispatched reports whether the statement was rewritten to the computed
// dispatcher.
func (s *Statement) Dispatched() bool {
	return s.Computed && s.FunctionName != "" && s.CustomID == "" && s.Target == NoFile
}

// Path returns the package-qualified path the statement refers to, before any
// extension or index lookup. It is empty for computed statements.
func (s *Statement) Path(from *File) string {
	switch {
	case s.Computed:
		return ""
	case s.NodeModule:
		return path.Join(s.NodeModuleName, s.NodeModulePartial)
	case strings.HasPrefix(s.Value, "~/"):
		return path.Join(from.Origin, s.Value[2:])
	case strings.HasPrefix(s.Value, "/"):
		return path.Join(from.Origin, s.Value)
	}

	return path.Join(from.Origin, from.Dir(), s.Value)
}

var suffixes = [...]string{"", ".js", ".jsx", ".json", ".css", "/index.js", "/index.jsx"}

// Resolve finds the file a statement refers to.
func (g *Graph) Resolve(from *File, s *Statement) (*File, bool) {
	if s.Computed {
		return nil, false
	}

	base := s.Path(from)

	if s.NodeModule && s.NodeModulePartial == "" {
		if entry, ok := g.entries[s.NodeModuleName]; ok {
			base = path.Join(s.NodeModuleName, entry)
		}
	}

	return g.LookupPath(base)
}

// LookupPath finds a file by package-qualified path, trying the extensions
// and index files a require may omit.
func (g *Graph) LookupPath(base string) (*File, bool) {
	for _, suffix := range suffixes {
		if f, ok := g.Lookup(base + suffix); ok {
			return f, true
		}
	}

	return nil, false
}

// RequireKey returns the file-info key for a statement: the key of the file
// it resolved to, or the package-qualified path it names.
func (g *Graph) RequireKey(from *File, s *Statement) string {
	if t := g.File(s.Target); t != nil {
		return t.Key()
	}

	if s.NodeModule && s.NodeModulePartial == "" {
		if entry, ok := g.entries[s.NodeModuleName]; ok {
			return trimExt(path.Join(s.NodeModuleName, entry))
		}
	}

	return trimExt(s.Path(from))
}
