package graph

import (
	"path"
	"strings"

	"vimagination.zapto.org/quantum/internal/source"
)

// File is a single source module.
type File struct {
	Ref FileRef

	// Package is the package currently holding the file.
	Package PackageRef

	// Origin is the name of the package the file was loaded from; together
	// with Path it forms the full path, which never changes.
	Origin string
	Path   string

	// ID is the module id, -1 until assigned. Address is the text the
	// runtime uses to refer to the module: the id, or a hash when hash ids are
	// in use.
	ID      int
	Address string

	Entry      bool
	GlobalName string

	Statements []*Statement
	Exports    []source.Export
	Reads      map[string]bool
	Opaque     bool

	// SplitRefs names the split points that force-include the file.
	SplitRefs map[string]bool

	NeedsFileMap bool
	Removed      bool
	Hoisted      bool

	// Strict is set once the file's "use strict" directive has been moved
	// up to its bundle.
	Strict bool

	Tokens []source.Token
}

func newFile(ref FileRef, p PackageRef, origin, relPath string, tokens []source.Token) *File {
	f := &File{
		Ref:       ref,
		Package:   p,
		Origin:    origin,
		Path:      relPath,
		ID:        -1,
		SplitRefs: make(map[string]bool),
		Tokens:    tokens,
	}

	scan := source.ScanTokens(tokens)

	for _, c := range scan.Calls {
		f.Statements = append(f.Statements, newStatement(c))
	}

	f.Exports = scan.Exports
	f.Reads = scan.Reads
	f.Opaque = scan.Opaque

	return f
}

// FullPath returns the package-qualified path of the file, or the empty
// string when either part is missing.
func (f *File) FullPath() string {
	if f.Origin == "" || f.Path == "" {
		return ""
	}

	return f.Origin + "/" + f.Path
}

// Dir returns the directory of the file relative to its package.
func (f *File) Dir() string {
	return path.Dir(f.Path)
}

// Key returns the package-qualified path with any .js/.jsx extension
// removed.
func (f *File) Key() string {
	return trimExt(f.FullPath())
}

// Text returns the current (possibly rewritten) source of the file.
func (f *File) Text() string {
	return source.Join(f.Tokens)
}

// Set replaces the text of a token.
func (f *File) Set(i int, data string) {
	if i >= 0 && i < len(f.Tokens) {
		f.Tokens[i] = source.New(data)
	}
}

// ReferenceSplit records that a split point force-includes the file.
func (f *File) ReferenceSplit(name string) {
	f.SplitRefs[name] = true
}

func trimExt(p string) string {
	for _, ext := range [...]string{".jsx", ".js"} {
		if strings.HasSuffix(p, ext) {
			return strings.TrimSuffix(p, ext)
		}
	}

	return p
}
