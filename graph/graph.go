// Package graph holds the bundle/package/file/statement model that the build
// stages annotate and rearrange.
//
// Bundles, packages and files live in arenas on the Graph and are addressed
// by stable handles. Each package records the bundle that currently holds it
// and each file the package that currently holds it, so moving either is a
// single field update.
package graph

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"vimagination.zapto.org/quantum/internal/source"
)

// Errors.
var (
	ErrDuplicateFile = errors.New("duplicate file in package")
	ErrUnknownHandle = errors.New("unknown handle")
)

// Handles.
type (
	BundleRef  int
	PackageRef int
	FileRef    int
)

// NoFile is the FileRef of an unresolved statement.
const NoFile FileRef = -1

// Bundle is one output unit.
type Bundle struct {
	Ref  BundleRef
	Name string

	// Split marks a bundle created for a split point; such bundles are loaded
	// on demand and are not injected as script tags.
	Split bool

	Code []byte
}

// Package is a group of files sharing a resolution root.
type Package struct {
	Ref       PackageRef
	Name      string
	EntryFile string
	Bundle    BundleRef
}

// Graph is the whole program.
type Graph struct {
	bundles  []*Bundle
	packages []*Package
	files    []*File
	index    map[string]FileRef
	entries  map[string]string
}

// New creates an empty graph.
func New() *Graph {
	return &Graph{index: make(map[string]FileRef), entries: make(map[string]string)}
}

// AddBundle appends a bundle.
func (g *Graph) AddBundle(name string) BundleRef {
	ref := BundleRef(len(g.bundles))

	g.bundles = append(g.bundles, &Bundle{Ref: ref, Name: name})

	return ref
}

// AddPackage appends a package to a bundle. entryFile is the relative path of
// the file a bare require of the package resolves to.
func (g *Graph) AddPackage(b BundleRef, name, entryFile string) PackageRef {
	ref := PackageRef(len(g.packages))
	entryFile = strings.TrimPrefix(entryFile, "./")

	g.packages = append(g.packages, &Package{Ref: ref, Name: name, EntryFile: entryFile, Bundle: b})

	if _, ok := g.entries[name]; !ok && entryFile != "" {
		g.entries[name] = entryFile
	}

	return ref
}

// AddFile tokenises JavaScript source and adds it to a package.
func (g *Graph) AddFile(p PackageRef, relPath, contents string) (*File, error) {
	tokens, err := source.Tokenise(contents)
	if err != nil {
		return nil, fmt.Errorf("error tokenising %s: %w", relPath, err)
	}

	return g.AddTokens(p, relPath, tokens)
}

// AddStylesheet adds a CSS file as a module exporting its minified text.
func (g *Graph) AddStylesheet(p PackageRef, relPath, contents string) (*File, error) {
	min, err := source.MinifyCSS(contents)
	if err != nil {
		return nil, fmt.Errorf("error tokenising %s: %w", relPath, err)
	}

	return g.AddFile(p, relPath, "module.exports = "+source.Quote(min)+";")
}

// AddJSON adds a JSON file as a module exporting its value.
func (g *Graph) AddJSON(p PackageRef, relPath, contents string) (*File, error) {
	return g.AddFile(p, relPath, "module.exports = "+strings.TrimSpace(contents)+";")
}

// AddTokens adds an already tokenised file to a package.
func (g *Graph) AddTokens(p PackageRef, relPath string, tokens []source.Token) (*File, error) {
	pkg := g.Package(p)
	if pkg == nil {
		return nil, fmt.Errorf("package %d: %w", p, ErrUnknownHandle)
	}

	relPath = strings.TrimPrefix(path.Clean("/"+relPath), "/")
	key := pkg.Name + "/" + relPath

	if _, ok := g.index[key]; ok {
		return nil, fmt.Errorf("%s: %w", key, ErrDuplicateFile)
	}

	f := newFile(FileRef(len(g.files)), p, pkg.Name, relPath, tokens)
	g.files = append(g.files, f)
	g.index[key] = f.Ref

	return f, nil
}

// Bundle returns the bundle for a handle, or nil.
func (g *Graph) Bundle(b BundleRef) *Bundle {
	if b < 0 || int(b) >= len(g.bundles) {
		return nil
	}

	return g.bundles[b]
}

// Package returns the package for a handle, or nil.
func (g *Graph) Package(p PackageRef) *Package {
	if p < 0 || int(p) >= len(g.packages) {
		return nil
	}

	return g.packages[p]
}

// File returns the file for a handle, or nil.
func (g *Graph) File(f FileRef) *File {
	if f < 0 || int(f) >= len(g.files) {
		return nil
	}

	return g.files[f]
}

// Bundles returns the bundles in creation order.
func (g *Graph) Bundles() []*Bundle {
	return g.bundles
}

// Files returns every file in creation order.
func (g *Graph) Files() []*File {
	return g.files
}

// BundleByName finds a bundle by name.
func (g *Graph) BundleByName(name string) *Bundle {
	for _, b := range g.bundles {
		if b.Name == name {
			return b
		}
	}

	return nil
}

// PackagesOf returns the packages currently held by a bundle, in creation
// order.
func (g *Graph) PackagesOf(b BundleRef) []*Package {
	var pkgs []*Package

	for _, p := range g.packages {
		if p.Bundle == b {
			pkgs = append(pkgs, p)
		}
	}

	return pkgs
}

// PackageIn finds the package with the given name in a bundle, creating it
// when the bundle has none.
func (g *Graph) PackageIn(b BundleRef, name, entryFile string) *Package {
	for _, p := range g.packages {
		if p.Bundle == b && p.Name == name {
			return p
		}
	}

	return g.Package(g.AddPackage(b, name, entryFile))
}

// FilesOf returns the files currently held by a package, in creation order.
func (g *Graph) FilesOf(p PackageRef) []*File {
	var files []*File

	for _, f := range g.files {
		if f.Package == p {
			files = append(files, f)
		}
	}

	return files
}

// FilesIn returns the files currently held by a bundle, package by package.
func (g *Graph) FilesIn(b BundleRef) []*File {
	var files []*File

	for _, p := range g.PackagesOf(b) {
		files = append(files, g.FilesOf(p.Ref)...)
	}

	return files
}

// BundleOf returns the bundle currently holding a file.
func (g *Graph) BundleOf(f *File) *Bundle {
	if p := g.Package(f.Package); p != nil {
		return g.Bundle(p.Bundle)
	}

	return nil
}

// Lookup finds a file by its full path (package/relative path).
func (g *Graph) Lookup(fullPath string) (*File, bool) {
	ref, ok := g.index[fullPath]
	if !ok {
		return nil, false
	}

	return g.files[ref], true
}

// MoveFile relocates a file into another package.
func (g *Graph) MoveFile(f *File, to PackageRef) {
	f.Package = to
}

// MovePackage relocates a package, with all of its files, into another
// bundle.
func (g *Graph) MovePackage(p *Package, to BundleRef) {
	p.Bundle = to
}
