// Package render writes each bundle's modules, and the runtime API, into the
// bundle's output buffer.
package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/hoist"
	"vimagination.zapto.org/quantum/internal/logger"
	"vimagination.zapto.org/quantum/internal/rewrite"
	"vimagination.zapto.org/quantum/internal/source"
)

// ErrRuntime is returned when the runtime source cannot be prepared.
var ErrRuntime = errors.New("error preparing runtime")

// Options controls rendering.
type Options struct {
	Target rewrite.Target

	// BakeInto names the bundle carrying the runtime; by default it is the
	// first bundle that is not a split.
	BakeInto string

	// Hoisted holds, per bundle, the hoisted files in dependency order.
	Hoisted map[graph.BundleRef][]*graph.File

	Concurrency int
}

// FileName returns the name a bundle is written and loaded as.
func FileName(name string) string {
	if path.Ext(name) == "" {
		return name + ".js"
	}

	return name
}

// Global returns the expression for the global object of a target.
func Global(t rewrite.Target) string {
	switch t {
	case rewrite.Browser:
		return "window"
	case rewrite.Server, rewrite.NPM:
		return "global"
	}

	return `(typeof window === "object" ? window : global)`
}

type renderer struct {
	Options

	g   *graph.Graph
	a   *api.API
	log *logger.Log
}

// Run fills in Code for every bundle.
func Run(ctx context.Context, g *graph.Graph, a *api.API, log *logger.Log, zl zerolog.Logger, o Options) error {
	r := &renderer{Options: o, g: g, a: a, log: log}

	r.splitMap()

	carrier := r.carrier()

	concurrency := o.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for _, b := range g.Bundles() {
		if gctx.Err() != nil {
			break
		}

		eg.Go(func() error {
			code, err := r.bundle(b, b == carrier)
			if err != nil {
				return fmt.Errorf("bundle %s: %w", b.Name, err)
			}

			b.Code = code

			zl.Debug().Str("bundle", b.Name).Int("size", len(code)).Msg("rendered")

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}

// splitMap records the bundle file of every dynamically imported module that
// lives in a split bundle.
func (r *renderer) splitMap() {
	for _, f := range r.g.Files() {
		if f.Removed {
			continue
		}

		for _, st := range f.Statements {
			if st.Kind != graph.DynamicImport || !st.Resolved() {
				continue
			}

			t := r.g.File(st.Target)
			if b := r.g.BundleOf(t); b != nil && b.Split && !t.Removed {
				r.a.AddSplit(strings.Trim(t.Address, `"`), FileName(b.Name))
			}
		}
	}
}

func (r *renderer) carrier() *graph.Bundle {
	if r.BakeInto != "" {
		if b := r.g.BundleByName(r.BakeInto); b != nil {
			return b
		}

		r.log.AddWarning("", fmt.Sprintf("bundle %q to carry the API not found", r.BakeInto))
	}

	for _, b := range r.g.Bundles() {
		if !b.Split {
			return b
		}
	}

	return nil
}

func (r *renderer) bundle(b *graph.Bundle, carrier bool) ([]byte, error) {
	var (
		buf bytes.Buffer
		v   = r.a.Variable()
	)

	if r.a.Contained() {
		buf.WriteString("(function() {\n")
	} else {
		fmt.Fprintf(&buf, "(function(%s) {\n", v)
	}

	if strict(r.g, b) {
		buf.WriteString("\"use strict\";\n")
	}

	if r.a.Contained() {
		fmt.Fprintf(&buf, "var %s = {};\n", v)
	}

	if carrier {
		if err := r.writeRuntime(&buf); err != nil {
			return nil, err
		}
	}

	hoisted := make(map[graph.FileRef]bool)

	for _, f := range r.Hoisted[b.Ref] {
		hoisted[f.Ref] = true
	}

	var entries []*graph.File

	for _, f := range r.g.FilesIn(b.Ref) {
		if f.Removed {
			continue
		}

		if f.Entry {
			entries = append(entries, f)
		}

		if hoisted[f.Ref] {
			continue
		}

		fmt.Fprintf(&buf, "%s.f[%s] = function(module, exports) {\n%s\n};\n", v, f.Address, f.Text())
	}

	for _, f := range r.Hoisted[b.Ref] {
		if f.Removed {
			continue
		}

		fmt.Fprintf(&buf, "var %s = %s.m[%s] = {id: %s, exports: {}};\n%s\n", hoist.ModuleVar(v, f), v, f.Address, f.Address, f.Text())
	}

	for _, f := range entries {
		r.writeStart(&buf, f)
	}

	if r.a.Contained() {
		buf.WriteString("})();\n")
	} else {
		g := Global(r.Target)

		fmt.Fprintf(&buf, "})(%s.%s = %s.%s || {});\n", g, v, g, v)
	}

	return buf.Bytes(), nil
}

func (r *renderer) writeRuntime(buf *bytes.Buffer) error {
	v := r.a.Variable()

	js, err := runtimeJS(v, r.a.FileMap())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRuntime, err)
	}

	buf.WriteString(js)
	buf.WriteByte('\n')

	if m := r.a.Mappings(); len(m) > 0 {
		writeTable(buf, v+".mp", m)
	}

	if r.a.FileMap() {
		writeTable(buf, v+".p", r.pathTable())
	}

	if s := r.a.Splits(); len(s) > 0 {
		for n := range s {
			s[n].Value = source.Quote(s[n].Value)
		}

		writeTable(buf, v+".s", s)
	}

	return nil
}

// pathTable maps every live file's full path, and every package name, to the
// address the computed-require dispatcher should load.
func (r *renderer) pathTable() []api.Entry {
	var (
		table []api.Entry
		seen  = make(map[string]bool)
	)

	for _, f := range r.g.Files() {
		if f.Removed {
			continue
		}

		table = append(table, api.Entry{Key: f.FullPath(), Value: f.Address})
	}

	for _, f := range r.g.Files() {
		if f.Removed || seen[f.Origin] {
			continue
		}

		p := r.g.Package(f.Package)
		if p == nil || p.EntryFile == "" {
			continue
		}

		if e, ok := r.g.LookupPath(f.Origin + "/" + p.EntryFile); ok && !e.Removed {
			seen[f.Origin] = true

			table = append(table, api.Entry{Key: f.Origin, Value: e.Address})
		}
	}

	return table
}

func writeTable(buf *bytes.Buffer, name string, entries []api.Entry) {
	fmt.Fprintf(buf, "%s = {", name)

	for n, e := range entries {
		if n > 0 {
			buf.WriteByte(',')
		}

		fmt.Fprintf(buf, "%s: %s", source.Quote(e.Key), e.Value)
	}

	buf.WriteString("};\n")
}

func (r *renderer) writeStart(buf *bytes.Buffer, f *graph.File) {
	v := r.a.Variable()

	switch {
	case r.Target == rewrite.NPM:
		fmt.Fprintf(buf, "module.exports = %s.r(%s);\n", v, f.Address)
	case f.GlobalName != "":
		fmt.Fprintf(buf, "%s.%s = %s.r(%s);\n", Global(r.Target), f.GlobalName, v, f.Address)
	default:
		fmt.Fprintf(buf, "%s.r(%s);\n", v, f.Address)
	}
}

// strict reports whether any file of the bundle had its "use strict"
// directive removed.
func strict(g *graph.Graph, b *graph.Bundle) bool {
	for _, f := range g.FilesIn(b.Ref) {
		if f.Strict && !f.Removed {
			return true
		}
	}

	return false
}
