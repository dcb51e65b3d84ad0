// Package quantum optimises and emits the bundles of a module graph.
//
// A build gives each file a module id, rewrites its require and import
// call-sites against the runtime API, moves declared split points into
// bundles of their own, optionally drops unreachable code and hoists modules
// out of their wrappers, and finally renders each bundle.
package quantum

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/hoist"
	"vimagination.zapto.org/quantum/internal/ids"
	"vimagination.zapto.org/quantum/internal/logger"
	"vimagination.zapto.org/quantum/internal/render"
	"vimagination.zapto.org/quantum/internal/rewrite"
	"vimagination.zapto.org/quantum/internal/shake"
	"vimagination.zapto.org/quantum/internal/split"
)

// Output is one rendered bundle.
type Output struct {
	Name string

	// File is the name the bundle is loaded as.
	File  string
	Split bool
	Code  []byte
}

// Result is the outcome of a build.
type Result struct {
	Bundles  []Output
	Warnings []string

	// Manifest is only set when EmitManifest is given.
	Manifest []byte

	// Session identifies the build in log lines and the manifest.
	Session string

	// Removed lists the full paths of files dropped by tree shaking.
	Removed []string

	Stats []Stat
}

// Build runs every stage over the graph.
func Build(g *graph.Graph, opts ...Option) (*Result, error) {
	return BuildContext(context.Background(), g, opts...)
}

// BuildContext is like Build, stopping between stages once ctx is done.
func BuildContext(ctx context.Context, g *graph.Graph, opts ...Option) (*Result, error) {
	c := config{zl: zerolog.Nop()}

	for _, o := range opts {
		o(&c)
	}

	if c.err != nil {
		return nil, c.err
	} else if len(g.Bundles()) == 0 {
		return nil, ErrNoBundles
	} else if n := bundleCount(g, c.splits); c.containedAPI && n > 1 {
		return nil, fmt.Errorf("%d bundles: %w", n, ErrContainedAPI)
	}

	session := uuid.NewString()
	zl := c.zl.With().Str("session", session).Logger()
	log := logger.New(zl, !c.noWarnings)

	var variable string

	if c.noConflictAPI {
		variable = api.RandomVariable()
	}

	a := api.New(variable, c.containedAPI)

	for _, r := range c.mappings {
		a.AddRule(r)
	}

	if c.apiCallback != nil {
		c.apiCallback(&API{a: a})
	}

	if (len(a.Rules()) > 0 || len(c.rules) > 0) && a.UseCustom() {
		log.AddWarning("", "custom mappings and computed rules cannot be reached through a contained API")
	}

	b := builder{config: c, g: g, a: a, log: log, zl: zl}

	if err := b.run(ctx); err != nil {
		return nil, err
	}

	res := &Result{Session: session, Removed: b.removed}

	for _, bundle := range g.Bundles() {
		res.Bundles = append(res.Bundles, Output{
			Name:  bundle.Name,
			File:  render.FileName(bundle.Name),
			Split: bundle.Split,
			Code:  bundle.Code,
		})
	}

	for _, m := range log.Done() {
		res.Warnings = append(res.Warnings, m.String())
	}

	stats, err := bundleStats(res.Bundles, zl)
	if err != nil {
		return nil, err
	}

	res.Stats = stats

	if c.manifest {
		if res.Manifest, err = manifest(session, g, stats); err != nil {
			return nil, err
		}
	}

	if len(res.Warnings) > 0 && !c.noWarnings {
		zl.Warn().Int("warnings", len(res.Warnings)).Msg("build finished with warnings; pass NoWarnings to silence them")
	}

	return res, nil
}

// bundleCount counts the bundles the build will produce.
func bundleCount(g *graph.Graph, splits []splitPoint) int {
	n := len(g.Bundles())

	for _, s := range splits {
		if g.BundleByName(s.name) == nil {
			n++
		}
	}

	return n
}

type builder struct {
	config

	g   *graph.Graph
	a   *api.API
	log *logger.Log
	zl  zerolog.Logger

	bits    []*split.Bit
	removed []string
	hoisted map[graph.BundleRef][]*graph.File
}

func (b *builder) run(ctx context.Context) error {
	for _, stage := range [...]struct {
		name string
		fn   func(context.Context) error
	}{
		{"ids", b.assignIDs},
		{"rewrite", b.rewriteFiles},
		{"split", b.splitBundles},
		{"shake", b.shakeTree},
		{"hoist", b.hoistFiles},
		{"render", b.renderBundles},
	} {
		if err := ctx.Err(); err != nil {
			return err
		}

		b.zl.Debug().Str("stage", stage.name).Msg("starting")

		if err := stage.fn(ctx); err != nil {
			return fmt.Errorf("%s: %w", stage.name, err)
		}
	}

	return nil
}

func (b *builder) assignIDs(ctx context.Context) error {
	return ids.Assign(b.g, b.a, b.log, b.zl, ids.Options{
		Entry:      b.entry,
		GlobalName: b.globalName,
		Hash:       b.hashIDs,
	})
}

func (b *builder) rewriteFiles(ctx context.Context) error {
	c := &rewrite.Context{
		Options: rewrite.Options{
			Target:               b.target,
			RemoveExportsInterop: b.removeExportsInterop,
			RemoveUseStrict:      !b.keepUseStrict,
			ReplaceTypeOf:        !b.noTypeOf,
			ReplaceProcessEnv:    !b.noProcessEnv,
			Env:                  b.env,
			Rules:                b.rules,
		},
		Graph: b.g,
		API:   b.a,
		Log:   b.log,
	}

	return c.All(ctx, b.zl, b.concurrency)
}

func (b *builder) splitBundles(ctx context.Context) error {
	for _, s := range b.splits {
		b.bits = append(b.bits, &split.Bit{Name: s.name, Entry: s.entry})
	}

	return split.Run(b.g, b.log, b.zl, b.bits)
}

func (b *builder) shakeTree(ctx context.Context) error {
	if !b.treeshake {
		return nil
	}

	var roots []*graph.File

	for _, bit := range b.bits {
		if len(bit.Files) == 0 {
			continue
		}

		if f, ok := b.g.LookupPath(bit.Entry); ok {
			roots = append(roots, f)
		}
	}

	b.removed = shake.Run(b.g, b.a, b.zl, shake.Options{ShouldRemove: b.shouldRemove, Roots: roots})

	return nil
}

func (b *builder) hoistFiles(ctx context.Context) error {
	if !b.hoisting {
		return nil
	} else if b.hashIDs {
		b.zl.Info().Msg("hoisting is not available with hashed ids")

		return nil
	}

	b.hoisted = hoist.Run(b.g, b.zl, hoist.Options{Names: b.hoistNames, Variable: b.a.Variable()})

	return nil
}

func (b *builder) renderBundles(ctx context.Context) error {
	return render.Run(ctx, b.g, b.a, b.log, b.zl, render.Options{
		Target:      b.target,
		BakeInto:    b.bakeInto,
		Hoisted:     b.hoisted,
		Concurrency: b.concurrency,
	})
}
