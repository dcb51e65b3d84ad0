package rewrite

import (
	"context"
	"maps"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/ids"
	"vimagination.zapto.org/quantum/internal/logger"
)

type fixture struct {
	ctx   *Context
	files map[string]*graph.File
}

func newFixture(t *testing.T, o Options, files map[string]string) fixture {
	t.Helper()

	g := graph.New()
	b := g.AddBundle("main")
	pkgs := make(map[string]graph.PackageRef)
	fx := fixture{files: make(map[string]*graph.File)}

	for _, name := range slices.Sorted(maps.Keys(files)) {
		pkg, rel, _ := strings.Cut(name, "/")

		p, ok := pkgs[pkg]
		if !ok {
			p = g.AddPackage(b, pkg, "index.js")
			pkgs[pkg] = p
		}

		f, err := g.AddFile(p, rel, files[name])
		require.NoError(t, err)

		fx.files[name] = f
	}

	a := api.New("", false)
	log := logger.New(zerolog.Nop(), false)

	require.NoError(t, ids.Assign(g, a, log, zerolog.Nop(), ids.Options{}))

	fx.ctx = &Context{Options: o, Graph: g, API: a, Log: log}

	return fx
}

func TestResolveStatements(t *testing.T) {
	fx := newFixture(t, Options{}, map[string]string{
		"app/index.js":   `var u = require("./util"), l = require("lodash/fp"), m = require("missing");`,
		"app/util.js":    `module.exports = require("~/lib/x.js");`,
		"app/lib/x.js":   `exports.x = 1;`,
		"lodash/fp.js":   `module.exports = {};`,
		"lodash/main.js": ``,
	})

	require.NoError(t, fx.ctx.All(context.Background(), zerolog.Nop(), 2))

	index := fx.files["app/index.js"]
	util := fx.files["app/util.js"]
	x := fx.files["app/lib/x.js"]
	fp := fx.files["lodash/fp.js"]

	assert.Equal(t, `var u = $fsx.r(`+util.Address+`), l = $fsx.r(`+fp.Address+`), m = require("missing");`, index.Text())
	assert.Equal(t, `module.exports = $fsx.r(`+x.Address+`);`, util.Text())
	assert.Equal(t, util.Ref, index.Statements[0].Target)
	assert.False(t, index.Statements[2].Resolved())

	warnings := fx.ctx.Log.Done()
	require.Len(t, warnings, 1)
	assert.Equal(t, "app/index.js", warnings[0].File)
	assert.Contains(t, warnings[0].Text, `"missing"`)
}

func TestResolveNodeBuiltinOnServer(t *testing.T) {
	fx := newFixture(t, Options{Target: Server}, map[string]string{
		"app/index.js": `var fs = require("fs");`,
	})

	require.NoError(t, ResolveStatements(fx.ctx, fx.files["app/index.js"]))
	assert.Zero(t, fx.ctx.Log.Len())
}

func TestComputed(t *testing.T) {
	fx := newFixture(t, Options{}, map[string]string{
		"app/index.js": `var m = require(someVar);`,
	})
	f := fx.files["app/index.js"]

	require.NoError(t, ResolveStatements(fx.ctx, f))

	assert.Equal(t, `var m = $fsx.c(`+f.Address+`, someVar);`, f.Text())
	assert.True(t, f.NeedsFileMap)
	assert.True(t, fx.ctx.API.FileMap())
	assert.True(t, f.Statements[0].Dispatched())
	assert.Equal(t, f.Address, f.Statements[0].BoundID)
}

func TestComputedRule(t *testing.T) {
	rule, err := api.Glob("app/**")
	require.NoError(t, err)

	fx := newFixture(t, Options{Rules: []Rule{{
		Files: rule,
		Resolve: func(file, expr string) (string, bool) {
			switch expr {
			case `"./" + name`:
				return "app/plugin.js", true
			case "ext":
				return "external-id", true
			}

			return "", false
		},
	}}}, map[string]string{
		"app/index.js":  `require("./" + name); require(ext); require(other);`,
		"app/plugin.js": ``,
	})
	f := fx.files["app/index.js"]
	plugin := fx.files["app/plugin.js"]

	require.NoError(t, ResolveStatements(fx.ctx, f))

	assert.Equal(t, `$fsx.r(`+plugin.Address+`); $fsx.r("external-id"); $fsx.c(`+f.Address+`, other);`, f.Text())
	assert.Equal(t, plugin.Ref, f.Statements[0].Target)
	assert.Equal(t, "external-id", f.Statements[1].CustomID)
	assert.True(t, f.Statements[2].Dispatched())
}

func TestDynamicImport(t *testing.T) {
	fx := newFixture(t, Options{}, map[string]string{
		"app/index.js": `import("./admin").then(function(a) { a.run(); }); import("./nope");`,
		"app/admin.js": ``,
	})
	f := fx.files["app/index.js"]

	require.NoError(t, DynamicImports(fx.ctx, f))

	assert.Equal(t, `$fsx.l(`+fx.files["app/admin.js"].Address+`).then(function(a) { a.run(); }); import("./nope");`, f.Text())
	assert.Equal(t, 1, fx.ctx.Log.Len())
}

func TestMalformedStatement(t *testing.T) {
	fx := newFixture(t, Options{}, map[string]string{
		"app/index.js": `require("./x");`,
	})
	f := fx.files["app/index.js"]
	f.Statements[0].Close = len(f.Tokens) + 5

	assert.ErrorIs(t, ResolveStatements(fx.ctx, f), ErrMalformedStatement)
}

func TestPasses(t *testing.T) {
	for n, test := range [...]struct {
		Pass    Pass
		Options Options
		Input   string
		Output  string
	}{
		{ // 1
			FoldEnvironment, Options{Target: Browser},
			`if (FuseBox.isServer) a(); else if (FuseBox.isBrowser) b(); x.FuseBox.isServer;`,
			`if (false) a(); else if (true) b(); x.FuseBox.isServer;`,
		},
		{ // 2
			FoldEnvironment, Options{Target: Server},
			`var s = FuseBox.isServer, b = FuseBox . isBrowser;`,
			`var s = true, b = false;`,
		},
		{ // 3
			FoldEnvironment, Options{Target: Universal},
			`var s = FuseBox.isServer;`,
			`var s = FuseBox.isServer;`,
		},
		{ // 4
			RemoveInterop, Options{RemoveExportsInterop: true},
			"exports.__esModule = true;\nObject.defineProperty(exports, \"__esModule\", { value: true });\nexports.a = 1;",
			"\n\nexports.a = 1;",
		},
		{ // 5
			RemoveInterop, Options{},
			`exports.__esModule = true;`,
			`exports.__esModule = true;`,
		},
		{ // 6
			RemoveUseStrict, Options{RemoveUseStrict: true},
			"// header\n\"use strict\";\nvar a = \"use strict\";",
			"// header\n\nvar a = \"use strict\";",
		},
		{ // 7
			ReplaceTypeOf, Options{ReplaceTypeOf: true, Target: Browser},
			`typeof module; typeof exports === "object"; typeof window; typeof module.exports; a.typeof;`,
			`"object"; "object" === "object"; "object"; typeof module.exports; a.typeof;`,
		},
		{ // 8
			ReplaceTypeOf, Options{ReplaceTypeOf: true, Target: Server},
			`if (typeof window !== "undefined") {}`,
			`if ("undefined" !== "undefined") {}`,
		},
		{ // 9
			ReplaceTypeOf, Options{ReplaceTypeOf: true, Target: Electron},
			`typeof window; typeof module;`,
			`typeof window; "object";`,
		},
		{ // 10
			ReplaceProcessEnv, Options{ReplaceProcessEnv: true, Env: map[string]string{"NODE_ENV": "production", "Q": "a\"b"}},
			`if (process.env.NODE_ENV === "production") x(process.env["Q"], process.env.OTHER); process.env.NODE_ENV = "dev";`,
			`if ("production" === "production") x("a\"b", process.env.OTHER); process.env.NODE_ENV = "dev";`,
		},
		{ // 11
			ReplaceProcessEnv, Options{Env: map[string]string{"NODE_ENV": "production"}},
			`process.env.NODE_ENV`,
			`process.env.NODE_ENV`,
		},
	} {
		fx := newFixture(t, test.Options, map[string]string{"app/index.js": test.Input})
		f := fx.files["app/index.js"]

		require.NoError(t, test.Pass(fx.ctx, f), "test %d", n+1)
		assert.Equal(t, test.Output, f.Text(), "test %d", n+1)

		require.NoError(t, test.Pass(fx.ctx, f), "test %d", n+1)
		assert.Equal(t, test.Output, f.Text(), "test %d: second run changed output", n+1)
	}
}

func TestIdempotent(t *testing.T) {
	fx := newFixture(t, Options{
		Target:               Browser,
		RemoveExportsInterop: true,
		RemoveUseStrict:      true,
		ReplaceTypeOf:        true,
		ReplaceProcessEnv:    true,
		Env:                  map[string]string{"NODE_ENV": "production"},
	}, map[string]string{
		"app/index.js": `"use strict"; exports.__esModule = true; var u = require("./util"), d = require(dyn); import("./util"); if (FuseBox.isBrowser && typeof window && process.env.NODE_ENV) u();`,
		"app/util.js":  `module.exports = function() {};`,
	})
	f := fx.files["app/index.js"]

	for _, pass := range Passes {
		require.NoError(t, pass(fx.ctx, f))

		before := f.Text()

		require.NoError(t, pass(fx.ctx, f))
		assert.Equal(t, before, f.Text())
	}

	assert.True(t, f.Strict)

	require.NoError(t, fx.ctx.File(f))
	assert.NotContains(t, f.Text(), "require")
	assert.NotContains(t, f.Text(), "FuseBox")
}

func TestParseTarget(t *testing.T) {
	for _, name := range []string{"browser", "Server", "NPM", "electron", "universal"} {
		target, err := ParseTarget(name)
		require.NoError(t, err)
		assert.Equal(t, strings.ToLower(name), target.String())
	}

	_, err := ParseTarget("deno")
	assert.ErrorIs(t, err, ErrUnknownTarget)
}
