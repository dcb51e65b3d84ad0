package hoist

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/ids"
	"vimagination.zapto.org/quantum/internal/logger"
	"vimagination.zapto.org/quantum/internal/rewrite"
)

func build(t *testing.T, files ...[2]string) *graph.Graph {
	t.Helper()

	g := graph.New()
	p := g.AddPackage(g.AddBundle("main"), "app", "index.js")

	for _, f := range files {
		_, err := g.AddFile(p, f[0], f[1])
		require.NoError(t, err)
	}

	a := api.New("", false)
	log := logger.New(zerolog.Nop(), false)

	require.NoError(t, ids.Assign(g, a, log, zerolog.Nop(), ids.Options{}))

	c := &rewrite.Context{Graph: g, API: a, Log: log}
	require.NoError(t, c.All(context.Background(), zerolog.Nop(), 1))

	return g
}

func hoisted(g *graph.Graph) map[string]bool {
	h := make(map[string]bool)

	for _, f := range g.Files() {
		h[f.Path] = f.Hoisted
	}

	return h
}

func paths(files []*graph.File) []string {
	p := make([]string, len(files))

	for n, f := range files {
		p[n] = f.Path
	}

	return p
}

func TestHoist(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `var u = require("./util"); u.add(1, 2);`},
		[2]string{"util.js", "var num = require(\"./num\");\nfunction add(a, b) { return num.n(a) + b; }\nexports.add = add;"},
		[2]string{"num.js", "module.exports = { n: function(x) { return +x; } };"},
	)

	order := Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

	assert.Equal(t, map[string]bool{"index.js": false, "util.js": true, "num.js": true}, hoisted(g))
	assert.Equal(t, []string{"num.js", "util.js"}, paths(order[0]))

	util, _ := g.Lookup("app/util.js")
	num, _ := g.Lookup("app/num.js")

	assert.Equal(t, "var num = $fsx.r("+num.Address+");\nfunction add(a, b) { return num.n(a) + b; }\n$fsx_m"+util.Address+".exports.add = add;", util.Text())
	assert.Equal(t, "$fsx_m"+num.Address+".exports = { n: function(x) { return +x; } };", num.Text())
}

func TestCollision(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `require("./a"); require("./b");`},
		[2]string{"a.js", "var helper = 1;\nexports.a = helper;"},
		[2]string{"b.js", "var helper = 2;\nexports.b = helper;"},
	)

	Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

	h := hoisted(g)
	assert.False(t, h["a.js"] && h["b.js"], "both files declaring helper were hoisted")
}

func TestCollisionWithWrapped(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `require("./a"); require("./b"); jQuery.ready();`},
		[2]string{"a.js", "var jQuery = 1;"},
		[2]string{"b.js", "var other = 1;"},
	)

	Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

	assert.Equal(t, map[string]bool{"index.js": false, "a.js": false, "b.js": true}, hoisted(g))
}

func TestUnsafe(t *testing.T) {
	for n, src := range [...]string{
		"var a = arguments;",
		"this.x = 1;",
		"var f = () => { return this; };",
		"register(module);",
		"var e = exports;",
		"eval('1');",
		"if (a) { var b = 1; }",
		"var {a, b} = c;",
		"return;",
		"require(name);",
		"import('./other');",
		"require('fs');",
		"var o = { self: this };",
		"exports.a = {b: arguments};",
		"var s = `${this}`;",
		"var window = 1;",
		"function require() {}",
		"var Promise = 1;",
	} {
		g := build(t,
			[2]string{"index.js", `require("./a");`},
			[2]string{"a.js", src},
			[2]string{"other.js", ""},
		)

		Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

		assert.False(t, hoisted(g)["a.js"], "test %d: %s", n+1, src)
	}
}

func TestSafe(t *testing.T) {
	for n, src := range [...]string{
		"function f() { return this; }",
		"var o = { m: function() { return arguments.length; } };",
		"class A { m() { return this; } }",
		"const x = `${1}`; let y = 2;",
		"module.exports = 1;",
		"exports['a'] = 1;",
		"var o = { m() { return this; } };",
		"function f() { return () => this; }",
		"var g = function() { return { self: this }; };",
	} {
		g := build(t,
			[2]string{"index.js", `require("./a");`},
			[2]string{"a.js", src},
		)

		Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

		assert.True(t, hoisted(g)["a.js"], "test %d: %s", n+1, src)
	}
}

func TestUnrequired(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `require("./a");`},
		[2]string{"a.js", "var a = 1;"},
		[2]string{"side.js", `console.log("x");`},
	)

	order := Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

	assert.Equal(t, map[string]bool{"index.js": false, "a.js": true, "side.js": false}, hoisted(g))
	assert.Equal(t, []string{"a.js"}, paths(order[0]))
}

func TestAllowList(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `require("./a"); require("./b");`},
		[2]string{"a.js", "var allowed = 1;"},
		[2]string{"b.js", "var denied = 1;"},
	)

	Run(g, zerolog.Nop(), Options{Variable: "$fsx", Names: []string{"allowed"}})

	assert.Equal(t, map[string]bool{"index.js": false, "a.js": true, "b.js": false}, hoisted(g))
}

func TestDependencies(t *testing.T) {
	g := build(t,
		[2]string{"index.js", `require("./x"); require("./p");`},
		[2]string{"x.js", `require("./y");`},
		[2]string{"y.js", `require("./x");`},
		[2]string{"p.js", `require("./q");`},
		[2]string{"q.js", `var a = arguments;`},
	)

	Run(g, zerolog.Nop(), Options{Variable: "$fsx"})

	for _, h := range hoisted(g) {
		assert.False(t, h)
	}
}
