package split

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

type pkg struct {
	name, entry string
	files       [][2]string
}

func build(t *testing.T, pkgs ...pkg) (*graph.Graph, *logger.Log) {
	t.Helper()

	g := graph.New()
	b := g.AddBundle("main")

	for _, p := range pkgs {
		ref := g.AddPackage(b, p.name, p.entry)

		for _, f := range p.files {
			_, err := g.AddFile(ref, f[0], f[1])
			require.NoError(t, err)
		}
	}

	a := api.New("", false)
	log := logger.New(zerolog.Nop(), false)

	require.NoError(t, ids.Assign(g, a, log, zerolog.Nop(), ids.Options{}))

	c := &rewrite.Context{Graph: g, API: a, Log: log}
	require.NoError(t, c.All(context.Background(), zerolog.Nop(), 1))

	return g, log
}

func bundleOf(t *testing.T, g *graph.Graph, fullPath string) string {
	t.Helper()

	f, ok := g.Lookup(fullPath)
	require.True(t, ok, fullPath)

	return g.BundleOf(f).Name
}

func TestClosure(t *testing.T) {
	g, log := build(t, pkg{"app", "index.js", [][2]string{
		{"index.js", `import("./a");`},
		{"a.js", `require("./b");`},
		{"b.js", `require("./c");`},
		{"c.js", ``},
	}})

	before := make(map[string]int)
	for _, f := range g.Files() {
		before[f.FullPath()] = f.ID
	}

	bit := &Bit{Name: "admin", Entry: "app/a"}

	require.NoError(t, Run(g, log, zerolog.Nop(), []*Bit{bit}))

	assert.Equal(t, "main", bundleOf(t, g, "app/index.js"))

	for _, p := range []string{"app/a.js", "app/b.js", "app/c.js"} {
		assert.Equal(t, "admin", bundleOf(t, g, p), p)

		f, _ := g.Lookup(p)
		assert.True(t, f.SplitRefs["admin"])
	}

	for _, f := range g.Files() {
		assert.Equal(t, before[f.FullPath()], f.ID, "ids never change")
	}

	assert.True(t, g.Bundle(bit.Bundle).Split)
	assert.Len(t, bit.Files, 3)
	assert.Empty(t, bit.Packages)
	assert.Zero(t, log.Len())
}

func TestSharedStays(t *testing.T) {
	g, log := build(t, pkg{"app", "main.js", [][2]string{
		{"main.js", `require("./shared"); import("./admin");`},
		{"admin.js", `require("./shared"); require("./panel");`},
		{"shared.js", ``},
		{"panel.js", ``},
	}})

	require.NoError(t, Run(g, log, zerolog.Nop(), []*Bit{{Name: "admin", Entry: "app/admin.js"}}))

	assert.Equal(t, "main", bundleOf(t, g, "app/main.js"))
	assert.Equal(t, "main", bundleOf(t, g, "app/shared.js"))
	assert.Equal(t, "admin", bundleOf(t, g, "app/admin.js"))
	assert.Equal(t, "admin", bundleOf(t, g, "app/panel.js"))
}

func TestWholePackage(t *testing.T) {
	g, log := build(t,
		pkg{"app", "index.js", [][2]string{
			{"index.js", `import("./admin");`},
			{"admin.js", `require("chart");`},
		}},
		pkg{"chart", "lib/index.js", [][2]string{
			{"lib/index.js", `require("./draw");`},
			{"lib/draw.js", ``},
		}},
	)

	bit := &Bit{Name: "admin", Entry: "app/admin.js"}

	require.NoError(t, Run(g, log, zerolog.Nop(), []*Bit{bit}))

	require.Len(t, bit.Packages, 1)
	assert.Equal(t, "chart", bit.Packages[0].Name)
	assert.Equal(t, "admin", bundleOf(t, g, "chart/lib/draw.js"))
	assert.Len(t, g.PackagesOf(bit.Bundle), 2)
}

func TestSkipped(t *testing.T) {
	g, log := build(t, pkg{"app", "index.js", [][2]string{
		{"index.js", `require("./admin");`},
		{"admin.js", ``},
	}})

	require.NoError(t, Run(g, log, zerolog.Nop(), []*Bit{
		{Name: "admin", Entry: "app/admin.js"},
		{Name: "missing", Entry: "app/nope.js"},
		{Name: "entry", Entry: "app/index.js"},
	}))

	assert.Equal(t, "main", bundleOf(t, g, "app/admin.js"))
	assert.Nil(t, g.BundleByName("admin"))
	assert.Equal(t, 3, log.Len())
}

func TestPassedWithoutInfo(t *testing.T) {
	g, log := build(t, pkg{"app", "index.js", [][2]string{
		{"index.js", `import("./one"); import("./two");`},
		{"one.js", `require("./common");`},
		{"two.js", `require("./common");`},
		{"common.js", ``},
	}})

	one := &Bit{Name: "one", Entry: "app/one.js"}
	two := &Bit{Name: "two", Entry: "app/two.js"}

	require.NoError(t, Run(g, log, zerolog.Nop(), []*Bit{one, two}))

	assert.Equal(t, "main", bundleOf(t, g, "app/common.js"))
	assert.Len(t, one.Files, 1)
	assert.Len(t, two.Files, 1)
	assert.Zero(t, log.Len())
}
