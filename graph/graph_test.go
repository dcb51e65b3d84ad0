package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraph(t *testing.T) {
	g := New()
	main := g.AddBundle("main")
	app := g.AddPackage(main, "app", "./index.js")

	index, err := g.AddFile(app, "./index.js", `require("./lib/util");`)
	require.NoError(t, err)

	util, err := g.AddFile(app, "lib/util.js", ``)
	require.NoError(t, err)

	_, err = g.AddFile(app, "index.js", ``)
	assert.ErrorIs(t, err, ErrDuplicateFile)

	_, err = g.AddFile(PackageRef(9), "x.js", ``)
	assert.ErrorIs(t, err, ErrUnknownHandle)

	assert.Equal(t, "index.js", g.Package(app).EntryFile)
	assert.Equal(t, "app/index.js", index.FullPath())
	assert.Equal(t, "app/lib/util", util.Key())
	assert.Equal(t, "lib", util.Dir())
	assert.Equal(t, -1, util.ID)
	assert.Nil(t, g.Bundle(BundleRef(3)))
	assert.Nil(t, g.File(NoFile))

	f, ok := g.Lookup("app/lib/util.js")
	assert.True(t, ok)
	assert.Same(t, util, f)

	other := g.AddBundle("other")
	p := g.PackageIn(other, "app", "index.js")

	assert.NotEqual(t, app, p.Ref)
	assert.Same(t, p, g.PackageIn(other, "app", "index.js"))

	g.MoveFile(util, p.Ref)

	assert.Equal(t, []*File{index}, g.FilesIn(main))
	assert.Equal(t, []*File{util}, g.FilesIn(other))
	assert.Equal(t, "other", g.BundleOf(util).Name)

	g.MovePackage(g.Package(app), other)

	assert.Empty(t, g.FilesIn(main))
	assert.Len(t, g.PackagesOf(other), 2)
	assert.Same(t, g.Bundle(other), g.BundleByName("other"))
	assert.Nil(t, g.BundleByName("missing"))
}

func TestResolve(t *testing.T) {
	g := New()
	b := g.AddBundle("main")
	app := g.AddPackage(b, "app", "index.js")
	lib := g.AddPackage(b, "lib", "main.js")
	scoped := g.AddPackage(b, "@org/pkg", "index.js")

	files := make(map[string]*File)

	for _, f := range [...]struct {
		p      PackageRef
		path   string
		source string
	}{
		{app, "index.js", `require("./a"); require("./dir"); require("lib"); require("lib/extra"); require("@org/pkg"); require("~/a.jsx"); require("/a.jsx"); require("./missing"); require("fs"); require(x);`},
		{app, "a.jsx", ``},
		{app, "dir/index.js", `require("../a");`},
		{lib, "main.js", ``},
		{lib, "extra.json", ``},
		{scoped, "index.js", ``},
	} {
		file, err := g.AddFile(f.p, f.path, f.source)
		require.NoError(t, err)

		files[file.FullPath()] = file
	}

	index := files["app/index.js"]

	require.Len(t, index.Statements, 10)

	for n, want := range [...]string{
		"app/a.jsx",
		"app/dir/index.js",
		"lib/main.js",
		"lib/extra.json",
		"@org/pkg/index.js",
		"app/a.jsx",
		"app/a.jsx",
		"",
		"",
		"",
	} {
		f, ok := g.Resolve(index, index.Statements[n])

		if want == "" {
			assert.False(t, ok, "test %d", n+1)
		} else if assert.True(t, ok, "test %d", n+1) {
			assert.Equal(t, want, f.FullPath(), "test %d", n+1)
		}
	}

	fs := index.Statements[8]
	assert.True(t, fs.NodeModule)
	assert.Equal(t, "fs", fs.NodeModuleName)
	assert.Equal(t, "app/missing", g.RequireKey(index, index.Statements[7]))
	assert.Equal(t, "lib/main", g.RequireKey(index, index.Statements[2]))
	assert.True(t, index.Statements[9].Computed)
	assert.Empty(t, index.Statements[9].Path(index))

	dir := files["app/dir/index.js"]

	f, ok := g.Resolve(dir, dir.Statements[0])
	require.True(t, ok)
	assert.Equal(t, "app/a.jsx", f.FullPath())
}

func TestSplitModule(t *testing.T) {
	for _, test := range [...]struct {
		value, name, partial string
	}{
		{"lodash", "lodash", ""},
		{"lodash/map", "lodash", "map"},
		{"@org/pkg", "@org/pkg", ""},
		{"@org/pkg/lib/x", "@org/pkg", "lib/x"},
	} {
		name, partial := splitModule(test.value)

		assert.Equal(t, test.name, name, test.value)
		assert.Equal(t, test.partial, partial, test.value)
	}
}

func TestAssets(t *testing.T) {
	g := New()
	p := g.AddPackage(g.AddBundle("main"), "app", "index.js")

	j, err := g.AddJSON(p, "data.json", "\n[1, 2]\n")
	require.NoError(t, err)

	assert.Equal(t, "module.exports = [1, 2];", j.Text())
	assert.True(t, j.Opaque)

	c, err := g.AddStylesheet(p, "style.css", "a { }")
	require.NoError(t, err)

	assert.Contains(t, c.Text(), `module.exports = "a`)
}
