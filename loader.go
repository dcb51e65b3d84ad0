package quantum

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"vimagination.zapto.org/quantum/graph"
)

const (
	nodeModules   = "node_modules"
	packageJSON   = "package.json"
	sourcePattern = "**/*.{js,jsx,json,css}"
	defaultName   = "default"
	defaultEntry  = "index.js"
)

type packageInfo struct {
	Name string `json:"name"`
	Main string `json:"main"`
}

// OSLoad loads the project in dir into a single bundle.
func OSLoad(dir, bundle string) (*graph.Graph, error) {
	return Load(os.DirFS(dir), bundle)
}

// Load reads a project into a graph with a single bundle. The root of fsys
// is the project's own package, and every directory in node_modules (and
// every @scope/name pair) is another package. Each package's entry file comes
// from the main field of its package.json, defaulting to index.js.
func Load(fsys fs.FS, bundle string) (*graph.Graph, error) {
	g := graph.New()
	b := g.AddBundle(bundle)

	root, err := readPackage(fsys, defaultName)
	if err != nil {
		return nil, err
	}

	if err := loadPackage(g, g.AddPackage(b, root.Name, root.Main), fsys); err != nil {
		return nil, err
	}

	dirs, err := packageDirs(fsys)
	if err != nil {
		return nil, err
	}

	for _, dir := range dirs {
		sub, err := fs.Sub(fsys, path.Join(nodeModules, dir))
		if err != nil {
			return nil, fmt.Errorf("error opening package %s: %w", dir, err)
		}

		info, err := readPackage(sub, dir)
		if err != nil {
			return nil, err
		}

		if err := loadPackage(g, g.AddPackage(b, dir, info.Main), sub); err != nil {
			return nil, err
		}
	}

	return g, nil
}

func readPackage(fsys fs.FS, name string) (*packageInfo, error) {
	info := &packageInfo{Name: name}

	data, err := fs.ReadFile(fsys, packageJSON)
	if errors.Is(err, fs.ErrNotExist) {
		info.Main = defaultEntry

		return info, nil
	} else if err != nil {
		return nil, fmt.Errorf("error reading %s of %s: %w", packageJSON, name, err)
	} else if err := json.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("error parsing %s of %s: %w", packageJSON, name, err)
	}

	if info.Name == "" {
		info.Name = name
	}

	info.Main = entryFile(fsys, info.Main)

	return info, nil
}

// entryFile finds the file a main field names, trying the same suffixes a
// require would.
func entryFile(fsys fs.FS, main string) string {
	main = strings.TrimPrefix(path.Clean("/"+main), "/")
	if main == "" {
		return defaultEntry
	}

	for _, suffix := range [...]string{"", ".js", ".jsx", "/index.js"} {
		if fi, err := fs.Stat(fsys, main+suffix); err == nil && !fi.IsDir() {
			return main + suffix
		}
	}

	return main
}

// packageDirs lists the packages in node_modules, relative to it.
func packageDirs(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, nodeModules)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, fmt.Errorf("error reading %s: %w", nodeModules, err)
	}

	var dirs []string

	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}

		if !strings.HasPrefix(e.Name(), "@") {
			dirs = append(dirs, e.Name())

			continue
		}

		scoped, err := fs.ReadDir(fsys, path.Join(nodeModules, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("error reading %s: %w", e.Name(), err)
		}

		for _, s := range scoped {
			if s.IsDir() {
				dirs = append(dirs, e.Name()+"/"+s.Name())
			}
		}
	}

	return dirs, nil
}

func loadPackage(g *graph.Graph, p graph.PackageRef, fsys fs.FS) error {
	matches, err := doublestar.Glob(fsys, sourcePattern)
	if err != nil {
		return fmt.Errorf("error listing files: %w", err)
	}

	slices.Sort(matches)

	for _, m := range matches {
		if m == packageJSON || m == nodeModules || strings.HasPrefix(m, nodeModules+"/") {
			continue
		}

		data, err := fs.ReadFile(fsys, m)
		if err != nil {
			return fmt.Errorf("error reading %s: %w", m, err)
		}

		switch path.Ext(m) {
		case ".css":
			_, err = g.AddStylesheet(p, m, string(data))
		case ".json":
			_, err = g.AddJSON(p, m, string(data))
		default:
			_, err = g.AddFile(p, m, string(data))
		}

		if err != nil {
			return err
		}
	}

	return nil
}
