package quantum

import (
	"regexp"

	"github.com/rs/zerolog"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/rewrite"
)

// Target is the environment a build runs in.
type Target = rewrite.Target

// Targets.
const (
	Browser   = rewrite.Browser
	Server    = rewrite.Server
	NPM       = rewrite.NPM
	Electron  = rewrite.Electron
	Universal = rewrite.Universal
)

// ParseTarget returns the Target with the given name.
func ParseTarget(name string) (Target, error) {
	return rewrite.ParseTarget(name)
}

type splitPoint struct {
	name, entry string
}

type config struct {
	target     Target
	entry      string
	globalName string

	removeExportsInterop bool
	keepUseStrict        bool
	noTypeOf             bool
	noProcessEnv         bool
	env                  map[string]string

	treeshake    bool
	shouldRemove func(string) bool
	hoisting     bool
	hoistNames   []string
	hashIDs      bool

	splits   []splitPoint
	mappings []api.Rule
	rules    []rewrite.Rule

	containedAPI  bool
	noConflictAPI bool
	bakeInto      string
	apiCallback   func(*API)

	manifest    bool
	noWarnings  bool
	concurrency int
	zl          zerolog.Logger

	err error
}

func (c *config) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// Option is a build option.
type Option func(*config)

// ForTarget sets the environment the bundles are built for. The default is
// Browser.
func ForTarget(t Target) Option {
	return func(c *config) {
		c.target = t
	}
}

// Entry names the program entry by full path (package/relative path). When
// globalName is set the entry's exports are also assigned to that global.
func Entry(fullPath, globalName string) Option {
	return func(c *config) {
		c.entry = fullPath
		c.globalName = globalName
	}
}

// TreeShake turns on removal of unreachable files and unread exports.
// shouldRemove, when not nil, may veto removing a file.
func TreeShake(shouldRemove func(fullPath string) bool) Option {
	return func(c *config) {
		c.treeshake = true
		c.shouldRemove = shouldRemove
	}
}

// Hoisting turns on hoisting. When names are given only files declaring
// nothing but those names are hoisted.
func Hoisting(names ...string) Option {
	return func(c *config) {
		c.hoisting = true
		c.hoistNames = append(c.hoistNames, names...)
	}
}

// Env sets the value process.env.key is replaced with.
func Env(key, value string) Option {
	return func(c *config) {
		if c.env == nil {
			c.env = make(map[string]string)
		}

		c.env[key] = value
	}
}

// Split declares a split point: the code only reachable through entry is
// moved into a bundle called name.
func Split(name, entry string) Option {
	return func(c *config) {
		c.splits = append(c.splits, splitPoint{name: name, entry: entry})
	}
}

// MapRegexp publishes every file whose full path matches re in the mapping
// table, so that it can be required by path at runtime.
func MapRegexp(re *regexp.Regexp) Option {
	return func(c *config) {
		c.mappings = append(c.mappings, api.Regexp(re))
	}
}

// MapGlob is like MapRegexp, but with a doublestar glob pattern.
func MapGlob(pattern string) Option {
	return func(c *config) {
		r, err := api.Glob(pattern)
		if err != nil {
			c.fail(err)

			return
		}

		c.mappings = append(c.mappings, r)
	}
}

// SolveComputed lets resolve answer the computed requires of files matching
// the glob pattern. resolve is given the file's full path and the source of
// the require argument, and returns a full path or a custom id.
func SolveComputed(pattern string, resolve func(file, expr string) (string, bool)) Option {
	return func(c *config) {
		r, err := api.Glob(pattern)
		if err != nil {
			c.fail(err)

			return
		}

		c.rules = append(c.rules, rewrite.Rule{Files: r, Resolve: resolve})
	}
}

// BakeAPIInto names the bundle that carries the runtime API.
func BakeAPIInto(bundle string) Option {
	return func(c *config) {
		c.bakeInto = bundle
	}
}

// APICallback is called with the runtime API before any stage runs.
func APICallback(fn func(*API)) Option {
	return func(c *config) {
		c.apiCallback = fn
	}
}

// Logger sets the logger progress and warnings are written to. The default
// discards everything.
func Logger(zl zerolog.Logger) Option {
	return func(c *config) {
		c.zl = zl
	}
}

// Concurrency bounds how many files or bundles are processed at once.
func Concurrency(n int) Option {
	return func(c *config) {
		c.concurrency = n
	}
}

// RemoveExportsInterop removes the __esModule markers transpilers add.
func RemoveExportsInterop(c *config) {
	c.removeExportsInterop = true
}

// KeepUseStrict leaves "use strict" prologues in place.
func KeepUseStrict(c *config) {
	c.keepUseStrict = true
}

// NoTypeOf leaves typeof module, exports and window checks in place.
func NoTypeOf(c *config) {
	c.noTypeOf = true
}

// NoProcessEnv leaves process.env reads in place.
func NoProcessEnv(c *config) {
	c.noProcessEnv = true
}

// HashIDs addresses modules by a hash of their full path instead of by
// number. Hashed builds are not hoisted.
func HashIDs(c *config) {
	c.hashIDs = true
}

// ContainedAPI keeps the runtime API private to the bundle. Only a single
// bundle may be built.
func ContainedAPI(c *config) {
	c.containedAPI = true
}

// NoConflictAPI gives the runtime API a random name so that several builds
// can share a page.
func NoConflictAPI(c *config) {
	c.noConflictAPI = true
}

// EmitManifest fills in Result.Manifest.
func EmitManifest(c *config) {
	c.manifest = true
}

// NoWarnings stops warnings being written to the logger. They are still
// returned in the Result.
func NoWarnings(c *config) {
	c.noWarnings = true
}

// API is the runtime API of a build, as seen by an APICallback.
type API struct {
	a *api.API
}

// Variable returns the name of the runtime API object.
func (a *API) Variable() string {
	return a.a.Variable()
}

// Contained reports whether the API is private to the bundle.
func (a *API) Contained() bool {
	return a.a.Contained()
}

// MapGlob adds a mapping rule, as the MapGlob option does.
func (a *API) MapGlob(pattern string) error {
	r, err := api.Glob(pattern)
	if err != nil {
		return err
	}

	a.a.AddRule(r)

	return nil
}

// MapRegexp adds a mapping rule, as the MapRegexp option does.
func (a *API) MapRegexp(re *regexp.Regexp) {
	a.a.AddRule(api.Regexp(re))
}
