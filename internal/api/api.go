// Package api holds the state of the runtime API a build bakes into its
// output: the mapping table, the computed-require flag and the split bundle
// map.
package api

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Variable is the default name of the runtime API object.
const Variable = "$fsx"

// Rule claims full paths for the mapping table.
type Rule interface {
	Match(fullPath string) bool
	String() string
}

type regexpRule struct {
	re *regexp.Regexp
}

// Regexp makes a rule from a regular expression.
func Regexp(re *regexp.Regexp) Rule {
	return regexpRule{re: re}
}

func (r regexpRule) Match(fullPath string) bool {
	return r.re.MatchString(fullPath)
}

func (r regexpRule) String() string {
	return r.re.String()
}

type globRule string

// Glob makes a rule from a doublestar pattern. It returns
// doublestar.ErrBadPattern for a malformed pattern.
func Glob(pattern string) (Rule, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}

	return globRule(pattern), nil
}

func (g globRule) Match(fullPath string) bool {
	ok, _ := doublestar.Match(string(g), fullPath)

	return ok
}

func (g globRule) String() string {
	return string(g)
}

// Entry is one row of a runtime table.
type Entry struct {
	Key   string
	Value string
}

// API is safe for concurrent use.
type API struct {
	mu sync.Mutex

	variable  string
	contained bool
	custom    bool
	fileMap   bool

	rules    []Rule
	mappings map[string]string
	splits   map[string]string
}

// New creates the API state for one build.
func New(variable string, contained bool) *API {
	if variable == "" {
		variable = Variable
	}

	return &API{
		variable:  variable,
		contained: contained,
		mappings:  make(map[string]string),
		splits:    make(map[string]string),
	}
}

// RandomVariable returns a name of the form _xxxx for builds that must not
// clash with another bundle's API object.
func RandomVariable() string {
	var b [2]byte

	rand.Read(b[:])

	return "_" + hex.EncodeToString(b[:])
}

// Variable returns the name of the runtime API object.
func (a *API) Variable() string {
	return a.variable
}

// Contained reports whether the API object is kept private to the bundle.
func (a *API) Contained() bool {
	return a.contained
}

// AddRule registers a mapping rule.
func (a *API) AddRule(r Rule) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.rules = append(a.rules, r)
}

// Rules returns the registered mapping rules.
func (a *API) Rules() []Rule {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]Rule(nil), a.rules...)
}

// Claims reports whether any mapping rule matches the full path.
func (a *API) Claims(fullPath string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, r := range a.rules {
		if r.Match(fullPath) {
			return true
		}
	}

	return false
}

// AddMapping records that a full path is reachable at an address.
func (a *API) AddMapping(fullPath, address string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.mappings[fullPath] = address
}

// Mapped reports whether a full path is in the mapping table.
func (a *API) Mapped(fullPath string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.mappings[fullPath]

	return ok
}

// Mappings returns the mapping table sorted by full path.
func (a *API) Mappings() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	return sorted(a.mappings)
}

// UseCustom records use of a feature that needs the API to be reachable from
// outside the bundle. It reports whether that conflicts with a contained API.
func (a *API) UseCustom() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.custom = true

	return a.contained
}

// Custom reports whether custom mappings or computed rules are in use.
func (a *API) Custom() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.custom
}

// UseFileMap records that some file dispatches computed requires, so the path
// table must be emitted.
func (a *API) UseFileMap() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.fileMap = true
}

// FileMap reports whether the path table is needed.
func (a *API) FileMap() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.fileMap
}

// AddSplit records the bundle file a dynamically imported address lives in.
func (a *API) AddSplit(address, file string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.splits[address] = file
}

// Splits returns the split bundle map sorted by address.
func (a *API) Splits() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()

	return sorted(a.splits)
}

func sorted(m map[string]string) []Entry {
	entries := make([]Entry, 0, len(m))

	for k, v := range m {
		entries = append(entries, Entry{Key: k, Value: v})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Key < entries[j].Key
	})

	return entries
}
