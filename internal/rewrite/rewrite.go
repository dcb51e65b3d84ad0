// Package rewrite applies the per-file modification passes: it points every
// require and dynamic import at its target's id and folds the build-time
// constants the target environment implies.
//
// Passes work on the file's token stream in place. A rewritten token keeps its
// index, so a pass run a second time finds nothing left to change.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/logger"
)

// ErrMalformedStatement is returned when a statement's token positions do not
// describe a call.
var ErrMalformedStatement = errors.New("malformed statement")

// ErrUnknownTarget is returned by ParseTarget.
var ErrUnknownTarget = errors.New("unknown target")

// Target is the environment the output will run in.
type Target uint8

// Targets.
const (
	Browser Target = iota
	Server
	NPM
	Electron
	Universal
)

var targetNames = [...]string{"browser", "server", "npm", "electron", "universal"}

func (t Target) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}

	return "unknown"
}

// ParseTarget converts a target name to a Target.
func ParseTarget(name string) (Target, error) {
	for n, tn := range targetNames {
		if strings.EqualFold(name, tn) {
			return Target(n), nil
		}
	}

	return 0, fmt.Errorf("%q: %w", name, ErrUnknownTarget)
}

// Node reports whether node built-in modules are available to the target.
func (t Target) Node() bool {
	return t == Server || t == NPM || t == Electron
}

// Rule resolves computed requires in the files whose full path Files matches.
type Rule struct {
	Files api.Rule

	// Resolve is given the full path of the requiring file and the source of
	// the require argument. It returns the full path of the target file, or a
	// custom id for targets outside the graph.
	Resolve func(file, expr string) (string, bool)
}

// Options selects which passes make changes.
type Options struct {
	Target               Target
	RemoveExportsInterop bool
	RemoveUseStrict      bool
	ReplaceTypeOf        bool
	ReplaceProcessEnv    bool
	Env                  map[string]string
	Rules                []Rule
}

// Context is shared by every pass of a build.
type Context struct {
	Options

	Graph *graph.Graph
	API   *api.API
	Log   *logger.Log
}

// Pass is a single modification.
type Pass func(*Context, *graph.File) error

// Passes are run in order over each file.
var Passes = [...]Pass{
	ResolveStatements,
	DynamicImports,
	FoldEnvironment,
	RemoveInterop,
	RemoveUseStrict,
	ReplaceTypeOf,
	ReplaceProcessEnv,
}

// File runs every pass over one file.
func (c *Context) File(f *graph.File) error {
	for _, pass := range Passes {
		if err := pass(c, f); err != nil {
			return err
		}
	}

	return nil
}

// All rewrites every file, up to concurrency files at a time.
func (c *Context) All(ctx context.Context, zl zerolog.Logger, concurrency int) error {
	if concurrency <= 0 {
		concurrency = runtime.GOMAXPROCS(0)
	}

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(concurrency)

	for _, f := range c.Graph.Files() {
		if gctx.Err() != nil {
			break
		}

		eg.Go(func() error {
			if err := c.File(f); err != nil {
				return fmt.Errorf("%s: %w", f.FullPath(), err)
			}

			zl.Debug().Str("file", f.FullPath()).Msg("rewritten")

			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	return ctx.Err()
}
