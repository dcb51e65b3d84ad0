// Package ids gives every file in a graph its module id.
package ids

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"
	"lukechampine.com/blake3"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/api"
	"vimagination.zapto.org/quantum/internal/logger"
)

// Errors.
var (
	ErrMissingFullPath = errors.New("file has no full path")
	ErrHashCollision   = errors.New("module hash collision")
	ErrDuplicateID     = errors.New("module id already in use")
)

// Options controls assignment.
type Options struct {
	// Entry is the full path of the program entry; when empty the entry file
	// of the first package of the first bundle is used.
	Entry      string
	GlobalName string

	// Hash gives each file a hashed address instead of its numeric one.
	Hash bool
}

// Assign walks bundles, then packages, then files, numbering each file from 0.
// Files that already have an id keep it and numbering continues after the
// highest. Two files given the same id is an error.
func Assign(g *graph.Graph, a *api.API, log *logger.Log, zl zerolog.Logger, o Options) error {
	next := 0
	taken := make(map[int]*graph.File)

	for _, f := range g.Files() {
		if f.ID < 0 {
			continue
		}

		if other, ok := taken[f.ID]; ok {
			return fmt.Errorf("%s and %s share %d: %w", other.FullPath(), f.FullPath(), f.ID, ErrDuplicateID)
		}

		taken[f.ID] = f

		if f.ID >= next {
			next = f.ID + 1
		}
	}

	entry := o.Entry
	if entry == "" {
		entry = defaultEntry(g)
	}

	hashes := make(map[string]string)
	foundEntry := false

	for _, b := range g.Bundles() {
		for _, p := range g.PackagesOf(b.Ref) {
			for _, f := range g.FilesOf(p.Ref) {
				fp := f.FullPath()
				if fp == "" {
					return fmt.Errorf("file %d in package %q: %w", f.Ref, p.Name, ErrMissingFullPath)
				}

				if f.ID < 0 {
					f.ID = next
					next++
				}

				f.Address = strconv.Itoa(f.ID)

				if o.Hash {
					h := hash(fp)
					if other, ok := hashes[h]; ok {
						return fmt.Errorf("%s and %s: %w", other, fp, ErrHashCollision)
					}

					hashes[h] = fp
					f.Address = strconv.Quote(h)
				}

				if fp == entry {
					f.Entry = true
					f.GlobalName = o.GlobalName
					foundEntry = true
				}

				if a.Claims(fp) {
					a.AddMapping(fp, f.Address)
				}

				zl.Debug().Str("file", fp).Int("id", f.ID).Msg("assigned id")
			}
		}
	}

	if !foundEntry && entry != "" {
		log.AddWarning(entry, "entry file not found in graph")
	}

	return nil
}

func defaultEntry(g *graph.Graph) string {
	for _, b := range g.Bundles() {
		for _, p := range g.PackagesOf(b.Ref) {
			if p.EntryFile != "" {
				if f, ok := g.LookupPath(p.Name + "/" + p.EntryFile); ok {
					return f.FullPath()
				}
			}

			return ""
		}
	}

	return ""
}

func hash(fullPath string) string {
	sum := blake3.Sum256([]byte(fullPath))

	return hex.EncodeToString(sum[:4])
}
