package quantum

import (
	"encoding/hex"
	"encoding/json"

	"lukechampine.com/blake3"
	"vimagination.zapto.org/quantum/graph"
	"vimagination.zapto.org/quantum/internal/render"
)

type manifestBundle struct {
	Name  string `json:"name"`
	File  string `json:"file"`
	Split bool   `json:"split,omitempty"`
	Hash  string `json:"hash"`
	Size  int    `json:"size"`
	Gzip  int    `json:"gzip"`
}

type manifestFile struct {
	ID      int    `json:"id"`
	Address string `json:"address"`
	Bundle  string `json:"bundle"`
	Hoisted bool   `json:"hoisted,omitempty"`
	Entry   bool   `json:"entry,omitempty"`
}

type manifestJSON struct {
	Session string                  `json:"session"`
	Bundles []manifestBundle        `json:"bundles"`
	Files   map[string]manifestFile `json:"files"`
}

// manifest describes where every surviving file ended up.
func manifest(session string, g *graph.Graph, stats []Stat) ([]byte, error) {
	m := manifestJSON{
		Session: session,
		Files:   make(map[string]manifestFile),
	}

	for n, b := range g.Bundles() {
		sum := blake3.Sum256(b.Code)

		mb := manifestBundle{
			Name:  b.Name,
			File:  render.FileName(b.Name),
			Split: b.Split,
			Hash:  hex.EncodeToString(sum[:]),
		}

		if n < len(stats) {
			mb.Size = stats[n].Size
			mb.Gzip = stats[n].Gzip
		}

		m.Bundles = append(m.Bundles, mb)
	}

	for _, f := range g.Files() {
		if f.Removed {
			continue
		}

		var bundle string

		if b := g.BundleOf(f); b != nil {
			bundle = b.Name
		}

		m.Files[f.FullPath()] = manifestFile{
			ID:      f.ID,
			Address: f.Address,
			Bundle:  bundle,
			Hoisted: f.Hoisted,
			Entry:   f.Entry,
		}
	}

	return json.MarshalIndent(m, "", "\t")
}
