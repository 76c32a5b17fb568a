package catalog

import (
	"sort"

	osm "github.com/omniscale/go-osm"
)

// Index matches tag sets against a catalog. Only the presence of a key
// counts, its value is ignored.
type Index struct {
	catalog *Catalog
}

func (c *Catalog) Index() *Index {
	return &Index{catalog: c}
}

// Matches returns all catalog keys present in tags, in catalog order.
func (idx *Index) Matches(tags osm.Tags) []string {
	var positions []int
	if len(tags) < len(idx.catalog.keys) {
		for k := range tags {
			if p, ok := idx.catalog.pos[k]; ok {
				positions = append(positions, p)
			}
		}
		sort.Ints(positions)
	} else {
		for p, k := range idx.catalog.keys {
			if _, ok := tags[k]; ok {
				positions = append(positions, p)
			}
		}
	}
	if len(positions) == 0 {
		return nil
	}
	matches := make([]string, len(positions))
	for i, p := range positions {
		matches[i] = idx.catalog.keys[p]
	}
	return matches
}

// First returns the highest priority match without allocating.
func (idx *Index) First(tags osm.Tags) (string, bool) {
	best := -1
	for k := range tags {
		if p, ok := idx.catalog.pos[k]; ok && (best < 0 || p < best) {
			best = p
			if best == 0 {
				break
			}
		}
	}
	if best < 0 {
		return "", false
	}
	return idx.catalog.keys[best], true
}
