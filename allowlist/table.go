/*
Package allowlist builds the per-layer sets of tag keys that are kept as
attributes.

A Table is built once before any feature is processed and is read-only
afterwards, so it can be shared between any number of goroutines.
*/
package allowlist

import (
	"sort"

	osm "github.com/omniscale/go-osm"
)

// Set is a set of attribute keys.
type Set map[string]struct{}

func (s Set) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// Table maps layer names to their allowed attribute keys. Layers whose
// lookup failed have no entry.
type Table struct {
	layers map[string]Set
}

// NewTable builds a table from fetched keys. Each layer's own name is
// added to its set.
func NewTable(fetched map[string][]string) *Table {
	t := &Table{layers: make(map[string]Set, len(fetched))}
	for layer, keys := range fetched {
		set := make(Set, len(keys)+1)
		for _, k := range keys {
			set[k] = struct{}{}
		}
		set[layer] = struct{}{}
		t.layers[layer] = set
	}
	return t
}

// Lookup returns the set of layer. ok is false if the layer has no entry.
func (t *Table) Lookup(layer string) (Set, bool) {
	s, ok := t.layers[layer]
	return s, ok
}

// Allowed reports whether key is kept for features in layer. Layers
// without entry allow nothing.
func (t *Table) Allowed(layer, key string) bool {
	return t.layers[layer].Contains(key)
}

// Filter returns the tags that are allowed in layer. The result is nil
// if nothing passes.
func (t *Table) Filter(layer string, tags osm.Tags) osm.Tags {
	set, ok := t.layers[layer]
	if !ok {
		return nil
	}
	var result osm.Tags
	for k, v := range tags {
		if k == "" {
			continue
		}
		if _, ok := set[k]; ok {
			if result == nil {
				result = make(osm.Tags)
			}
			result[k] = v
		}
	}
	return result
}

// Layers returns all layers with an entry, sorted.
func (t *Table) Layers() []string {
	layers := make([]string, 0, len(t.layers))
	for l := range t.layers {
		layers = append(layers, l)
	}
	sort.Strings(layers)
	return layers
}

// Keys returns the allowed keys of layer, sorted.
func (t *Table) Keys(layer string) []string {
	set := t.layers[layer]
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (t *Table) Len() int { return len(t.layers) }
