/*
Package catalog holds the ordered list of OSM top-level keys that become
output layers.

The order of a Catalog is the match priority: a feature that carries more
than one catalog key belongs to the layer of the key that comes first.
Catalogs are immutable once created and safe for concurrent use.
*/
package catalog

import (
	"io/ioutil"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

// defaultKeys is the hand-curated layer list in priority order.
var defaultKeys = []string{
	"building",
	"natural",
	"landuse",
	"boundary",
	"route",
	"place",
	"amenity",
	"tourism",
	"healthcare",
	"shop",
	"craft",
	"leisure",
	"golf",
	"barrier",
	"man_made",
	"waterway",
	"highway",
	"public_transit",
	"railway",
	"power",
	"aerialway",
	"aeroway",
	"historic",
	"military",
	"emergency",
	"office",
	"geological",
	"sport",
	"advertising",
	"airmark",
	"cemetery",
	"entrance",
	"indoor",
	"landcover",
	"pipeline",
	"playground",
	"traffic_sign",
}

type Catalog struct {
	keys []string
	pos  map[string]int
}

// New validates keys and returns a catalog in the given order.
// Empty catalogs, blank keys and duplicates are rejected.
func New(keys []string) (*Catalog, error) {
	if len(keys) == 0 {
		return nil, errors.New("catalog is empty")
	}
	c := &Catalog{
		keys: make([]string, 0, len(keys)),
		pos:  make(map[string]int, len(keys)),
	}
	for i, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, errors.Errorf("blank key at position %d", i)
		}
		if prev, ok := c.pos[k]; ok {
			return nil, errors.Errorf("duplicate key %q at position %d (first at %d)", k, i, prev)
		}
		c.pos[k] = len(c.keys)
		c.keys = append(c.keys, k)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := New(defaultKeys)
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Layers []string `yaml:"layers"`
}

// Parse reads a catalog from a YAML document with a `layers` list.
func Parse(b []byte) (*Catalog, error) {
	f := catalogFile{}
	if err := yaml.UnmarshalStrict(b, &f); err != nil {
		return nil, errors.Wrap(err, "parsing catalog")
	}
	return New(f.Layers)
}

func Load(filename string) (*Catalog, error) {
	b, err := ioutil.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	c, err := Parse(b)
	if err != nil {
		return nil, errors.Wrapf(err, "loading %s", filename)
	}
	return c, nil
}

// Keys returns a copy of the layer names in priority order.
func (c *Catalog) Keys() []string {
	keys := make([]string, len(c.keys))
	copy(keys, c.keys)
	return keys
}

func (c *Catalog) Len() int { return len(c.keys) }

func (c *Catalog) Contains(key string) bool {
	_, ok := c.pos[key]
	return ok
}
