/*
Package import_ wires the configured components together for the
commands: it builds the allow-list table and runs PBF files through the
classifier.
*/
package import_

import (
	"context"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/streetferret/crudo/allowlist"
	"github.com/streetferret/crudo/cache"
	"github.com/streetferret/crudo/catalog"
	"github.com/streetferret/crudo/collect"
	"github.com/streetferret/crudo/config"
	"github.com/streetferret/crudo/database/postgres"
	"github.com/streetferret/crudo/log"
	"github.com/streetferret/crudo/profile"
	"github.com/streetferret/crudo/reader"
	"github.com/streetferret/crudo/stats"
	"github.com/streetferret/crudo/taginfo"
)

// AllowList builds the allow-list table for all layers of c.
func AllowList(ctx context.Context, conf config.Config, c *catalog.Catalog) (*allowlist.Table, error) {
	opts := allowlist.Options{Concurrency: conf.Taginfo.Concurrency}
	if conf.Taginfo.CacheDir != "" {
		if err := os.MkdirAll(conf.Taginfo.CacheDir, 0755); err != nil {
			return nil, err
		}
		store, err := cache.Open(conf.Taginfo.CacheDir, conf.Taginfo.CacheTTL)
		if err != nil {
			return nil, err
		}
		defer store.Close()
		opts.Store = store
	}
	client := taginfo.NewClient(conf.TaginfoConfig())
	return allowlist.Build(ctx, c.Keys(), client, opts)
}

// Profile builds the catalog and allow-lists and returns the classifier.
func Profile(ctx context.Context, conf config.Config) (*profile.Profile, error) {
	c, err := conf.LoadCatalog()
	if err != nil {
		return nil, err
	}
	table, err := AllowList(ctx, conf, c)
	if err != nil {
		return nil, err
	}
	return profile.New(c.Index(), table, conf.ProfileOptions()), nil
}

// LayerCount is the number of output features per layer and geometry.
type LayerCount struct {
	Layer    string
	Geometry collect.GeometryType
	Count    int64
}

// Summary counts features in memory and optionally forwards them to
// another sink.
type Summary struct {
	mu     sync.Mutex
	counts map[string]map[collect.GeometryType]int64
	next   reader.Sink
}

func NewSummary(next reader.Sink) *Summary {
	return &Summary{counts: make(map[string]map[collect.GeometryType]int64), next: next}
}

func (s *Summary) Write(features []*collect.Feature) error {
	s.mu.Lock()
	for _, f := range features {
		byGeom, ok := s.counts[f.Layer]
		if !ok {
			byGeom = make(map[collect.GeometryType]int64)
			s.counts[f.Layer] = byGeom
		}
		byGeom[f.Geometry] += 1
	}
	s.mu.Unlock()
	if s.next != nil {
		return s.next.Write(features)
	}
	return nil
}

// Counts returns the counts sorted by layer and geometry.
func (s *Summary) Counts() []LayerCount {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []LayerCount
	for layer, byGeom := range s.counts {
		for geom, n := range byGeom {
			result = append(result, LayerCount{Layer: layer, Geometry: geom, Count: n})
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Layer != result[j].Layer {
			return result[i].Layer < result[j].Layer
		}
		return result[i].Geometry < result[j].Geometry
	})
	return result
}

// Pbf classifies all features of filename. Output features are counted
// and copied into the database when conf.Connection is set.
func Pbf(ctx context.Context, conf config.Config, filename string) (*Summary, error) {
	p, err := Profile(ctx, conf)
	if err != nil {
		return nil, err
	}

	var sink *postgres.Sink
	if conf.Connection != "" {
		sink, err = postgres.Open(postgres.Config{ConnectionParams: conf.Connection})
		if err != nil {
			return nil, err
		}
		defer sink.Close()
		if err := sink.Begin(); err != nil {
			return nil, err
		}
	}

	var next reader.Sink
	if sink != nil {
		next = sink
	}
	summary := NewSummary(next)

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	step := log.Step("Classifying " + filename)
	progress := stats.StatsReporter(time.Second)
	err = reader.ReadPbf(ctx, f, p, summary, reader.Config{
		Workers:  conf.Workers,
		Progress: progress,
	})
	progress.Stop()
	step()
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", filename)
	}

	if sink != nil {
		if err := sink.Commit(); err != nil {
			return nil, err
		}
	}
	return summary, nil
}
