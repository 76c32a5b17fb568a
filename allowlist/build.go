package allowlist

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/streetferret/crudo/log"
	"github.com/streetferret/crudo/stats"
	"github.com/streetferret/crudo/taginfo"
)

// Fetcher returns the most frequent keys used together with key.
type Fetcher interface {
	TopCombinations(ctx context.Context, key string) ([]string, error)
}

// Store persists fetched keys between runs.
type Store interface {
	Get(layer string) ([]string, bool, error)
	Put(layer string, keys []string) error
}

type Options struct {
	// Concurrency limits the number of parallel lookups. Defaults to 1.
	Concurrency int
	// Store is optional.
	Store Store
}

// KindCache marks failed reads or writes of the Store.
const KindCache = "cache"

// Build looks up every layer and returns the frozen table. A failed
// lookup is logged and counted, and leaves the layer without entry.
// Build only returns an error if ctx is done before all lookups finished.
func Build(ctx context.Context, layers []string, f Fetcher, opts Options) (*Table, error) {
	defer log.Step("Building attribute allow-lists")()

	g := errgroup.Group{}
	if opts.Concurrency > 0 {
		g.SetLimit(opts.Concurrency)
	} else {
		g.SetLimit(1)
	}

	mu := sync.Mutex{}
	fetched := make(map[string][]string, len(layers))

	for _, layer := range layers {
		layer := layer
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			keys, ok := lookup(ctx, layer, f, opts.Store)
			if ok {
				mu.Lock()
				fetched[layer] = keys
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t := NewTable(fetched)
	log.Infof("allow-lists for %d of %d layers", t.Len(), len(layers))
	return t, nil
}

func lookup(ctx context.Context, layer string, f Fetcher, store Store) ([]string, bool) {
	if store != nil {
		keys, ok, err := store.Get(layer)
		if err != nil {
			fail(layer, KindCache, err)
		} else if ok {
			stats.FetchedLayers.WithLabelValues("cache").Inc()
			return keys, true
		}
	}

	keys, err := f.TopCombinations(ctx, layer)
	if err != nil {
		if ctx.Err() == nil {
			fail(layer, taginfo.KindOf(err), err)
		}
		return nil, false
	}
	stats.FetchedLayers.WithLabelValues("taginfo").Inc()

	if store != nil {
		if err := store.Put(layer, keys); err != nil {
			fail(layer, KindCache, err)
		}
	}
	return keys, true
}

func fail(layer, kind string, err error) {
	stats.FetchFailures.WithLabelValues(layer, kind).Inc()
	log.Warn("allow-list lookup failed", log.Fields{"layer": layer, "kind": kind, "err": err})
}
