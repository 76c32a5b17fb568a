// Package reader classifies all elements of an OSM PBF file.
package reader

import (
	"context"
	"io"
	"runtime"
	"sync"

	osm "github.com/omniscale/go-osm"
	"github.com/omniscale/go-osm/parser/pbf"
	"github.com/pkg/errors"

	"github.com/streetferret/crudo/collect"
	"github.com/streetferret/crudo/log"
	"github.com/streetferret/crudo/profile"
	"github.com/streetferret/crudo/stats"
)

// DefaultSource is the source label of features read from PBF files.
const DefaultSource = "osm"

// Sink receives the output features of a batch of source features.
// Write is only called from one goroutine at a time.
type Sink interface {
	Write(features []*collect.Feature) error
}

type Config struct {
	// Workers per element type. Defaults to runtime.NumCPU.
	Workers int
	// Source is the label of all read features.
	Source   string
	Progress *stats.Statistics
}

// ReadPbf parses r and passes every tagged node, way and relation
// through p. Output features are written to sink in batches.
func ReadPbf(ctx context.Context, r io.Reader, p Classifier, sink Sink, conf Config) error {
	if conf.Workers <= 0 {
		conf.Workers = runtime.NumCPU()
	}
	if conf.Source == "" {
		conf.Source = DefaultSource
	}

	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nodes := make(chan []osm.Node, 4)
	ways := make(chan []osm.Way, 4)
	relations := make(chan []osm.Relation, 4)
	batches := make(chan []*collect.Feature, 4*conf.Workers)

	// the parser only closes its channels after a complete read, we
	// close them ourselves
	parser := pbf.New(r, pbf.Config{
		Nodes:       nodes,
		Ways:        ways,
		Relations:   relations,
		Concurrency: conf.Workers,
		KeepOpen:    true,
	})
	header, err := parser.Header()
	if err != nil {
		return errors.Wrap(err, "parsing PBF header")
	}
	if header.Time.Unix() > 0 {
		log.Infof("reading PBF with data till %v", header.Time.Local())
	}

	var sinkErr error
	sinkDone := make(chan struct{})
	go func() {
		defer close(sinkDone)
		for b := range batches {
			if sinkErr != nil {
				continue
			}
			if err := sink.Write(b); err != nil {
				sinkErr = errors.Wrap(err, "writing features")
				cancel()
			}
		}
	}()

	abort := make(chan struct{})
	w := &worker{profile: p, source: conf.Source, progress: conf.Progress, batches: batches}
	wg := sync.WaitGroup{}
	for i := 0; i < conf.Workers; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			for {
				select {
				case nds, ok := <-nodes:
					if !ok {
						return
					}
					w.nodes(nds)
				case <-abort:
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case ws, ok := <-ways:
					if !ok {
						return
					}
					w.ways(ws)
				case <-abort:
					return
				}
			}
		}()
		go func() {
			defer wg.Done()
			for {
				select {
				case rels, ok := <-relations:
					if !ok {
						return
					}
					w.relations(rels)
				case <-abort:
					return
				}
			}
		}()
	}

	parseErr := parser.Parse(ctx)
	if parseErr == nil || parseErr == ctx.Err() {
		// all blocks are parsed, workers process the remaining batches
		close(nodes)
		close(ways)
		close(relations)
		wg.Wait()
	} else {
		// a failed Parse returns while block parsers may still send
		close(abort)
		wg.Wait()
		go func() {
			for range nodes {
			}
		}()
		go func() {
			for range ways {
			}
		}()
		go func() {
			for range relations {
			}
		}()
	}
	close(batches)
	<-sinkDone

	if sinkErr != nil {
		return sinkErr
	}
	if err := parent.Err(); err != nil {
		return err
	}
	if parseErr != nil {
		return errors.Wrap(parseErr, "parsing PBF")
	}
	return nil
}

// Classifier emits the output features of one source feature.
// It is implemented by *profile.Profile.
type Classifier interface {
	Process(src profile.SourceFeature, features profile.FeatureCollector) error
}

type worker struct {
	profile  Classifier
	source   string
	progress *stats.Statistics
	batches  chan<- []*collect.Feature
}

func (w *worker) nodes(nds []osm.Node) {
	c := collect.New(0)
	var out []*collect.Feature
	for i := range nds {
		if len(nds[i].Tags) == 0 {
			continue
		}
		c.Reset(nds[i].ID)
		if err := w.profile.Process(&Node{Node: &nds[i], Label: w.source}, c); err != nil {
			continue
		}
		out = append(out, c.Features()...)
	}
	if w.progress != nil {
		w.progress.AddNodes(len(nds))
	}
	w.emit(out)
}

func (w *worker) ways(ws []osm.Way) {
	c := collect.New(0)
	var out []*collect.Feature
	for i := range ws {
		if len(ws[i].Tags) == 0 {
			continue
		}
		c.Reset(ws[i].ID)
		if err := w.profile.Process(&Way{Way: &ws[i], Label: w.source}, c); err != nil {
			continue
		}
		out = append(out, c.Features()...)
	}
	if w.progress != nil {
		w.progress.AddWays(len(ws))
	}
	w.emit(out)
}

func (w *worker) relations(rels []osm.Relation) {
	c := collect.New(0)
	var out []*collect.Feature
	for i := range rels {
		if len(rels[i].Tags) == 0 {
			continue
		}
		c.Reset(rels[i].ID)
		if err := w.profile.Process(&Relation{Relation: &rels[i], Label: w.source}, c); err != nil {
			continue
		}
		out = append(out, c.Features()...)
	}
	if w.progress != nil {
		w.progress.AddRelations(len(rels))
	}
	w.emit(out)
}

func (w *worker) emit(out []*collect.Feature) {
	if len(out) == 0 {
		return
	}
	if w.progress != nil {
		w.progress.AddFeatures(len(out))
	}
	w.batches <- out
}
