/*
Package profile classifies OSM source features into output layers.

For each source feature the Profile picks the layer of the first catalog
key present in the feature's tags and emits one or more output features
through a FeatureCollector, each carrying only the tags that are allowed
in that layer.

A Profile is immutable and ProcessFeature can be called from any number
of goroutines.
*/
package profile

import (
	"fmt"

	osm "github.com/omniscale/go-osm"
	"github.com/pkg/errors"

	"github.com/streetferret/crudo"
	"github.com/streetferret/crudo/allowlist"
	"github.com/streetferret/crudo/catalog"
	"github.com/streetferret/crudo/log"
	"github.com/streetferret/crudo/stats"
)

// SourceFeature is one input record of the tile pipeline.
type SourceFeature interface {
	ID() int64
	// Source is the label of the dataset the feature was read from.
	Source() string
	Tags() osm.Tags
	IsPoint() bool
	CanBePolygon() bool
	CanBeLine() bool
}

// Feature is an output feature created by a FeatureCollector.
type Feature interface {
	SetAttr(key, value string) Feature
	SetMinPixelSize(px float64) Feature
}

// FeatureCollector creates output features for one source feature.
type FeatureCollector interface {
	Point(layer string) Feature
	Centroid(layer string) Feature
	Polygon(layer string) Feature
	Line(layer string) Feature
}

const (
	DefaultMinPixelSize = 4
	DefaultWaterSource  = "water"
	WaterLayer          = "water"
)

type Options struct {
	// MinPixelSize is set on every output feature.
	MinPixelSize float64
	// WaterSource is the source label of ocean polygons.
	WaterSource string
	// FallbackLayer receives features without any catalog key. Such
	// features are dropped if empty.
	FallbackLayer string
}

func (o Options) withDefaults() Options {
	if o.MinPixelSize <= 0 {
		o.MinPixelSize = DefaultMinPixelSize
	}
	if o.WaterSource == "" {
		o.WaterSource = DefaultWaterSource
	}
	return o
}

type Profile struct {
	index *catalog.Index
	table *allowlist.Table
	opts  Options
}

func New(index *catalog.Index, table *allowlist.Table, opts Options) *Profile {
	return &Profile{
		index: index,
		table: table,
		opts:  opts.withDefaults(),
	}
}

func (p *Profile) Name() string { return crudo.Name }

// Layer returns the output layer for tags. Only the first catalog match
// is used, further matches are ignored.
func (p *Profile) Layer(tags osm.Tags) (string, bool) {
	if layer, ok := p.index.First(tags); ok {
		return layer, true
	}
	if p.opts.FallbackLayer != "" {
		return p.opts.FallbackLayer, true
	}
	return "", false
}

// ProcessFeature emits the output features for src. Failures are logged
// and counted and never abort the caller. Features emitted before a
// failure stay in the collector; use Process to discard them.
func (p *Profile) ProcessFeature(src SourceFeature, features FeatureCollector) {
	p.Process(src, features)
}

// Process is ProcessFeature but returns the failure, if any. The output
// of a failed feature is incomplete and should be dropped by the caller.
func (p *Profile) Process(src SourceFeature, features FeatureCollector) (err error) {
	var layer string
	defer func() {
		if r := recover(); r != nil {
			stats.FeatureFailures.WithLabelValues("panic").Inc()
			log.Error("processing feature failed", log.Fields{
				"id":    src.ID(),
				"layer": layer,
				"err":   fmt.Sprint(r),
			})
			err = errors.Errorf("processing feature %d: %v", src.ID(), r)
		}
	}()

	if src.Source() == p.opts.WaterSource {
		features.Polygon(WaterLayer).
			SetMinPixelSize(p.opts.MinPixelSize).
			SetAttr("water", "ocean")
		stats.EmittedFeatures.WithLabelValues(WaterLayer, "polygon").Inc()
		return nil
	}

	tags := src.Tags()
	layer, ok := p.Layer(tags)
	if !ok {
		stats.UnmatchedFeatures.Inc()
		return nil
	}

	// filter once and share between centroid and polygon
	attrs := p.table.Filter(layer, tags)

	switch {
	case src.IsPoint():
		p.configure(features.Point(layer), attrs)
		stats.EmittedFeatures.WithLabelValues(layer, "point").Inc()
	case src.CanBePolygon():
		p.configure(features.Centroid(layer), attrs)
		p.configure(features.Polygon(layer), attrs)
		stats.EmittedFeatures.WithLabelValues(layer, "centroid").Inc()
		stats.EmittedFeatures.WithLabelValues(layer, "polygon").Inc()
	case src.CanBeLine():
		p.configure(features.Line(layer), attrs)
		stats.EmittedFeatures.WithLabelValues(layer, "line").Inc()
	}
	return nil
}

func (p *Profile) configure(f Feature, attrs osm.Tags) {
	for k, v := range attrs {
		f.SetAttr(k, v)
	}
	f.SetMinPixelSize(p.opts.MinPixelSize)
}
