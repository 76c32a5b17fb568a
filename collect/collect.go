// Package collect contains in-memory implementations of the pipeline
// side of the classifier: simple source features and a collector that
// records the emitted output features.
package collect

import (
	osm "github.com/omniscale/go-osm"

	"github.com/streetferret/crudo/profile"
)

type GeometryType string

const (
	Point    GeometryType = "point"
	Centroid GeometryType = "centroid"
	Polygon  GeometryType = "polygon"
	Line     GeometryType = "line"
)

// Capability describes which geometries a source feature can provide.
type Capability uint8

const (
	CanPoint Capability = 1 << iota
	CanPolygon
	CanLine
)

// Source is a plain SourceFeature.
type Source struct {
	Id         int64
	Label      string
	Capability Capability
	Tagmap     osm.Tags
}

var _ profile.SourceFeature = &Source{}

func (s *Source) ID() int64          { return s.Id }
func (s *Source) Source() string     { return s.Label }
func (s *Source) Tags() osm.Tags     { return s.Tagmap }
func (s *Source) IsPoint() bool      { return s.Capability&CanPoint != 0 }
func (s *Source) CanBePolygon() bool { return s.Capability&CanPolygon != 0 }
func (s *Source) CanBeLine() bool    { return s.Capability&CanLine != 0 }

// Feature is one emitted output feature.
type Feature struct {
	SourceID     int64
	Layer        string
	Geometry     GeometryType
	MinPixelSize float64
	Attrs        map[string]string
}

var _ profile.Feature = &Feature{}

func (f *Feature) SetAttr(key, value string) profile.Feature {
	if f.Attrs == nil {
		f.Attrs = make(map[string]string)
	}
	f.Attrs[key] = value
	return f
}

func (f *Feature) SetMinPixelSize(px float64) profile.Feature {
	f.MinPixelSize = px
	return f
}

// Collector records all features created for one source feature.
// It is not safe for concurrent use.
type Collector struct {
	sourceID int64
	features []*Feature
}

var _ profile.FeatureCollector = &Collector{}

func New(sourceID int64) *Collector {
	return &Collector{sourceID: sourceID}
}

// Reset clears the collector for the next source feature.
func (c *Collector) Reset(sourceID int64) {
	c.sourceID = sourceID
	c.features = nil
}

func (c *Collector) add(layer string, geom GeometryType) profile.Feature {
	f := &Feature{SourceID: c.sourceID, Layer: layer, Geometry: geom}
	c.features = append(c.features, f)
	return f
}

func (c *Collector) Point(layer string) profile.Feature    { return c.add(layer, Point) }
func (c *Collector) Centroid(layer string) profile.Feature { return c.add(layer, Centroid) }
func (c *Collector) Polygon(layer string) profile.Feature  { return c.add(layer, Polygon) }
func (c *Collector) Line(layer string) profile.Feature     { return c.add(layer, Line) }

// Features returns the collected features in creation order.
func (c *Collector) Features() []*Feature {
	return c.features
}
