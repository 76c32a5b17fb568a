package reader

import (
	osm "github.com/omniscale/go-osm"

	"github.com/streetferret/crudo/profile"
)

var (
	_ profile.SourceFeature = &Node{}
	_ profile.SourceFeature = &Way{}
	_ profile.SourceFeature = &Relation{}
)

// Node is a point feature.
type Node struct {
	*osm.Node
	Label string
}

func (n *Node) ID() int64          { return n.Node.ID }
func (n *Node) Source() string     { return n.Label }
func (n *Node) Tags() osm.Tags     { return n.Node.Tags }
func (n *Node) IsPoint() bool      { return true }
func (n *Node) CanBePolygon() bool { return false }
func (n *Node) CanBeLine() bool    { return false }

// Way is a line feature, closed ways are polygons unless tagged
// with area=no.
type Way struct {
	*osm.Way
	Label string
}

func (w *Way) ID() int64      { return w.Way.ID }
func (w *Way) Source() string { return w.Label }
func (w *Way) Tags() osm.Tags { return w.Way.Tags }
func (w *Way) IsPoint() bool  { return false }

func (w *Way) CanBePolygon() bool {
	return w.IsClosed() && w.Way.Tags["area"] != "no"
}

func (w *Way) CanBeLine() bool {
	return len(w.Refs) >= 2
}

// Relation is a polygon feature for multipolygon relations. Other
// relation types have no geometry.
type Relation struct {
	*osm.Relation
	Label string
}

func (r *Relation) ID() int64       { return r.Relation.ID }
func (r *Relation) Source() string  { return r.Label }
func (r *Relation) Tags() osm.Tags  { return r.Relation.Tags }
func (r *Relation) IsPoint() bool   { return false }
func (r *Relation) CanBeLine() bool { return false }

func (r *Relation) CanBePolygon() bool {
	switch r.Relation.Tags["type"] {
	case "multipolygon", "boundary":
		return true
	}
	return false
}
