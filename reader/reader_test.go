package reader

import (
	"bytes"
	"context"
	"io/ioutil"
	"sync"
	"testing"
	"time"

	osm "github.com/omniscale/go-osm"
	"github.com/pkg/errors"

	"github.com/streetferret/crudo/allowlist"
	"github.com/streetferret/crudo/catalog"
	"github.com/streetferret/crudo/collect"
	"github.com/streetferret/crudo/profile"
	"github.com/streetferret/crudo/stats"
)

func makeWay(id int64, tags osm.Tags, refs ...int64) osm.Way {
	return osm.Way{Element: osm.Element{ID: id, Tags: tags}, Refs: refs}
}

func TestWayCapabilities(t *testing.T) {
	tests := []struct {
		way     osm.Way
		polygon bool
		line    bool
	}{
		{makeWay(1, osm.Tags{"building": "yes"}, 1, 2, 3, 1), true, true},
		{makeWay(2, osm.Tags{"highway": "primary"}, 1, 2, 3), false, true},
		{makeWay(3, osm.Tags{"highway": "pedestrian", "area": "no"}, 1, 2, 3, 1), false, true},
		{makeWay(4, osm.Tags{"barrier": "fence"}, 1), false, false},
	}
	for _, test := range tests {
		w := &Way{Way: &test.way, Label: "osm"}
		if w.IsPoint() {
			t.Error(w.ID(), "way is point")
		}
		if w.CanBePolygon() != test.polygon {
			t.Error(w.ID(), "polygon", w.CanBePolygon())
		}
		if w.CanBeLine() != test.line {
			t.Error(w.ID(), "line", w.CanBeLine())
		}
	}
}

func TestRelationCapabilities(t *testing.T) {
	for relType, polygon := range map[string]bool{
		"multipolygon": true,
		"boundary":     true,
		"route":        false,
		"":             false,
	} {
		rel := osm.Relation{Element: osm.Element{ID: 1, Tags: osm.Tags{"type": relType, "landuse": "forest"}}}
		r := &Relation{Relation: &rel}
		if r.CanBePolygon() != polygon || r.CanBeLine() || r.IsPoint() {
			t.Error(relType)
		}
	}
}

func TestNode(t *testing.T) {
	nd := osm.Node{Element: osm.Element{ID: 42, Tags: osm.Tags{"amenity": "bench"}}}
	n := &Node{Node: &nd, Label: "osm"}
	if n.ID() != 42 || n.Source() != "osm" || n.Tags()["amenity"] != "bench" {
		t.Fatal(n)
	}
	if !n.IsPoint() || n.CanBePolygon() || n.CanBeLine() {
		t.Fatal("node capabilities")
	}
}

func testWorker(progress *stats.Statistics) (*worker, chan []*collect.Feature) {
	table := allowlist.NewTable(map[string][]string{
		"building": {"name"},
		"highway":  {"name"},
		"landuse":  {},
	})
	p := profile.New(catalog.Default().Index(), table, profile.Options{})
	batches := make(chan []*collect.Feature, 10)
	return &worker{profile: p, source: DefaultSource, progress: progress, batches: batches}, batches
}

func TestWorker(t *testing.T) {
	progress := stats.StatsReporter(1 << 40)
	w, batches := testWorker(progress)

	w.nodes([]osm.Node{
		{Element: osm.Element{ID: 1}},
		{Element: osm.Element{ID: 2, Tags: osm.Tags{"foo": "bar"}}},
		{Element: osm.Element{ID: 3, Tags: osm.Tags{"building": "entrance", "name": "A"}}},
	})
	w.ways([]osm.Way{
		makeWay(10, osm.Tags{"building": "yes", "height": "5"}, 1, 2, 3, 1),
		makeWay(11, osm.Tags{"highway": "service", "name": "B"}, 1, 2),
		makeWay(12, nil, 1, 2),
	})
	w.relations([]osm.Relation{
		{Element: osm.Element{ID: 20, Tags: osm.Tags{"type": "multipolygon", "landuse": "meadow"}}},
		{Element: osm.Element{ID: 21, Tags: osm.Tags{"type": "route", "route": "bus"}}},
	})
	close(batches)

	var features []*collect.Feature
	for b := range batches {
		features = append(features, b...)
	}

	expected := []struct {
		id    int64
		layer string
		geom  collect.GeometryType
		attrs int
	}{
		{3, "building", collect.Point, 2},
		{10, "building", collect.Centroid, 1},
		{10, "building", collect.Polygon, 1},
		{11, "highway", collect.Line, 2},
		{20, "landuse", collect.Centroid, 1},
		{20, "landuse", collect.Polygon, 1},
	}
	if len(features) != len(expected) {
		t.Fatal(len(features), features)
	}
	for i, e := range expected {
		f := features[i]
		if f.SourceID != e.id || f.Layer != e.layer || f.Geometry != e.geom || len(f.Attrs) != e.attrs {
			t.Errorf("%d: %+v != %+v", i, f, e)
		}
	}

	c := progress.Stop()
	if c.Nodes != 3 || c.Ways != 3 || c.Relations != 2 || c.Features != 6 {
		t.Error(c)
	}
}

type memSink struct {
	features []*collect.Feature
}

func (s *memSink) Write(f []*collect.Feature) error {
	s.features = append(s.features, f...)
	return nil
}

func TestReadPbfInvalid(t *testing.T) {
	w, _ := testWorker(nil)
	err := ReadPbf(context.Background(), bytes.NewReader([]byte("no pbf data")), w.profile, &memSink{}, Config{Workers: 2})
	if err == nil {
		t.Fatal("expected error")
	}
}

const monacoPbf = "testdata/monaco-20150428.osm.pbf"

// readPbf runs ReadPbf and fails the test if it does not return.
func readPbf(t *testing.T, ctx context.Context, data []byte, p Classifier, sink Sink, conf Config) error {
	t.Helper()
	done := make(chan error, 1)
	go func() {
		done <- ReadPbf(ctx, bytes.NewReader(data), p, sink, conf)
	}()
	select {
	case err := <-done:
		return err
	case <-time.After(30 * time.Second):
		t.Fatal("ReadPbf did not return")
	}
	return nil
}

func readMonaco(t *testing.T) []byte {
	data, err := ioutil.ReadFile(monacoPbf)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestReadPbf(t *testing.T) {
	data := readMonaco(t)
	w, _ := testWorker(nil)
	progress := stats.StatsReporter(1 << 40)
	sink := &memSink{}

	err := readPbf(t, context.Background(), data, w.profile, sink, Config{Workers: 2, Progress: progress})
	if err != nil {
		t.Fatal(err)
	}
	c := progress.Stop()
	if c.Nodes == 0 || c.Ways == 0 || c.Relations == 0 {
		t.Error("elements not counted", c)
	}
	if c.Features != int64(len(sink.features)) {
		t.Error(c.Features, len(sink.features))
	}

	cat := catalog.Default()
	layers := map[string]int{}
	for _, f := range sink.features {
		if !cat.Contains(f.Layer) {
			t.Fatal("unexpected layer", f.Layer)
		}
		if f.MinPixelSize != profile.DefaultMinPixelSize {
			t.Fatal("min pixel size", f)
		}
		layers[f.Layer] += 1
	}
	for _, l := range []string{"building", "highway"} {
		if layers[l] == 0 {
			t.Error("no features in layer", l, layers)
		}
	}

	// same result with one worker
	single := &memSink{}
	if err := readPbf(t, context.Background(), data, w.profile, single, Config{Workers: 1}); err != nil {
		t.Fatal(err)
	}
	if len(single.features) != len(sink.features) {
		t.Error(len(single.features), len(sink.features))
	}
}

func TestReadPbfTruncated(t *testing.T) {
	data := readMonaco(t)
	w, _ := testWorker(nil)
	for _, size := range []int{len(data) / 2, len(data) - 1} {
		err := readPbf(t, context.Background(), data[:size], w.profile, &memSink{}, Config{Workers: 2})
		if err == nil {
			t.Error("expected error for truncated file of size", size)
		}
	}
}

var errDiskFull = errors.New("disk full")

type failingSink struct {
	mu     sync.Mutex
	writes int
}

func (s *failingSink) Write(f []*collect.Feature) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writes += 1
	return errDiskFull
}

func TestReadPbfSinkError(t *testing.T) {
	data := readMonaco(t)
	w, _ := testWorker(nil)
	sink := &failingSink{}
	err := readPbf(t, context.Background(), data, w.profile, sink, Config{Workers: 2})
	if errors.Cause(err) != errDiskFull {
		t.Fatal(err)
	}
	if sink.writes != 1 {
		t.Error("sink called after failure", sink.writes)
	}
}

func TestReadPbfCanceled(t *testing.T) {
	data := readMonaco(t)
	w, _ := testWorker(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := readPbf(t, ctx, data, w.profile, &memSink{}, Config{Workers: 2})
	if err != context.Canceled {
		t.Fatal(err)
	}
}

// brokenPolygons emits a centroid and fails before the polygon of
// polygon features.
type brokenPolygons struct{}

func (brokenPolygons) Process(src profile.SourceFeature, features profile.FeatureCollector) error {
	if src.IsPoint() {
		features.Point("building")
		return nil
	}
	features.Centroid("building")
	return errors.New("broken polygon")
}

func TestWorkerDropsFailedFeature(t *testing.T) {
	batches := make(chan []*collect.Feature, 10)
	w := &worker{profile: brokenPolygons{}, source: DefaultSource, batches: batches}

	w.ways([]osm.Way{makeWay(10, osm.Tags{"building": "yes"}, 1, 2, 3, 1)})
	w.nodes([]osm.Node{{Element: osm.Element{ID: 1, Tags: osm.Tags{"building": "yes"}}}})
	close(batches)

	var features []*collect.Feature
	for b := range batches {
		features = append(features, b...)
	}
	if len(features) != 1 || features[0].SourceID != 1 || features[0].Geometry != collect.Point {
		t.Fatal(features)
	}
}
