package stats

import (
	"io/ioutil"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestStatsReporter(t *testing.T) {
	s := StatsReporter(time.Hour)
	s.AddNodes(10)
	s.AddNodes(5)
	s.AddWays(3)
	s.AddRelations(1)
	s.AddFeatures(7)

	if c := s.Counts(); c != (Counts{Nodes: 15, Ways: 3, Relations: 1, Features: 7}) {
		t.Fatal(c)
	}
	s.AddFeatures(1)
	if c := s.Stop(); c.Features != 8 {
		t.Fatal(c)
	}
}

func TestMetricsHandler(t *testing.T) {
	EmittedFeatures.WithLabelValues("building", "polygon").Add(2)
	if v := testutil.ToFloat64(EmittedFeatures.WithLabelValues("building", "polygon")); v < 2 {
		t.Fatal(v)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(body), `crudo_emitted_features_total{geometry="polygon",layer="building"}`) {
		t.Fatal(string(body))
	}
}
