package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all crudo metrics. It is served by StartHttpPProf.
var Registry = prometheus.NewRegistry()

var (
	// FetchFailures counts failed allow-list lookups and cache accesses.
	// Only lookups of kind other than "cache" leave a layer without entry.
	FetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crudo",
		Subsystem: "allowlist",
		Name:      "fetch_failures_total",
		Help:      "Failed allow-list lookups by layer and failure kind.",
	}, []string{"layer", "kind"})

	// FetchedLayers counts layers with an allow-list by origin
	// (taginfo or cache).
	FetchedLayers = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crudo",
		Subsystem: "allowlist",
		Name:      "layers_total",
		Help:      "Layers with an allow-list by origin.",
	}, []string{"origin"})

	FeatureFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crudo",
		Name:      "feature_failures_total",
		Help:      "Source features skipped after a processing failure.",
	}, []string{"kind"})

	EmittedFeatures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "crudo",
		Name:      "emitted_features_total",
		Help:      "Output features by layer and geometry.",
	}, []string{"layer", "geometry"})

	UnmatchedFeatures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "crudo",
		Name:      "unmatched_features_total",
		Help:      "Source features without any catalog key.",
	})
)

func init() {
	Registry.MustRegister(
		FetchFailures,
		FetchedLayers,
		FeatureFailures,
		EmittedFeatures,
		UnmatchedFeatures,
	)
}
