package telemetry

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "relay"

var (
	PollCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_cycles_total",
			Help:      "Poll cycles per task by result.",
		},
		[]string{"task", "result"},
	)
	Records = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Records fetched and transformed per source topic.",
		},
		[]string{"topic"},
	)
	OffsetCommits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "offset_commits_total",
			Help:      "Offsets committed to the store per topic/partition.",
		},
		[]string{"topic", "partition"},
	)
	LastOffset = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_offset",
			Help:      "Last committed resume offset per topic/partition.",
		},
		[]string{"topic", "partition"},
	)
	PartitionsSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "partitions_skipped_total",
			Help:      "Partitions left unconsumed because the reset policy was unknown.",
		},
	)
	SinkPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_pushes_total",
			Help:      "Records pushed per sink driver.",
		},
		[]string{"driver"},
	)
)

func init() {
	prometheus.MustRegister(
		PollCycles,
		Records,
		OffsetCommits,
		LastOffset,
		PartitionsSkipped,
		SinkPushes,
	)
}

// Expose serves /metrics on the given port, in the background.
func Expose(port int) {
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		_ = http.ListenAndServe(fmt.Sprintf(":%d", port), nil)
	}()
}
