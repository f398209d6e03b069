// Package metrics provides Prometheus metrics for store commands and the key tree.
package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"
)

var (
	storeCommandsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qredis_store_commands_total",
			Help: "Total number of store facade operations",
		},
		[]string{"op", "status"},
	)

	storeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qredis_store_events_total",
			Help: "Total number of change events emitted by the store facade",
		},
		[]string{"type"},
	)

	treeRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qredis_tree_rebuilds_total",
			Help: "Total number of completed key tree rebuilds",
		},
	)

	treeRenamePatchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qredis_tree_rename_patches_total",
			Help: "Total number of renames patched in place without a rebuild",
		},
	)

	treeInvalidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qredis_tree_invalidations_total",
			Help: "Total number of times a key tree was marked stale",
		},
		[]string{"reason"},
	)

	treeKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qredis_tree_keys",
			Help: "Number of keys indexed by the last tree rebuild",
		},
	)
)

// ObserveOp records one store facade operation.
func ObserveOp(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeCommandsTotal.WithLabelValues(op, status).Inc()
}

func RecordEvent(eventType string) {
	storeEventsTotal.WithLabelValues(eventType).Inc()
}

func RecordRebuild(keys int) {
	treeRebuildsTotal.Inc()
	treeKeys.Set(float64(keys))
}

func RecordRenamePatch() {
	treeRenamePatchesTotal.Inc()
}

func RecordInvalidation(reason string) {
	treeInvalidationsTotal.WithLabelValues(reason).Inc()
}

// WriteText dumps every registered metric family in the Prometheus text format.
func WriteText(w io.Writer) error {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
