package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	plotPatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plot_patches_total",
		Help: "Patch actions applied to plots, by action.",
	}, []string{"action"})

	snapshotsCreatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "version_snapshots_created_total",
		Help: "Versions appended to project chains, by source.",
	}, []string{"source"})

	snapshotsSkippedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "version_snapshots_skipped_total",
		Help: "Snapshot calls skipped because the state was unchanged.",
	})
)
