package services

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	verificationRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcheck_verification_runs_total",
			Help: "Verification runs by result (scored, unchanged, skipped, failed).",
		},
		[]string{"result"},
	)
	checksRecorded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcheck_checks_total",
			Help: "Recorded checks by check type and status.",
		},
		[]string{"check_type", "status"},
	)
	sourceLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "refcheck_source_duration_seconds",
			Help:    "Latency of verification source calls.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"check_type"},
	)
	worksImported = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "refcheck_works_imported_total",
			Help: "Works created by origin (csl, pdf).",
		},
		[]string{"source"},
	)
)

func init() {
	prometheus.MustRegister(verificationRuns, checksRecorded, sourceLatency, worksImported)
}
