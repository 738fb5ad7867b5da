package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	LabelKind    = "connection_kind"
	LabelOutcome = "outcome"
	LabelStage   = "stage"
	LabelResult  = "result"
	LabelSource  = "source"
)

// Linking metrics
var (
	LinkAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_link_attempts_total",
			Help: "Linking attempts by terminal outcome",
		},
		[]string{LabelKind, LabelOutcome},
	)

	LinkErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_link_errors_total",
			Help: "Linking attempts aborted before authorization, by stage",
		},
		[]string{LabelKind, LabelStage},
	)

	LinkDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_link_duration_seconds",
			Help:    "Time from opening the authorization window to a terminal outcome",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
		[]string{LabelKind, LabelOutcome},
	)

	LinksInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_links_in_flight",
			Help: "Linking attempts currently awaiting authorization",
		},
	)

	SignalsIgnored = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_link_signals_ignored_total",
			Help: "Completion signals dropped for failing origin or shape checks",
		},
		[]string{LabelSource},
	)

	RollbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_link_rollbacks_total",
			Help: "Provisional accounts removed after an unsuccessful link",
		},
		[]string{LabelResult},
	)
)

// Sync metrics
var (
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_sync_runs_total",
			Help: "Transaction sync requests by result",
		},
		[]string{LabelKind, LabelResult},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_sync_duration_seconds",
			Help:    "Duration of sync endpoint calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelKind},
	)
)

func Result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
