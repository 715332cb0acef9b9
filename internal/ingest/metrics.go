package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Message results recorded by messagesTotal.
const (
	resultStored   = "stored"
	resultInvalid  = "invalid"
	resultRejected = "rejected"
)

// Prometheus metrics for the observation feed
var (
	// messagesTotal counts messages by outcome.
	messagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "obsarchive_ingest_messages_total",
		Help: "Total number of observation messages by result",
	}, []string{"result"})

	// valuesTotal counts values written to the archive.
	valuesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsarchive_ingest_values_total",
		Help: "Total number of values written to the archive",
	})

	// retriesTotal counts batches retried with the update policy.
	retriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "obsarchive_ingest_update_retries_total",
		Help: "Total number of batches retried with the update policy after a duplicate",
	})

	// pendingMessages is the number of decoded messages awaiting a flush.
	pendingMessages = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "obsarchive_ingest_pending_messages",
		Help: "Current number of messages awaiting a flush",
	})

	// flushDuration measures archive transaction time per flush.
	flushDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "obsarchive_ingest_flush_duration_seconds",
		Help:    "Archive transaction time per ingest flush in seconds",
		Buckets: prometheus.DefBuckets,
	})
)
