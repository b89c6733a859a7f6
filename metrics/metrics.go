// Package metrics holds the Prometheus collectors for the ingestion pipeline.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"domus-ia/models"
)

// Batch statuses used as label values.
const (
	BatchOK      = "ok"
	BatchPartial = "partial"
	BatchFailed  = "failed"
)

var (
	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_ingest_batches_total",
			Help: "Batches written to the listings collection, by outcome",
		},
		[]string{"status"},
	)

	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "domus_ingest_records_total",
			Help: "Listing records processed, by outcome",
		},
		[]string{"outcome"}, // upserted, modified, failed, dropped, superseded
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "domus_ingest_batch_duration_seconds",
			Help:    "Wall time of one bulk upsert call",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~20s
		},
	)

	InflightBatches = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "domus_ingest_inflight_batches",
			Help: "Batches submitted to writers and not yet completed",
		},
	)
)

// BatchStatus classifies a batch result.
func BatchStatus(r models.BatchResult) string {
	switch {
	case r.Err != nil && r.Succeeded() == 0:
		return BatchFailed
	case r.Failed > 0 || r.Err != nil:
		return BatchPartial
	default:
		return BatchOK
	}
}

// ObserveBatch records one completed batch.
func ObserveBatch(r models.BatchResult) {
	BatchesTotal.WithLabelValues(BatchStatus(r)).Inc()
	RecordsTotal.WithLabelValues("upserted").Add(float64(r.Upserted))
	RecordsTotal.WithLabelValues("modified").Add(float64(r.Modified))
	RecordsTotal.WithLabelValues("failed").Add(float64(r.Failed))
	RecordsTotal.WithLabelValues("dropped").Add(float64(r.Dropped))
	RecordsTotal.WithLabelValues("superseded").Add(float64(r.Superseded))
	BatchDuration.Observe(r.Duration.Seconds())
}

// Serve exposes /metrics on addr in the background. The returned server can
// be shut down by the caller; listen errors are sent to errc.
func Serve(addr string, errc chan<- error) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) && errc != nil {
			errc <- err
		}
	}()
	return srv
}
