package telemetry

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"numflow/internal/logging"
)

const namespace = "numflow"

var (
	FetchAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_attempts_total",
		Help:      "Download attempts by link scheme and result.",
	}, []string{"scheme", "result"})

	EncoderFits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "encoder_fits_total",
		Help:      "Encoder fits by kind and result.",
	}, []string{"kind", "result"})

	RegistryHandles = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "registry_handles",
		Help:      "Fitted encoders held by the registry.",
	})

	Chunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "chunks_total",
		Help:      "Chunks processed by operation and result (ok, failed, cancelled).",
	}, []string{"op", "result"})

	ChunkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "chunk_duration_seconds",
		Help:      "Time spent applying a function to one chunk.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	ChunksInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "chunks_in_flight",
		Help:      "Chunks currently running on the worker pool.",
	})

	Jobs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_total",
		Help:      "Pipeline jobs by operation and status.",
	}, []string{"op", "status"})

	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "job_duration_seconds",
		Help:      "End-to-end pipeline job duration.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14),
	}, []string{"op"})
)

// Handler serves the default registry in the Prometheus text format.
func Handler() http.Handler { return promhttp.Handler() }

// Expose serves /metrics on its own port until the process exits.
func Expose(port int) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics listener stopped", "port", port, "err", err)
		}
	}()
	return srv
}
