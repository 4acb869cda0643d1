// Package metrics holds the Prometheus collectors of the client and the
// small HTTP server exposing them.
package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	ComputeRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionplay_compute_requests_total",
		Help: "Remote compute requests by endpoint",
	}, []string{"endpoint"})
	ComputeFailTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionplay_compute_fail_total",
		Help: "Remote compute failures by endpoint and reason",
	}, []string{"endpoint", "reason"})
	ComputeDurationMs = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "regionplay_compute_duration_ms",
		Help:    "Remote compute call duration in milliseconds",
		Buckets: []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000},
	}, []string{"endpoint"})
	FramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "regionplay_frames_total",
		Help: "Playback frame responses by result (applied, stale, failed)",
	}, []string{"result"})
	RegionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "regionplay_regions",
		Help: "Regions currently registered",
	})
	SessionsPlaying = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "regionplay_sessions_playing",
		Help: "Playback sessions currently playing",
	})
	PendingManageTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "regionplay_pending_manage_total",
		Help: "manage_region calls journaled for resend",
	})
)

func init() {
	prometheus.MustRegister(ComputeRequestsTotal)
	prometheus.MustRegister(ComputeFailTotal)
	prometheus.MustRegister(ComputeDurationMs)
	prometheus.MustRegister(FramesTotal)
	prometheus.MustRegister(RegionsActive)
	prometheus.MustRegister(SessionsPlaying)
	prometheus.MustRegister(PendingManageTotal)
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler { return promhttp.Handler() }

// Router mounts /health and /metrics.
func Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", Handler())
	return r
}

// Serve runs the metrics server until ctx is done.
func Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
