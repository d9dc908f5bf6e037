package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bher20/kwhmedio/internal/auth"
	"github.com/bher20/kwhmedio/internal/log"
	"github.com/bher20/kwhmedio/internal/metrics"
	"github.com/bher20/kwhmedio/internal/rates"
	"github.com/bher20/kwhmedio/internal/storage"
)

const requestIDHeader = "X-Request-ID"

// Calculator is the part of rates.Service the API needs.
type Calculator interface {
	Calculate(ctx context.Context, p rates.CalcParams) (*rates.CalcResult, error)
}

// NewMux constructs the HTTP mux, wiring in the calculator, metrics and
// health endpoints. st backs the readiness probe and may be nil.
func NewMux(calc Calculator, st storage.Storage, opts ...Option) *http.ServeMux {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	mux := http.NewServeMux()

	// Metrics endpoint.
	mux.Handle("/metrics", promhttp.Handler())

	// Health / readiness / liveness.
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if st != nil {
			if err := st.Ping(r.Context()); err != nil {
				log.Ctx(r.Context()).Warn("readyz: storage ping failed", "error", err)
				http.Error(w, "storage not ready", http.StatusServiceUnavailable)
				return
			}
			if ps, ok := st.(*storage.PostgresPoolStorage); ok {
				s := ps.Stat()
				metrics.UpdateDBPoolMetrics("postgrespool",
					float64(s.TotalConns()), float64(s.IdleConns()), float64(s.AcquiredConns()), s.AcquireCount())
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})
	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("live"))
	})

	mux.Handle("/calc", instrument("/calc", handleCalc(calc)))
	mux.Handle("/distributors", instrument("/distributors", http.HandlerFunc(handleDistributors)))

	if o.auth.Enabled() {
		if o.warmer != nil {
			mux.Handle("/admin/warm", instrument("/admin/warm",
				o.auth.Require(auth.ObjCache, auth.ActWrite, handleWarm(o.warmer))))
		}
		if st != nil {
			mux.Handle("/admin/schedule", instrument("/admin/schedule",
				handleSchedule(o.auth, st, o.defaultSchedule)))
		}
	}

	return mux
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument tags the request with an id, scopes a logger to it and records
// request metrics under path.
func instrument(path string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		logger := log.Ctx(r.Context()).With("request_id", id, "method", r.Method, "path", r.URL.Path)
		r = r.WithContext(log.With(r.Context(), logger))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		metrics.RequestsTotal.WithLabelValues(path).Inc()
		metrics.RequestDurationSeconds.WithLabelValues(path).Observe(time.Since(start).Seconds())
		if rec.status >= 400 {
			metrics.RequestErrorsTotal.WithLabelValues(path, strconv.Itoa(rec.status)).Inc()
		}
		logger.Debug("request served", "status", rec.status, "duration", time.Since(start))
	})
}
