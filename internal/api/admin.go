package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bher20/kwhmedio/internal/alerting"
	"github.com/bher20/kwhmedio/internal/auth"
	"github.com/bher20/kwhmedio/internal/cron"
	"github.com/bher20/kwhmedio/internal/storage"
)

// Warmer triggers a cache warm-up run on demand.
type Warmer interface {
	RunOnce(ctx context.Context) (cron.Report, error)
}

// Option configures optional parts of the mux.
type Option func(*options)

type options struct {
	auth            *auth.Service
	warmer          Warmer
	defaultSchedule string
}

// WithAdmin mounts /admin/warm and /admin/schedule behind token auth. The
// routes stay unregistered when a has no tokens.
func WithAdmin(a *auth.Service, w Warmer, defaultSchedule string) Option {
	return func(o *options) {
		o.auth = a
		o.warmer = w
		o.defaultSchedule = defaultSchedule
	}
}

type warmResponse struct {
	RunID      string                   `json:"run_id"`
	Skipped    bool                     `json:"skipped"`
	Total      int                      `json:"total"`
	Failed     int                      `json:"failed"`
	Failures   []alerting.TargetFailure `json:"failures,omitempty"`
	DurationMs int64                    `json:"duration_ms"`
}

func handleWarm(w Warmer) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		report, err := w.RunOnce(r.Context())
		if err != nil && len(report.Failures) == 0 {
			writeError(rw, r, err)
			return
		}

		resp := warmResponse{
			RunID:      report.RunID,
			Skipped:    report.Skipped,
			Total:      report.Total,
			Failed:     len(report.Failures),
			Failures:   report.Failures,
			DurationMs: report.Duration.Milliseconds(),
		}
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(resp)
	}
}

type scheduleBody struct {
	Schedule string `json:"schedule"`
	// Source is "setting" when overridden at runtime, else "default".
	Source string `json:"source,omitempty"`
}

func getSchedule(st storage.Storage, def string) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		val, err := st.GetSetting(r.Context(), cron.ScheduleSetting)
		if err != nil {
			writeError(rw, r, err)
			return
		}
		body := scheduleBody{Schedule: val, Source: "setting"}
		if val == "" {
			body = scheduleBody{Schedule: def, Source: "default"}
		}
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(body)
	}
}

func putSchedule(st storage.Storage) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		var body scheduleBody
		dec := json.NewDecoder(http.MaxBytesReader(rw, r.Body, 4<<10))
		if err := dec.Decode(&body); err != nil {
			writeError(rw, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		if err := cron.ValidateSchedule(body.Schedule); err != nil {
			writeError(rw, r, fmt.Errorf("%w: %v", errBadRequest, err))
			return
		}
		if err := st.SetSetting(r.Context(), cron.ScheduleSetting, body.Schedule); err != nil {
			writeError(rw, r, err)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		json.NewEncoder(rw).Encode(scheduleBody{Schedule: body.Schedule, Source: "setting"})
	}
}

func handleSchedule(a *auth.Service, st storage.Storage, def string) http.Handler {
	get := a.Require(auth.ObjSchedule, auth.ActRead, getSchedule(st, def))
	put := a.Require(auth.ObjSchedule, auth.ActWrite, putSchedule(st))
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			get.ServeHTTP(rw, r)
		case http.MethodPut:
			put.ServeHTTP(rw, r)
		default:
			http.Error(rw, "method not allowed", http.StatusMethodNotAllowed)
		}
	})
}
