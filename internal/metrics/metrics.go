package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	JobRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obligation_job_runs_total",
			Help: "Total number of job runs, by job and result",
		},
		[]string{"job", "result"},
	)

	JobCandidates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obligation_job_candidates_total",
			Help: "Candidates processed by jobs, by outcome",
		},
		[]string{"job", "outcome"},
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "obligation_job_duration_seconds",
			Help: "Duration of job runs in seconds",
		},
		[]string{"job"},
	)

	EmailsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obligation_emails_total",
			Help: "Outbound emails, by notification type and result",
		},
		[]string{"type", "result"},
	)
)

// NewRouter serves /metrics and /healthz. The health check pings db when it is not nil.
func NewRouter(db *sql.DB) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/healthz", healthHandler(db)).Methods(http.MethodGet)
	return r
}

func healthHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		status := http.StatusOK
		body := map[string]string{"status": "ok"}

		if db != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				status = http.StatusServiceUnavailable
				body = map[string]string{"status": "unavailable", "error": err.Error()}
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}
}
