package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type healthResponse struct {
	Status    string    `json:"status"`
	Uptime    string    `json:"uptime"`
	StartedAt time.Time `json:"started_at"`
}

type readyResponse struct {
	Status    string `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

// Pinger reports whether the backend is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

const readyTimeout = 5 * time.Second

func healthHandler(startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(healthResponse{
			Status:    "ok",
			Uptime:    formatDuration(time.Since(startTime)),
			StartedAt: startTime.UTC(),
		})
	}
}

func readyHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		start := time.Now()
		err := p.Ping(ctx)
		resp := readyResponse{Status: "ready", LatencyMS: time.Since(start).Milliseconds()}
		if err != nil {
			resp.Status = "not ready"
			resp.Error = err.Error()
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(resp)
	}
}

// formatDuration renders d as [Nd][Nh]Nm, truncated to the minute.
func formatDuration(d time.Duration) string {
	total := int(d / time.Minute)
	days, rem := total/(24*60), total%(24*60)
	hours, mins := rem/60, rem%60
	switch {
	case days > 0:
		return fmt.Sprintf("%dd%dh%dm", days, hours, mins)
	case hours > 0:
		return fmt.Sprintf("%dh%dm", hours, mins)
	default:
		return fmt.Sprintf("%dm", mins)
	}
}
