package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/boddenberg/vendas-bot-go/internal/domain"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// readyTimeout bounds the whole readiness probe.
const readyTimeout = 2 * time.Second

// ============================================================
// Shared helper functions
// ============================================================

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ============================================================
// Health
// ============================================================

func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status: "healthy",
			Services: []domain.ServiceHealth{
				{Name: "vendas-bot", Status: "healthy", LastChecked: time.Now().Format(time.RFC3339)},
			},
		})
	}
}

// readyzHandler pings every dependency concurrently. Any failure
// answers 503 with the per-dependency report.
func readyzHandler(checks []ReadinessCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		results := make([]domain.ServiceHealth, len(checks))
		var mu sync.Mutex
		overall := "healthy"

		var g errgroup.Group
		for i, check := range checks {
			g.Go(func() error {
				start := time.Now()
				err := check.Ping(ctx)
				sh := domain.ServiceHealth{
					Name:        check.Name,
					Status:      "healthy",
					LatencyMs:   time.Since(start).Milliseconds(),
					LastChecked: time.Now().Format(time.RFC3339),
				}
				if err != nil {
					sh.Status = "unhealthy"
					sh.Error = err.Error()
					logger.Warn("readiness check failed", zap.String("dependency", check.Name), zap.Error(err))
					mu.Lock()
					overall = "unhealthy"
					mu.Unlock()
				}
				results[i] = sh
				return nil
			})
		}
		g.Wait()

		status := http.StatusOK
		if overall != "healthy" {
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, domain.HealthStatus{Status: overall, Services: results})
	}
}
