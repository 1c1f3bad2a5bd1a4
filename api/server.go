package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/megaerp/catalog-image-sync/pkg/config"
	"github.com/megaerp/catalog-image-sync/pkg/logger"
)

const readinessTimeout = 5 * time.Second

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependency is a named backing service checked by the readiness probe.
type Dependency struct {
	Name   string
	Pinger Pinger
}

// NewHandler returns the operational HTTP surface the workers expose:
// liveness, readiness and Prometheus metrics.
func NewHandler(cfg *config.Config, logg *logger.Logger, gatherer prometheus.Gatherer, deps ...Dependency) http.Handler {
	r := chi.NewRouter()

	r.Get("/health/live", healthLive(cfg))
	r.Get("/health/ready", healthReady(cfg, logg, deps))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return r
}

func healthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("X-ImgSync-Env", cfg.App.Env)
		writeJSON(w, http.StatusOK, map[string]string{"status": "live"})
	}
}

func healthReady(cfg *config.Config, logg *logger.Logger, deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-ImgSync-Env", cfg.App.Env)

		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		statuses := make(map[string]string, len(deps))
		healthy := true
		for _, dep := range deps {
			if dep.Pinger == nil {
				statuses[dep.Name] = "not configured"
				healthy = false
				continue
			}
			if err := dep.Pinger.Ping(ctx); err != nil {
				logg.Error(logg.WithField(ctx, "dependency", dep.Name), "readiness check failed", err)
				statuses[dep.Name] = "unavailable"
				healthy = false
				continue
			}
			statuses[dep.Name] = "ok"
		}

		status := http.StatusOK
		overall := "ready"
		if !healthy {
			status = http.StatusServiceUnavailable
			overall = "not ready"
		}
		writeJSON(w, status, map[string]any{"status": overall, "dependencies": statuses})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
