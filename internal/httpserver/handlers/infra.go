package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
)

type componentStatus struct {
	OK             bool   `json:"ok"`
	ServicesLoaded *int   `json:"services_loaded,omitempty"`
	LastReload     string `json:"last_reload,omitempty"`
	State          string `json:"state,omitempty"`
	ObservedAt     string `json:"observed_at,omitempty"`
	Mode           string `json:"mode,omitempty"`
	Impact         string `json:"impact,omitempty"`
	Error          string `json:"error,omitempty"`
}

type infraResponse struct {
	Mode       string                     `json:"mode"`
	Host       string                     `json:"host"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		servicesCount := d.Catalog.Count()
		lastReload := d.Catalog.LoadedAt()
		lastReloadStr := "never"
		if !lastReload.IsZero() {
			lastReloadStr = lastReload.Format("2006-01-02 15:04:05")
		}

		components := map[string]componentStatus{
			"registry": {
				OK:             servicesCount > 0,
				ServicesLoaded: &servicesCount,
				LastReload:     lastReloadStr,
			},
			"redis": checkRedis(r.Context(), d),
			"host":  checkWatcher(d),
		}

		writeJSON(w, http.StatusOK, infraResponse{
			Mode:       determineMode(components),
			Host:       d.Host.Host().Address,
			Components: components,
		})
	}
}

func determineMode(components map[string]componentStatus) string {
	if reg, ok := components["registry"]; ok && !reg.OK {
		return "critical"
	}
	// Redis down means no workflow can take a lease.
	if redis, ok := components["redis"]; ok && !redis.OK {
		return "degraded"
	}
	return "operational"
}

// checkWatcher reports the last background observation, without probing.
func checkWatcher(d deps.Deps) componentStatus {
	if d.Power == nil {
		return componentStatus{OK: true, Mode: "on-demand"}
	}
	obs, ok := d.Power.Last()
	if !ok {
		return componentStatus{OK: true, Mode: "watching", State: "unknown"}
	}
	return componentStatus{
		OK:         true,
		Mode:       "watching",
		State:      obs.State.String(),
		ObservedAt: obs.ObservedAt.Format(time.RFC3339),
	}
}

func checkRedis(parent context.Context, d deps.Deps) componentStatus {
	if d.Redis == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "leases-local-to-process",
		}
	}

	ctx, cancel := context.WithTimeout(parent, 2*time.Second)
	defer cancel()

	if err := d.Redis.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "leases-unavailable",
			Error:  err.Error(),
		}
	}
	return componentStatus{
		OK:     true,
		Mode:   "shared",
		Impact: "leases-shared-across-replicas",
	}
}
