package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

type statusResponse struct {
	State     string     `json:"state"`
	CheckedAt time.Time  `json:"checked_at"`
	ChangedAt *time.Time `json:"changed_at,omitempty"`
}

type statsResponse struct {
	domain.ResourceStats
	MemPercent  float64 `json:"mem_percent"`
	DiskPercent float64 `json:"disk_percent"`
}

// Status probes the host now; the watcher's last transition is added when
// it agrees with the fresh probe.
func Status(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := d.Host.Status(r.Context())
		resp := statusResponse{State: state.String(), CheckedAt: d.Now()}
		if d.Power != nil {
			if obs, ok := d.Power.Last(); ok && obs.State == state {
				changed := obs.ChangedAt
				resp.ChangedAt = &changed
			}
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func Stats(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := d.Host.ResourceStats(r.Context())
		if err != nil {
			if errors.Is(err, domain.ErrHostOffline) {
				writeError(w, http.StatusConflict, "host is offline")
				return
			}
			d.Logger.Warn("failed to gather resource stats", logger.Error(err))
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, statsResponse{
			ResourceStats: stats,
			MemPercent:    stats.MemPercent(),
			DiskPercent:   stats.DiskPercent(),
		})
	}
}

func Presence(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, d.Presence.Current(r.Context()))
	}
}
