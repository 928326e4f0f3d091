package handlers

import (
	"net/http"

	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
)

type buildInfo struct {
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
	GoVersion string `json:"go_version,omitempty"`
}

type healthzResponse struct {
	Status          string    `json:"status"`
	UptimeSeconds   int64     `json:"uptime_seconds"`
	Services        int       `json:"services"`
	RequestsTracked int       `json:"requests_tracked"`
	Build           buildInfo `json:"build"`
}

// Healthz reports liveness of the process only; it never touches the host
// or Redis.
func Healthz(d deps.Deps) http.HandlerFunc {
	build := buildInfo{
		Version:   d.Version,
		Commit:    d.Commit,
		BuildDate: d.BuildDate,
		GoVersion: d.GoVersion,
	}
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			UptimeSeconds: int64(d.Now().Sub(d.StartTime).Seconds()),
			Build:         build,
		}
		if d.Catalog != nil {
			resp.Services = d.Catalog.Count()
		}
		if d.Dispatcher != nil {
			resp.RequestsTracked = d.Dispatcher.Tracked()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
