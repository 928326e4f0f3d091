package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/powerdeck/internal/dispatch"
	"github.com/MrSnakeDoc/powerdeck/internal/domain"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

type serviceView struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Managed bool            `json:"managed"`
	Port    int             `json:"port,omitempty"`
	Actions []domain.Action `json:"actions"`
}

type acceptedResponse struct {
	dispatch.Ticket
	StatusURL string `json:"status_url"`
}

// Services lists the configured profiles. Passwords are never listed.
func Services(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		profiles := d.Catalog.All()
		out := make([]serviceView, 0, len(profiles))
		for _, p := range profiles {
			v := serviceView{
				ID:      p.ID,
				Name:    p.Name,
				Managed: p.Managed,
				Actions: p.SupportedActions(),
			}
			if p.Info != nil {
				v.Port = p.Info.Port
			}
			out = append(out, v)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

// Actions lists the action catalog with display labels.
func Actions(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, domain.Actions())
	}
}

func StartService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := d.Dispatcher.Start(chi.URLParam(r, "id"))
		accepted(w, d, ticket, err)
	}
}

// StopService accepts ?shutdown=true to power the host down afterwards.
func StopService(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		shutdown := false
		if raw := r.URL.Query().Get("shutdown"); raw != "" {
			v, err := strconv.ParseBool(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "shutdown must be a boolean")
				return
			}
			shutdown = v
		}
		ticket, err := d.Dispatcher.Stop(chi.URLParam(r, "id"), shutdown)
		accepted(w, d, ticket, err)
	}
}

func RunAction(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ticket, err := d.Dispatcher.RunAction(chi.URLParam(r, "id"), chi.URLParam(r, "action"))
		accepted(w, d, ticket, err)
	}
}

// Power wraps the host-level workflows, which need no parameters.
func Power(d deps.Deps, launch func() dispatch.Ticket) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accepted(w, d, launch(), nil)
	}
}

func accepted(w http.ResponseWriter, d deps.Deps, ticket dispatch.Ticket, err error) {
	if err != nil {
		d.Logger.Info("request rejected", logger.Error(err))
		writeError(w, statusFor(err), err.Error())
		return
	}
	statusURL := "/api/requests/" + ticket.RequestID
	w.Header().Set("Location", statusURL)
	writeJSON(w, http.StatusAccepted, acceptedResponse{Ticket: ticket, StatusURL: statusURL})
}
