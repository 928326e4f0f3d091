package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/logger"
)

// Mount attaches one group of routes to the router.
type Mount func(r chi.Router, d deps.Deps)

type group struct {
	name  string
	mount Mount
}

var groups []group

// Register adds a named route group. Files call it from init().
func Register(name string, mount Mount) {
	groups = append(groups, group{name: name, mount: mount})
}

// Names lists the registered groups in mount order.
func Names() []string {
	out := make([]string, len(groups))
	for i, g := range groups {
		out[i] = g.name
	}
	return out
}

// RegisterAll mounts every group. Called once from httpserver.NewRouter.
func RegisterAll(r chi.Router, d deps.Deps) {
	for _, g := range groups {
		g.mount(r, d)
		if d.Logger != nil {
			d.Logger.Debug("routes mounted", logger.String("group", g.name))
		}
	}
}
