package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/deps"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/powerdeck/internal/httpserver/mw"
)

func init() { Register("api", registerAPI) }

func registerAPI(r chi.Router, d deps.Deps) {
	r.Route("/api", func(api chi.Router) {
		api.Use(
			mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger),
			mw.EnforceHost(d.AllowedHosts, d.Logger),
			mw.RequireToken(d.APIToken, d.TrustProxy, d.Logger),
		)

		// Reads
		api.Get("/services", handlers.Services(d))
		api.Get("/actions", handlers.Actions(d))
		api.Get("/status", handlers.Status(d))
		api.Get("/stats", handlers.Stats(d))
		api.Get("/presence", handlers.Presence(d))
		api.Get("/history", handlers.History(d))
		api.Get("/infra", handlers.Infra(d))
		api.Get("/requests/{rid}", handlers.Request(d))
		api.Get("/requests/{rid}/output", handlers.RequestOutput(d))

		// Commands, throttled per client IP
		api.Group(func(cmd chi.Router) {
			cmd.Use(mw.RateLimit(mw.RateLimitConfig{
				Burst:             d.RateBurst,
				RefillPerIPPerMin: d.RatePerMin,
				MaxEntries:        1024,
				TrustProxy:        d.TrustProxy,
				Log:               d.Logger,
			}))
			cmd.Post("/services/{id}/start", handlers.StartService(d))
			cmd.Post("/services/{id}/stop", handlers.StopService(d))
			cmd.Post("/services/{id}/actions/{action}", handlers.RunAction(d))
			cmd.Post("/power/on", handlers.Power(d, d.Dispatcher.PowerOn))
			cmd.Post("/power/off", handlers.Power(d, d.Dispatcher.PowerOff))
			cmd.Post("/power/reboot", handlers.Power(d, d.Dispatcher.Reboot))
		})
	})
}
