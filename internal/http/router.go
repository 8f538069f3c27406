package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/micro-ha/remeha-home/addon/internal/http/handlers"
)

// NewRouter builds the HTTP routing tree for the add-on API.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON(api))
	r.Use(middleware.Timeout(45 * time.Second))
	r.Use(StripIngressPrefix)
	r.Use(RequestLogger(api))

	r.Get("/healthz", api.Health)
	r.Route("/api", func(apiRouter chi.Router) {
		apiRouter.Get("/devices", api.ListDevices)
		apiRouter.Route("/devices/{id}", func(device chi.Router) {
			device.Get("/", withID(api.GetDevice))
			device.Delete("/", withID(api.DeleteDevice))
			device.Post("/target-temperature", withID(api.SetTargetTemperature))
			device.Post("/mode", withID(api.SetMode))
			device.Post("/fireplace", withID(api.SetFireplaceMode))
			device.Patch("/settings", withID(api.PatchSettings))
			device.Get("/debug", withID(api.Debug))
			device.Post("/repair", withID(api.RepairDevice))
		})

		apiRouter.Post("/pairing/sessions", api.CreatePairingSession)
		apiRouter.Get("/pairing/sessions/{sid}/devices", func(w http.ResponseWriter, r *http.Request) {
			api.ListPairingDevices(w, r, chi.URLParam(r, "sid"))
		})
		apiRouter.Post("/pairing/sessions/{sid}/devices", func(w http.ResponseWriter, r *http.Request) {
			api.AddPairingDevices(w, r, chi.URLParam(r, "sid"))
		})

		apiRouter.Post("/refresh", api.Refresh)
	})
	return r
}

func withID(handler func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handler(w, r, chi.URLParam(r, "id"))
	}
}
