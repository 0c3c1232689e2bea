package routes

import (
	"github.com/chaos-dotcom/colourstream-sub003/pkg/notify"
	"github.com/go-chi/chi/v5"
)

// RegisterDashboard mounts the observer websocket directly on the chi
// router. Websocket upgrades don't fit the typed request/response model
// the rest of the API uses, so this one endpoint bypasses it.
func RegisterDashboard(router chi.Router, dashboard *notify.Dashboard) {
	if dashboard == nil {
		return
	}
	router.Get("/api/dashboard/uploads/ws", dashboard.HandleWS)
}
