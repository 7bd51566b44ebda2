package api

import (
	"github.com/go-chi/chi/v5"

	"srd-airdrop-bot/internal/config"
	"srd-airdrop-bot/internal/db"
)

// ApiDependencies содержит зависимости для обработчиков API.
type ApiDependencies struct {
	Config *config.Config
	Store  *db.Store
}

// SetupRoutes настраивает все маршруты для API.
// SetupRoutes wires the admin API. Everything except the health probe sits
// behind the bearer-token middleware.
func SetupRoutes(r *chi.Mux, deps ApiDependencies) {
	h := &apiHandlers{deps: deps}

	r.Get("/api/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(deps.Config.AdminAPIToken))

		r.Get("/api/stats", h.GetStats)
		r.Get("/api/participants/{tgID}", h.GetParticipant)
		r.Get("/api/reconciliations", h.GetReconciliations)
		r.Post("/api/reconciliations/{id}/resolve", h.ResolveReconciliation)
		r.Get("/api/export/payouts.xlsx", h.ExportPayouts)
	})
}
