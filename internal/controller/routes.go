// internal/controller/routes.go
package controller

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign/internal/handler"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// NewRouter wires every HTTP route. Everything but /health requires Basic auth.
func NewRouter(svc *service.CampaignService, users map[string]string, logger *zap.Logger) http.Handler {
	campaignController := NewCampaignController(svc, logger)
	campaignHandler := handler.NewCampaignHandler(svc, logger)
	profileHandler := handler.NewProfileHandler(svc, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(handler.RequestLogger(logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", campaignHandler.HealthHandler)

	r.Group(func(r chi.Router) {
		r.Use(handler.Authenticate(users))

		// Campaign routes
		r.Post("/campaigns", campaignController.StartCampaign)
		r.Get("/campaigns", campaignHandler.ListCampaignsHandler)
		r.Get("/campaigns/{id}", campaignHandler.GetCampaignHandler)
		r.Post("/campaigns/{id}/stop", campaignController.StopCampaign)

		// Legacy endpoint names
		r.Post("/start_campaign", campaignController.StartCampaign)
		r.Get("/campaign_status/{id}", campaignHandler.GetCampaignHandler)
		r.Post("/stop_campaign/{id}", campaignController.StopCampaign)

		// Sender profiles
		r.Post("/profiles", profileHandler.CreateProfileHandler)
		r.Get("/profiles", profileHandler.ListProfilesHandler)
	})

	return r
}
