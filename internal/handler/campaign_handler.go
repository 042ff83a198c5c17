// internal/handler/campaign_handler.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/service"
)

// CampaignHandler serves the read side of campaigns.
type CampaignHandler struct {
	Service *service.CampaignService
	Logger  *zap.Logger
}

func NewCampaignHandler(svc *service.CampaignService, logger *zap.Logger) *CampaignHandler {
	return &CampaignHandler{Service: svc, Logger: logger}
}

// GetCampaignHandler returns the status snapshot of one campaign.
func (h *CampaignHandler) GetCampaignHandler(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.Service.GetStatus(r.Context(), Owner(r), id)
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusOK, campaign)
}

// ListCampaignsHandler returns the caller's campaigns, newest first.
func (h *CampaignHandler) ListCampaignsHandler(w http.ResponseWriter, r *http.Request) {
	campaigns, err := h.Service.List(r.Context(), Owner(r))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	if campaigns == nil {
		campaigns = []model.Campaign{}
	}
	WriteJSON(w, http.StatusOK, map[string]any{
		"data":  campaigns,
		"count": len(campaigns),
	})
}

func (h *CampaignHandler) HealthHandler(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{
		"status":           "ok",
		"active_campaigns": h.Service.Active(),
	})
}
