// internal/handler/profile_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/service"
)

type ProfileHandler struct {
	Service *service.CampaignService
	Logger  *zap.Logger
}

func NewProfileHandler(svc *service.CampaignService, logger *zap.Logger) *ProfileHandler {
	return &ProfileHandler{Service: svc, Logger: logger}
}

// profileResponse never carries the SMTP password.
type profileResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Host        string    `json:"host"`
	Port        int       `json:"port"`
	Username    string    `json:"username"`
	FromEmail   string    `json:"from_email"`
	UseTLS      bool      `json:"use_tls"`
	HasPassword bool      `json:"has_password"`
	CreatedAt   time.Time `json:"created_at"`
}

func toProfileResponse(p *model.Profile) profileResponse {
	return profileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Host:        p.Sender.Host,
		Port:        p.Sender.Port,
		Username:    p.Sender.Username,
		FromEmail:   p.Sender.FromEmail,
		UseTLS:      p.Sender.UseTLS,
		HasPassword: p.Sender.Password != "",
		CreatedAt:   p.CreatedAt,
	}
}

func (h *ProfileHandler) CreateProfileHandler(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name string `json:"name"`
		model.SenderIdentity
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		WriteError(w, h.Logger, appErrors.NewValidation("body", "invalid request body: "+err.Error()))
		return
	}

	profile := &model.Profile{Name: payload.Name, Sender: payload.SenderIdentity}
	if _, err := h.Service.SaveProfile(r.Context(), Owner(r), profile); err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *ProfileHandler) ListProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.Service.ListProfiles(r.Context(), Owner(r))
	if err != nil {
		WriteError(w, h.Logger, err)
		return
	}
	out := make([]profileResponse, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, toProfileResponse(p))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"data": out})
}
