// internal/controller/campaign_controller.go
package controller

import (
	"encoding/json"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/handler"
	"github.com/unclebandit/mailcampaign/internal/model"
	"github.com/unclebandit/mailcampaign/internal/recipients"
	"github.com/unclebandit/mailcampaign/internal/service"
)

const (
	maxUploadBytes = 32 << 20
	defaultSpeed   = 60
)

type CampaignController struct {
	CampaignService *service.CampaignService
	Logger          *zap.Logger
}

func NewCampaignController(svc *service.CampaignService, logger *zap.Logger) *CampaignController {
	return &CampaignController{CampaignService: svc, Logger: logger}
}

type startCampaignBody struct {
	Subject        string                `json:"subject"`
	HTMLBody       string                `json:"html_body"`
	Sender         *model.SenderIdentity `json:"sender"`
	ProfileID      string                `json:"profile_id"`
	SpeedPerMinute *int                  `json:"speed_per_minute"`
	Recipients     []model.Recipient     `json:"recipients"`
}

type startCampaignResponse struct {
	CampaignID    string `json:"campaign_id"`
	TotalContacts int    `json:"total_contacts"`
	Message       string `json:"message"`
}

// StartCampaign accepts either a JSON body or a multipart form carrying the
// recipient list as a CSV file in contacts_file.
func (c *CampaignController) StartCampaign(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)

	var (
		req service.SubmitRequest
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		req, err = c.parseForm(r)
	} else {
		req, err = c.parseJSON(r)
	}
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	req.Owner = handler.Owner(r)

	result, err := c.CampaignService.Submit(r.Context(), req)
	if err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}

	handler.WriteJSON(w, http.StatusAccepted, startCampaignResponse{
		CampaignID:    result.CampaignID,
		TotalContacts: result.Total,
		Message:       "Campaign started",
	})
}

func (c *CampaignController) parseJSON(r *http.Request) (service.SubmitRequest, error) {
	var body startCampaignBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return service.SubmitRequest{}, appErrors.NewValidation("body", "invalid request body: "+err.Error())
	}

	speed := defaultSpeed
	if body.SpeedPerMinute != nil {
		speed = *body.SpeedPerMinute
	}
	rcpts := make([]model.Recipient, 0, len(body.Recipients))
	for _, rc := range body.Recipients {
		rc.Email = strings.TrimSpace(rc.Email)
		rc.Name = strings.TrimSpace(rc.Name)
		if rc.Email == "" {
			continue
		}
		rcpts = append(rcpts, rc)
	}

	return service.SubmitRequest{
		Subject:        body.Subject,
		HTMLBody:       body.HTMLBody,
		Sender:         body.Sender,
		ProfileID:      body.ProfileID,
		SpeedPerMinute: speed,
		Recipients:     rcpts,
	}, nil
}

func (c *CampaignController) parseForm(r *http.Request) (service.SubmitRequest, error) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		return service.SubmitRequest{}, appErrors.NewValidation("body", "invalid multipart form: "+err.Error())
	}

	file, header, err := r.FormFile("contacts_file")
	if err != nil {
		return service.SubmitRequest{}, appErrors.NewValidation("contacts_file", "a CSV contacts file is required")
	}
	defer file.Close()
	if !strings.HasSuffix(strings.ToLower(header.Filename), ".csv") {
		return service.SubmitRequest{}, appErrors.NewValidation("contacts_file", "only CSV is supported")
	}
	rcpts, err := recipients.ParseCSV(file)
	if err != nil {
		return service.SubmitRequest{}, err
	}

	speed, err := formInt(r, "speed_per_minute", defaultSpeed)
	if err != nil {
		return service.SubmitRequest{}, err
	}

	req := service.SubmitRequest{
		Subject:        r.FormValue("subject"),
		HTMLBody:       r.FormValue("html_body"),
		ProfileID:      r.FormValue("profile_id"),
		SpeedPerMinute: speed,
		Recipients:     rcpts,
	}
	if req.ProfileID != "" && r.FormValue("smtp_host") == "" {
		return req, nil
	}

	port, err := formInt(r, "smtp_port", 0)
	if err != nil {
		return service.SubmitRequest{}, err
	}
	useTLS := true
	if v := r.FormValue("smtp_use_tls"); v != "" {
		if useTLS, err = strconv.ParseBool(v); err != nil {
			return service.SubmitRequest{}, appErrors.NewValidation("smtp_use_tls", "must be a boolean")
		}
	}
	req.Sender = &model.SenderIdentity{
		Host:      r.FormValue("smtp_host"),
		Port:      port,
		Username:  r.FormValue("smtp_username"),
		Password:  r.FormValue("smtp_password"),
		FromEmail: r.FormValue("from_email"),
		UseTLS:    useTLS,
	}
	return req, nil
}

func formInt(r *http.Request, field string, def int) (int, error) {
	v := strings.TrimSpace(r.FormValue(field))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, appErrors.NewValidation(field, "must be an integer")
	}
	return n, nil
}

// StopCampaign asks a campaign to stop at its next recipient boundary.
func (c *CampaignController) StopCampaign(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := c.CampaignService.RequestStop(r.Context(), handler.Owner(r), id); err != nil {
		handler.WriteError(w, c.Logger, err)
		return
	}
	handler.WriteJSON(w, http.StatusOK, map[string]string{
		"message":     "Campaign stop requested",
		"campaign_id": id,
	})
}
