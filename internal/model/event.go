// internal/model/event.go
package model

import "time"

// CampaignEvent is published on every status transition.
type CampaignEvent struct {
	CampaignID string    `json:"campaign_id"`
	Username   string    `json:"username"`
	Status     Status    `json:"status"`
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Sent       int       `json:"sent"`
	Failed     int       `json:"failed"`
	LastError  *string   `json:"last_error,omitempty"`
	At         time.Time `json:"at"`
}

func NewCampaignEvent(c Campaign, at time.Time) CampaignEvent {
	return CampaignEvent{
		CampaignID: c.ID,
		Username:   c.Username,
		Status:     c.Status,
		Total:      c.Total,
		Processed:  c.Processed,
		Sent:       c.Sent,
		Failed:     c.Failed,
		LastError:  c.LastError,
		At:         at,
	}
}
