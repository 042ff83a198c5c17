// internal/model/campaign.go
package model

import "time"

type Status string

const (
	StatusQueued   Status = "queued"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusStopped  Status = "stopped"
)

// Terminal reports whether no further change is allowed.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusStopped
}

// CanTransition follows queued -> running -> {finished, stopped}.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusQueued:
		return to == StatusRunning
	case StatusRunning:
		return to == StatusFinished || to == StatusStopped
	}
	return false
}

type Campaign struct {
	ID        string     `db:"id" json:"campaign_id"`
	Seq       int64      `db:"seq" json:"-"`
	Username  string     `db:"username" json:"username"`
	Subject   string     `db:"subject" json:"subject"`
	Status    Status     `db:"status" json:"status"`
	Total     int        `db:"total" json:"total"`
	Processed int        `db:"processed" json:"processed"`
	Sent      int        `db:"sent" json:"sent"`
	Failed    int        `db:"failed" json:"failed"`
	Delivered int        `db:"delivered" json:"delivered"`
	Bounced   int        `db:"bounced" json:"bounced"`
	LastError *string    `db:"last_error" json:"last_error"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// Stats is the mutable part of a campaign pushed to the progress sink.
type Stats struct {
	Status    Status
	Processed int
	Sent      int
	Failed    int
	Delivered int
	Bounced   int
	LastError *string
}

func (c *Campaign) Stats() Stats {
	return Stats{
		Status:    c.Status,
		Processed: c.Processed,
		Sent:      c.Sent,
		Failed:    c.Failed,
		Delivered: c.Delivered,
		Bounced:   c.Bounced,
		LastError: c.LastError,
	}
}
