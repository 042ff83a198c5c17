// internal/model/sender.go
package model

import (
	"strings"
	"time"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

// SenderIdentity is the outbound SMTP configuration used for one campaign.
type SenderIdentity struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Username  string `json:"username"`
	Password  string `json:"password,omitempty"`
	FromEmail string `json:"from_email"`
	UseTLS    bool   `json:"use_tls"`
}

func (s SenderIdentity) Validate() error {
	if strings.TrimSpace(s.Host) == "" {
		return appErrors.NewValidation("sender.host", "is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return appErrors.NewValidation("sender.port", "must be between 1 and 65535")
	}
	if strings.TrimSpace(s.FromEmail) == "" {
		return appErrors.NewValidation("sender.from_email", "is required")
	}
	return nil
}

// Profile is a saved sender identity scoped to one owner.
type Profile struct {
	ID        string         `db:"id" json:"id"`
	Owner     string         `db:"username" json:"-"`
	Name      string         `db:"name" json:"name"`
	Sender    SenderIdentity `json:"sender"`
	CreatedAt time.Time      `db:"created_at" json:"created_at"`
}
