// internal/service/template_service.go
package service

import (
	"strings"

	"github.com/unclebandit/mailcampaign/internal/model"
)

const (
	NamePlaceholder  = "{{name}}"
	EmailPlaceholder = "{{email}}"
)

// RenderTemplate substitutes the recipient's name and email. Any other text,
// including unknown placeholders, passes through unchanged. Substitution is a
// single pass, so values containing a placeholder are not expanded again.
func RenderTemplate(body string, recipient model.Recipient) string {
	return strings.NewReplacer(
		NamePlaceholder, recipient.Name,
		EmailPlaceholder, recipient.Email,
	).Replace(body)
}
