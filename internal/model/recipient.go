// internal/model/recipient.go
package model

type Recipient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}
