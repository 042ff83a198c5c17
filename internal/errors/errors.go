// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

// Sentinels matched with errors.Is by the HTTP layer.
var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation failed")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrShuttingDown       = errors.New("campaign service is shutting down")
)

// ErrCampaignNotFound is returned for unknown campaigns and for campaigns
// owned by another user; callers cannot tell the two apart.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign with ID %s not found", e.CampaignID)
}

func (e *ErrCampaignNotFound) Is(target error) bool {
	return target == ErrNotFound
}

// Helper constructor
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

type ErrProfileNotFound struct {
	ProfileID string
}

func (e *ErrProfileNotFound) Error() string {
	return fmt.Sprintf("sender profile with ID %s not found", e.ProfileID)
}

func (e *ErrProfileNotFound) Is(target error) bool {
	return target == ErrNotFound
}

func NewProfileNotFound(id string) error {
	return &ErrProfileNotFound{ProfileID: id}
}

// ValidationError reports bad input at submission time. Nothing is
// registered when one is returned.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func NewValidation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// StorageError wraps a failure of the durable store.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func NewStorage(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
