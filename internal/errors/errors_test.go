package appErrors_test

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
)

func TestCampaignNotFoundMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("get status: %w", appErrors.NewCampaignNotFound("user1-3"))

	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
	assert.False(t, errors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "user1-3")

	var nf *appErrors.ErrCampaignNotFound
	if assert.True(t, errors.As(err, &nf)) {
		assert.Equal(t, "user1-3", nf.CampaignID)
	}
}

func TestStorageErrorUnwrapsCause(t *testing.T) {
	err := appErrors.NewStorage("create campaign record", sql.ErrConnDone)

	assert.True(t, errors.Is(err, appErrors.ErrStorageUnavailable))
	assert.True(t, errors.Is(err, sql.ErrConnDone))
	assert.Equal(t, "create campaign record: sql: connection is already closed", err.Error())
}

func TestValidationErrorMessage(t *testing.T) {
	assert.Equal(t, "recipients: must not be empty", appErrors.NewValidation("recipients", "must not be empty").Error())
	assert.Equal(t, "no valid contacts", appErrors.NewValidation("", "no valid contacts").Error())
	assert.True(t, errors.Is(appErrors.NewValidation("x", "y"), appErrors.ErrValidation))
}

func TestProfileNotFoundMatchesSentinel(t *testing.T) {
	assert.True(t, errors.Is(appErrors.NewProfileNotFound("p1"), appErrors.ErrNotFound))
}
