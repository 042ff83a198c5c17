package main

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/mailcampaign/internal/db"
	appErrors "github.com/unclebandit/mailcampaign/internal/errors"
	"github.com/unclebandit/mailcampaign/internal/repository"
)

func profileRepo(t *testing.T) *repository.ProfileRepository {
	t.Helper()
	ctx := context.Background()
	conn, dialect, err := db.Open(ctx, "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, db.EnsureSchema(ctx, conn))
	return repository.NewProfileRepository(conn, dialect)
}

func TestSeedBundledProfiles(t *testing.T) {
	repo := profileRepo(t)

	f, err := os.Open("../../seed/profiles.yaml")
	require.NoError(t, err)
	defer f.Close()

	n, err := seed(context.Background(), repo, f)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	profiles, err := repo.List(context.Background(), "alice")
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	for _, p := range profiles {
		assert.NotEmpty(t, p.ID)
		assert.NoError(t, p.Sender.Validate())
	}
}

func TestSeedRejectsIncompleteProfile(t *testing.T) {
	repo := profileRepo(t)

	_, err := seed(context.Background(), repo, strings.NewReader("profiles:\n  - owner: bob\n    name: broken\n    host: smtp.example.com\n"))
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = seed(context.Background(), repo, strings.NewReader("profiles:\n  - name: nameless-owner\n"))
	assert.Error(t, err)

	_, err = seed(context.Background(), repo, strings.NewReader("profiles: {"))
	assert.Error(t, err)
}
