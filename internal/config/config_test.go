package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	for _, k := range []string{"DB_DRIVER", "HTTP_ADDR", "PACE_UNIT", "AMQP_URL", "DATABASE_URL", "SQLITE_PATH"} {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "campaigns.db", cfg.Database.DSN())
	assert.Equal(t, time.Minute, cfg.Engine.PaceUnit)
	assert.Equal(t, 30*time.Second, cfg.Engine.SMTPTimeout)
	assert.Equal(t, 5*time.Second, cfg.Engine.StoreWriteTimeout)
	assert.Equal(t, "campaign_events", cfg.Events.Exchange)
	assert.Empty(t, cfg.Events.AMQPURL)
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DRIVER", "mysql")

	_, err := Load()
	assert.ErrorContains(t, err, "DB_DRIVER")
}

func TestPostgresDSN(t *testing.T) {
	d := DatabaseConfig{Driver: "postgres", Host: "db", Port: 5433, Name: "campaigns", User: "app", Password: "p@ss", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5433/campaigns?sslmode=disable", d.DSN())

	d.URL = "postgres://other"
	assert.Equal(t, "postgres://other", d.DSN())
}

func TestParseUsers(t *testing.T) {
	users, err := ParseUsers("alice:secret, bob:hunter2,")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "secret", "bob": "hunter2"}, users)

	_, err = ParseUsers("alice")
	assert.Error(t, err)
	_, err = ParseUsers(":pw")
	assert.Error(t, err)
}

func TestAuthLoadMergesUsersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users:\n  bob: from-file\n  carol: c4rol\n"), 0o600))

	users, err := AuthConfig{Users: "alice:a,bob:env", UsersFile: path}.Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"alice": "a", "bob": "from-file", "carol": "c4rol"}, users)
	assert.Equal(t, []string{"alice", "bob", "carol"}, Names(users))
}

func TestLoadUsersErrors(t *testing.T) {
	_, err := LoadUsers(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("users: [nope"), 0o600))
	_, err = LoadUsers(path)
	assert.Error(t, err)
}
