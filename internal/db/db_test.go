package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRebind(t *testing.T) {
	q := "UPDATE campaigns SET status = ? WHERE id = ? AND username = ?"

	assert.Equal(t, "UPDATE campaigns SET status = $1 WHERE id = $2 AND username = $3", Postgres.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("postgres")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	d, err = DialectFor("sqlite")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	_, err = DialectFor("mysql")
	assert.Error(t, err)
}

func TestOpenInMemoryAndEnsureSchema(t *testing.T) {
	ctx := context.Background()
	conn, dialect, err := Open(ctx, "sqlite", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	assert.Equal(t, SQLite, dialect)

	require.NoError(t, EnsureSchema(ctx, conn))
	// idempotent
	require.NoError(t, EnsureSchema(ctx, conn))

	var n int
	require.NoError(t, conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM campaigns").Scan(&n))
	assert.Equal(t, 0, n)
}
