package snapshot

import (
	"context"
	"testing"
	"time"

	"gorsi/lib/rsi/rsierr"
	"gorsi/lib/testutil"

	"github.com/stretchr/testify/require"
)

type ship struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, testutil.OpenSqlite(t))
	require.NoError(t, err)

	_, _, err = store.Get(ctx, "ships")
	var notFound *rsierr.NotFoundError
	require.ErrorAs(t, err, &notFound)

	require.NoError(t, store.Put(ctx, "ships", []byte("first")))
	require.NoError(t, store.Put(ctx, "ships", []byte("second")))
	value, updatedAt, err := store.Get(ctx, "ships")
	require.NoError(t, err)
	require.Equal(t, "second", string(value))
	require.WithinDuration(t, time.Now(), updatedAt, 2*time.Second)

	require.NoError(t, store.Delete(ctx, "ships"))
	_, _, err = store.Get(ctx, "ships")
	require.ErrorAs(t, err, &notFound)
}

func TestJSONMaxAge(t *testing.T) {
	ctx := context.Background()
	store, err := New(ctx, testutil.OpenSqlite(t))
	require.NoError(t, err)

	now := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ships := []ship{{ID: 1, Name: "Aurora MR"}, {ID: 3, Name: "Hornet F7C"}}
	require.NoError(t, PutJSON(ctx, store, "ships", ships))

	got, ok, err := GetJSON[[]ship](ctx, store, "ships", time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, ships, got)

	now = now.Add(2 * time.Hour)
	_, ok, err = GetJSON[[]ship](ctx, store, "ships", time.Hour)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = GetJSON[[]ship](ctx, store, "ships", 0)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = GetJSON[[]ship](ctx, store, "missing", 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestConfig(t *testing.T) {
	_, err := Config{}.OpenDB()
	var validationErr *rsierr.ValidationError
	require.ErrorAs(t, err, &validationErr)

	_, err = Config{Url: "postgres://localhost/db"}.OpenDB()
	require.ErrorAs(t, err, &validationErr)

	db, err := Config{Url: "libsql://example.turso.io", AuthToken: "token"}.OpenDB()
	require.NoError(t, err)
	require.NoError(t, db.Close())
}
