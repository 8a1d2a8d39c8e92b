// Package snapshot stores json snapshots of fetched resources in sqlite or a
// remote libsql database.
package snapshot

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"gorsi/lib/rsi/rsierr"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

const schema = `
create table if not exists snapshot (
	key text primary key,
	value blob not null,
	updated_at integer not null
);
`

// Config selects the database, Url (a libsql:// or http(s):// url) takes
// precedence over File.
type Config struct {
	File      string `json:"file"`
	Url       string `json:"url"`
	AuthToken string `json:"auth_token"`
}

func (config Config) OpenDB() (*sql.DB, error) {
	if config.Url == "" {
		if config.File == "" {
			return nil, &rsierr.ValidationError{Field: "snapshot database", Reason: "file or url must be set"}
		}
		return sql.Open("sqlite", config.File)
	}

	dsn, err := url.Parse(config.Url)
	if err != nil {
		return nil, err
	}
	switch dsn.Scheme {
	case "libsql", "http", "https", "ws", "wss":
	default:
		return nil, &rsierr.ValidationError{Field: "snapshot url", Value: config.Url, Reason: "unsupported scheme"}
	}
	if config.AuthToken != "" {
		query := dsn.Query()
		query.Set("authToken", config.AuthToken)
		dsn.RawQuery = query.Encode()
	}
	return sql.Open("libsql", dsn.String())
}

type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates the snapshot table if needed.
func New(ctx context.Context, db *sql.DB) (Store, error) {
	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return Store{}, fmt.Errorf("create snapshot schema: %w", err)
	}
	return Store{db: db, now: time.Now}, nil
}

// Open opens the configured database and creates the snapshot table.
func Open(ctx context.Context, config Config) (Store, error) {
	db, err := config.OpenDB()
	if err != nil {
		return Store{}, err
	}
	store, err := New(ctx, db)
	if err != nil {
		db.Close()
		return Store{}, err
	}
	return store, nil
}

func (s Store) Close() error {
	return s.db.Close()
}

func (s Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(
		ctx,
		`insert into snapshot(key, value, updated_at) values (?, ?, ?)
		on conflict(key) do update set value = excluded.value, updated_at = excluded.updated_at`,
		key, value, s.now().Unix(),
	)
	return err
}

// Get returns the value stored under key and when it was written, a missing key
// is a NotFoundError.
func (s Store) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var value []byte
	var updatedAt int64
	err := s.db.QueryRowContext(
		ctx,
		"select value, updated_at from snapshot where key = ?",
		key,
	).Scan(&value, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, &rsierr.NotFoundError{Kind: "snapshot", Key: key}
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	return value, time.Unix(updatedAt, 0), nil
}

func (s Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, "delete from snapshot where key = ?", key)
	return err
}

// PutJSON stores value as json.
func PutJSON[T any](ctx context.Context, s Store, key string, value T) error {
	buff, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Put(ctx, key, buff)
}

// GetJSON returns the value stored under key if it was written less than maxAge
// ago, maxAge <= 0 accepts any age.
func GetJSON[T any](ctx context.Context, s Store, key string, maxAge time.Duration) (T, bool, error) {
	var out T
	buff, updatedAt, err := s.Get(ctx, key)
	var notFound *rsierr.NotFoundError
	if errors.As(err, &notFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if maxAge > 0 && s.now().Sub(updatedAt) > maxAge {
		return out, false, nil
	}
	err = json.Unmarshal(buff, &out)
	if err != nil {
		return out, false, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return out, true, nil
}
