// Package store caches platform entities (clusters, subnets, images,
// accounts...) in a local SQLite database so blueprints can reference them by
// name without a round trip to the server at compile time.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const (
	infoVersion   = "version"
	infoUpdatedAt = "updated_at"
)

// Entity is one cached platform entity.
type Entity struct {
	Kind    string
	Name    string
	UUID    string
	Account string
	Cluster string
	VPC     string
	Extra   map[string]string
}

// Info describes the state of the cache.
type Info struct {
	Version   string
	UpdatedAt time.Time
	Counts    map[string]int
}

// Store is the SQLite-backed entity cache.
type Store struct {
	db   *sql.DB
	path string
}

// DefaultPath returns the cache location under the calm home directory.
func DefaultPath(home string) string {
	return filepath.Join(home, "cache.db")
}

// Open opens (creating if needed) the cache at path. Use ":memory:" for a
// throwaway cache.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	// One connection: every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}
	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Replace swaps every cached entity of kind for entities.
func (s *Store) Replace(ctx context.Context, kind string, entities []Entity) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM entities WHERE kind = ?`, kind); err != nil {
		return fmt.Errorf("failed to clear %s entities: %w", kind, err)
	}
	for _, e := range entities {
		if e.UUID == "" {
			continue
		}
		e.Kind = kind
		if err = upsert(ctx, tx, e); err != nil {
			return err
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s entities: %w", kind, err)
	}
	return nil
}

// Put adds or updates a single entity.
func (s *Store) Put(ctx context.Context, e Entity) error {
	return upsert(ctx, s.db, e)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, e Entity) error {
	extra := e.Extra
	if extra == nil {
		extra = map[string]string{}
	}
	data, err := json.Marshal(extra)
	if err != nil {
		return fmt.Errorf("failed to encode extra of %s %q: %w", e.Kind, e.Name, err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO entities (kind, name, uuid, account, cluster, vpc, extra)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (kind, uuid) DO UPDATE SET
		   name = excluded.name, account = excluded.account, cluster = excluded.cluster,
		   vpc = excluded.vpc, extra = excluded.extra`,
		e.Kind, e.Name, e.UUID, e.Account, e.Cluster, e.VPC, string(data),
	)
	if err != nil {
		return fmt.Errorf("failed to store %s %q: %w", e.Kind, e.Name, err)
	}
	return nil
}

// Filter narrows Find. Empty fields match anything. Entities cached without
// an account match every Account filter.
type Filter struct {
	Kind    string
	Name    string
	Account string
	Cluster string
	VPC     string
}

// Find returns the cached entities matching f, ordered by name.
func (s *Store) Find(ctx context.Context, f Filter) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, name, uuid, account, cluster, vpc, extra FROM entities
		 WHERE (?1 = '' OR kind = ?1)
		   AND (?2 = '' OR name = ?2)
		   AND (?3 = '' OR account = '' OR account = ?3)
		   AND (?4 = '' OR cluster = ?4)
		   AND (?5 = '' OR vpc = ?5)
		 ORDER BY kind, name, uuid`,
		f.Kind, f.Name, f.Account, f.Cluster, f.VPC,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache: %w", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		var e Entity
		var extra string
		if err := rows.Scan(&e.Kind, &e.Name, &e.UUID, &e.Account, &e.Cluster, &e.VPC, &extra); err != nil {
			return nil, fmt.Errorf("failed to scan cache row: %w", err)
		}
		if err := json.Unmarshal([]byte(extra), &e.Extra); err != nil {
			return nil, fmt.Errorf("failed to decode extra of %s %q: %w", e.Kind, e.Name, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// SetVersion records the server version and marks the cache as updated now.
func (s *Store) SetVersion(ctx context.Context, version string) error {
	now := time.Now().UTC().Format(time.RFC3339)
	for k, v := range map[string]string{infoVersion: version, infoUpdatedAt: now} {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO server_info (key, value) VALUES (?, ?)
			 ON CONFLICT (key) DO UPDATE SET value = excluded.value`, k, v); err != nil {
			return fmt.Errorf("failed to store %s: %w", k, err)
		}
	}
	return nil
}

// Version returns the server version recorded by the last update, or "" if
// the cache was never filled.
func (s *Store) Version(ctx context.Context) (string, error) {
	return s.info(ctx, infoVersion)
}

func (s *Store) info(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM server_info WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", key, err)
	}
	return v, nil
}

// Info summarizes the cache.
func (s *Store) Info(ctx context.Context) (*Info, error) {
	info := &Info{Counts: map[string]int{}}

	var err error
	if info.Version, err = s.info(ctx, infoVersion); err != nil {
		return nil, err
	}
	updated, err := s.info(ctx, infoUpdatedAt)
	if err != nil {
		return nil, err
	}
	if updated != "" {
		if info.UpdatedAt, err = time.Parse(time.RFC3339, updated); err != nil {
			return nil, fmt.Errorf("failed to parse update time: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT kind, COUNT(*) FROM entities GROUP BY kind`)
	if err != nil {
		return nil, fmt.Errorf("failed to count cache entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("failed to scan cache count: %w", err)
		}
		info.Counts[kind] = n
	}
	return info, rows.Err()
}
