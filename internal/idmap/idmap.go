// Package idmap implements the Id Map Store: a small embedded
// relational store bridging local integer ids to remote string ids,
// one table per item kind.
//
// Reads are served from an LRU cache in front of the underlying
// SQLite tables, kept coherent by updating it synchronously inside
// Upsert/Erase rather than merely invalidating it — a lookup that
// immediately follows an upsert for the same id must see the new
// value, not a stale cache entry or an extra round trip to disk.
package idmap

import (
	"context"
	"database/sql"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "modernc.org/sqlite"

	"github.com/sync2gm/sync2gmd/internal/syncerr"
)

// Kind identifies a category of remote object, each with its own
// table in the Id Map Store. The set is closed by design: song and
// playlist are the concrete kinds this binding needs; a new binding
// adds its own kinds by extending tableFor and the kinds passed to
// Init.
type Kind string

const (
	Song     Kind = "song"
	Playlist Kind = "playlist"
)

// tableFor returns the SQL table name backing kind. Table names come
// only from this fixed map, never from external input, so building
// DDL/DML with fmt.Sprintf below is safe — database/sql placeholders
// cannot parameterize identifiers.
func tableFor(kind Kind) (string, bool) {
	switch kind {
	case Song:
		return "GMSongIds", true
	case Playlist:
		return "GMPlaylistIds", true
	default:
		return "", false
	}
}

type cacheKey struct {
	kind    Kind
	localID int64
}

// Store is the Id Map Store backed by a SQLite database file.
type Store struct {
	db    *sql.DB
	cache *lru.Cache[cacheKey, string]
}

// Open opens (creating if necessary) the Id Map Store at path. It
// does not touch schema — call Init once, as an explicit operator
// action, to (re)create the per-kind tables.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("idmap: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("idmap: ping %s: %w", path, err)
	}

	cache, err := lru.New[cacheKey, string](4096)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("idmap: create cache: %w", err)
	}

	return &Store{db: db, cache: cache}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Init drops and recreates the table for each kind, discarding any
// prior mappings. This is correct only because Init is an explicit
// operator action (sync2gmd init), never performed on ordinary daemon
// startup — see DESIGN.md.
func (s *Store) Init(kinds []Kind) error {
	s.cache.Purge()

	for _, kind := range kinds {
		table, ok := tableFor(kind)
		if !ok {
			return fmt.Errorf("idmap: unknown item kind %q", kind)
		}

		schema := fmt.Sprintf(`
			DROP TABLE IF EXISTS %s;
			CREATE TABLE %s (
				local_id  INTEGER PRIMARY KEY,
				remote_id TEXT NOT NULL
			);
		`, table, table)

		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("idmap: init table for %s: %w", kind, err)
		}
	}

	return nil
}

// Lookup returns the remote id mapped to (kind, localID). It fails
// with syncerr.ErrUnmappedItem if no row exists.
func (s *Store) Lookup(ctx context.Context, kind Kind, localID int64) (string, error) {
	key := cacheKey{kind, localID}
	if remoteID, ok := s.cache.Get(key); ok {
		return remoteID, nil
	}

	table, ok := tableFor(kind)
	if !ok {
		return "", fmt.Errorf("idmap: unknown item kind %q", kind)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return "", fmt.Errorf("idmap: acquire connection: %w", err)
	}
	defer conn.Close()

	var remoteID string
	query := fmt.Sprintf("SELECT remote_id FROM %s WHERE local_id = ?", table)
	err = conn.QueryRowContext(ctx, query, localID).Scan(&remoteID)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("%w: kind=%s local_id=%d", syncerr.ErrUnmappedItem, kind, localID)
	}
	if err != nil {
		return "", fmt.Errorf("idmap: lookup kind=%s local_id=%d: %w", kind, localID, err)
	}

	s.cache.Add(key, remoteID)
	return remoteID, nil
}

// Upsert records local_id -> remote_id for kind, overwriting any
// prior binding for the same key.
func (s *Store) Upsert(ctx context.Context, kind Kind, localID int64, remoteID string) error {
	table, ok := tableFor(kind)
	if !ok {
		return fmt.Errorf("idmap: unknown item kind %q", kind)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("idmap: acquire connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf(`
		INSERT INTO %s (local_id, remote_id) VALUES (?, ?)
		ON CONFLICT(local_id) DO UPDATE SET remote_id = excluded.remote_id
	`, table)
	if _, err := conn.ExecContext(ctx, query, localID, remoteID); err != nil {
		return fmt.Errorf("idmap: upsert kind=%s local_id=%d: %w", kind, localID, err)
	}

	s.cache.Add(cacheKey{kind, localID}, remoteID)
	return nil
}

// Erase removes any binding for (kind, localID). It is not an error
// if no binding exists.
func (s *Store) Erase(ctx context.Context, kind Kind, localID int64) error {
	table, ok := tableFor(kind)
	if !ok {
		return fmt.Errorf("idmap: unknown item kind %q", kind)
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("idmap: acquire connection: %w", err)
	}
	defer conn.Close()

	query := fmt.Sprintf("DELETE FROM %s WHERE local_id = ?", table)
	if _, err := conn.ExecContext(ctx, query, localID); err != nil {
		return fmt.Errorf("idmap: erase kind=%s local_id=%d: %w", kind, localID, err)
	}

	s.cache.Remove(cacheKey{kind, localID})
	return nil
}
