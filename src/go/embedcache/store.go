package embedcache

import (
	"context"
	_ "embed"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the pure-Go "sqlite" database/sql driver

	"github.com/kortix-ai/kb-fusion/src/go/engineerr"
	"github.com/kortix-ai/kb-fusion/src/go/types"
)

// ErrCacheTransient aliases the shared sentinel so callers only need to
// import this package for persistent-store specific error handling.
var ErrCacheTransient = engineerr.ErrCacheTransient

//go:embed schema.sql
var schemaSQL string

// busyTimeout is the persistent store's busy-wait bound (§5): reads and
// writes serialize through the underlying file with this timeout before a
// CacheTransient failure is surfaced.
const busyTimeout = 30 * time.Second

// Store is the persistent tier of the embedding cache: a single-file
// SQLite database keyed by (content_hash, model, dim, version_key).
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a persistent embedding cache at
// dataSourceName, which may be a file path or "file::memory:?cache=shared"
// for tests.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open embedding cache: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", busyTimeout.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize embedding cache schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup performs a single batched lookup for a set of content hashes,
// returning a map from the raw hash bytes (as a string) to decoded vector. Only rows
// matching (model, dim, version) are returned — stale-version rows are
// logically invisible (§3's cache record lifecycle).
func (s *Store) Lookup(ctx context.Context, hashes [][]byte, model string, dim int, version string) (map[string][]float32, error) {
	if len(hashes) == 0 {
		return map[string][]float32{}, nil
	}

	placeholders := make([]string, len(hashes))
	args := make([]any, 0, len(hashes)+3)
	for i, h := range hashes {
		placeholders[i] = "?"
		args = append(args, h)
	}
	args = append(args, model, dim, version)

	query := fmt.Sprintf(
		"SELECT text_hash, vector FROM embeddings WHERE text_hash IN (%s) AND model = ? AND dim = ? AND version = ?",
		strings.Join(placeholders, ","),
	)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheTransient, err)
	}
	defer rows.Close()

	out := make(map[string][]float32, len(hashes))
	for rows.Next() {
		var hash, vecBytes []byte
		if err := rows.Scan(&hash, &vecBytes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCacheTransient, err)
		}
		out[string(hash)] = DecodeVector(vecBytes)
	}
	return out, rows.Err()
}

// Put writes a batch of new vectors atomically in a single transaction
// (§4.4's "writes are batched and committed atomically per query").
func (s *Store) Put(ctx context.Context, records []types.CacheRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheTransient, err)
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT OR REPLACE INTO embeddings VALUES (?,?,?,?,?,?)")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheTransient, err)
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.ContentHash, r.Model, r.Dim, r.VersionKey, r.Vector, r.Timestamp); err != nil {
			return fmt.Errorf("%w: %v", ErrCacheTransient, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: %v", ErrCacheTransient, err)
	}
	return nil
}
