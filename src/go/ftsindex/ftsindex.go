// Package ftsindex reads the external full-text index (§6): a table of
// (id, file_uid, text, text_hash) rows backed by a SQLite FTS5 virtual
// table that supports MATCH queries ordered by bm25(fts) (lower is more
// relevant). The ingestion pipeline that populates this table is an
// external collaborator; this package only consumes it.
package ftsindex

import (
	"context"
	_ "embed"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/kortix-ai/kb-fusion/src/go/engineerr"
	"github.com/kortix-ai/kb-fusion/src/go/types"
)

//go:embed schema.sql
var schemaSQL string

// Index is a read-only-from-this-engine's-perspective handle onto the
// full-text table.
type Index struct {
	db *sql.DB
}

// Open opens a SQLite database at dataSourceName and ensures the expected
// schema exists (a no-op against an already-populated external store; it
// only matters for test fixtures that don't pre-exist).
func Open(dataSourceName string) (*Index, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("open fts index: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=30000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize fts schema: %w", err)
	}
	return &Index{db: db}, nil
}

func (idx *Index) Close() error { return idx.db.Close() }

// Search executes a MATCH query scoped to fileUID, ordered by bm25(fts)
// ascending (lower = more relevant), limited to limit rows. An empty
// matchExpr returns no rows without querying (§4.9 step 1: an empty base
// expression means an empty result).
func (idx *Index) Search(ctx context.Context, fileUID, matchExpr string, limit int) ([]types.FTSRow, error) {
	if matchExpr == "" {
		return nil, nil
	}

	rows, err := idx.db.QueryContext(ctx,
		`SELECT c.id, c.text, bm25(fts) AS r, c.text_hash
		 FROM fts
		 JOIN chunks c ON c.id = fts.rowid
		 WHERE fts MATCH ? AND c.file_uid = ?
		 ORDER BY r
		 LIMIT ?`,
		matchExpr, fileUID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engineerr.ErrCacheTransient, err)
	}
	defer rows.Close()

	var out []types.FTSRow
	for rows.Next() {
		var row types.FTSRow
		if err := rows.Scan(&row.ChunkID, &row.Text, &row.RawScore, &row.TextHash); err != nil {
			return nil, fmt.Errorf("scan fts row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Populate is a test-only helper: the ingestion pipeline is external per
// §1, but tests need a way to seed fixtures against the exact schema the
// engine reads.
func (idx *Index) Populate(ctx context.Context, fileUID string, chunks []types.Chunk) error {
	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO chunks (id, file_uid, text, text_hash) VALUES (?,?,?,?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ChunkID, fileUID, c.Text, c.ContentHash); err != nil {
			return err
		}
	}
	return tx.Commit()
}
