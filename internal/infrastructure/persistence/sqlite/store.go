// Package sqlite provides a SQLite-backed document store for single-process
// deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    path TEXT PRIMARY KEY,
    body TEXT NOT NULL,
    version INTEGER NOT NULL DEFAULT 1,
    updated_at INTEGER NOT NULL
);
`

// Store persists documents in SQLite.
type Store struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

// Open opens (creating if needed) the database at path and ensures the schema.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=case_sensitive_like(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB, now: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

func (s *Store) Get(ctx context.Context, path string) ([]byte, docstore.Version, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, 0, err
	}

	var body string
	var version int64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT body, version FROM documents WHERE path = ?`, path,
	).Scan(&body, &version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, docstore.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("get %s: %w", path, err)
	}
	return []byte(body), docstore.Version(version), nil
}

func (s *Store) Put(ctx context.Context, path string, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO documents (path, body, version, updated_at) VALUES (?, ?, 1, ?)
		 ON CONFLICT(path) DO UPDATE SET
		   body = excluded.body,
		   version = documents.version + 1,
		   updated_at = excluded.updated_at`,
		path, string(body), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", path, err)
	}
	return nil
}

func (s *Store) CompareAndSwap(ctx context.Context, path string, expected docstore.Version, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}

	var res sql.Result
	var err error
	if expected == 0 {
		res, err = s.sqlDB.ExecContext(ctx,
			`INSERT INTO documents (path, body, version, updated_at) VALUES (?, ?, 1, ?)
			 ON CONFLICT(path) DO NOTHING`,
			path, string(body), toMillis(s.now()),
		)
	} else {
		res, err = s.sqlDB.ExecContext(ctx,
			`UPDATE documents SET body = ?, version = version + 1, updated_at = ?
			 WHERE path = ? AND version = ?`,
			string(body), toMillis(s.now()), path, int64(expected),
		)
	}
	if err != nil {
		return fmt.Errorf("compare and swap %s: %w", path, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("compare and swap %s: %w", path, err)
	}
	if affected == 0 {
		return docstore.ErrConflict
	}
	return nil
}

func (s *Store) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT path, body FROM documents WHERE path LIKE ? ESCAPE '\'`, docstore.LikePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", prefix, err)
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var path, body string
		if err := rows.Scan(&path, &body); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if rest := strings.TrimPrefix(path, prefix); rest != "" {
			out[rest] = []byte(body)
		}
	}
	return out, rows.Err()
}

func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM documents WHERE path LIKE ? ESCAPE '\'`, docstore.LikePattern(prefix))
	if err != nil {
		return fmt.Errorf("delete prefix %s: %w", prefix, err)
	}
	return nil
}

var _ docstore.Store = (*Store)(nil)
