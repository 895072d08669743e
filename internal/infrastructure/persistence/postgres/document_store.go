package postgres

import (
	"context"
	"strings"

	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
)

// DocumentStore implements docstore.Store on the documents table.
type DocumentStore struct {
	conn *Connection
}

// NewDocumentStore wraps an open connection. Run the Migrator first.
func NewDocumentStore(conn *Connection) *DocumentStore {
	return &DocumentStore{conn: conn}
}

func (s *DocumentStore) Get(ctx context.Context, path string) ([]byte, docstore.Version, error) {
	if err := docstore.ValidatePath(path); err != nil {
		return nil, 0, err
	}

	var body []byte
	var version int64
	err := s.conn.QueryRow(ctx,
		`SELECT body::text, version FROM documents WHERE path = $1`, path,
	).Scan(&body, &version)
	if IsNoRows(err) {
		return nil, 0, docstore.ErrNotFound
	}
	if err != nil {
		return nil, 0, err
	}
	return body, docstore.Version(version), nil
}

func (s *DocumentStore) Put(ctx context.Context, path string, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}

	_, err := s.conn.Exec(ctx, `
		INSERT INTO documents (path, body, version, updated_at)
		VALUES ($1, $2::jsonb, 1, NOW())
		ON CONFLICT (path) DO UPDATE
		SET body = EXCLUDED.body, version = documents.version + 1, updated_at = NOW()
	`, path, string(body))
	return err
}

func (s *DocumentStore) CompareAndSwap(ctx context.Context, path string, expected docstore.Version, body []byte) error {
	if err := docstore.ValidatePath(path); err != nil {
		return err
	}

	if expected == 0 {
		_, err := s.conn.Exec(ctx, `
			INSERT INTO documents (path, body, version, updated_at)
			VALUES ($1, $2::jsonb, 1, NOW())
		`, path, string(body))
		if IsUniqueViolation(err) {
			return docstore.ErrConflict
		}
		return err
	}

	tag, err := s.conn.Exec(ctx, `
		UPDATE documents
		SET body = $3::jsonb, version = version + 1, updated_at = NOW()
		WHERE path = $1 AND version = $2
	`, path, int64(expected), string(body))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return docstore.ErrConflict
	}
	return nil
}

func (s *DocumentStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT path, body::text FROM documents WHERE path LIKE $1 ESCAPE '\'`, docstore.LikePattern(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]byte)
	for rows.Next() {
		var path string
		var body []byte
		if err := rows.Scan(&path, &body); err != nil {
			return nil, err
		}
		if rest := strings.TrimPrefix(path, prefix); rest != "" {
			out[rest] = body
		}
	}
	return out, rows.Err()
}

func (s *DocumentStore) DeletePrefix(ctx context.Context, prefix string) error {
	_, err := s.conn.Exec(ctx,
		`DELETE FROM documents WHERE path LIKE $1 ESCAPE '\'`, docstore.LikePattern(prefix))
	return err
}

func (s *DocumentStore) Ping(ctx context.Context) error {
	return s.conn.Ping(ctx)
}

func (s *DocumentStore) Close() error {
	s.conn.Close()
	return nil
}

var _ docstore.Store = (*DocumentStore)(nil)
