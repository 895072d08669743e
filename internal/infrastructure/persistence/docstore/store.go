// Package docstore defines the key-path document store the bot persists to and
// the typed progression store built on top of it. Backends live in the
// sibling postgres, redis and sqlite packages; MemoryStore serves tests and
// local development.
package docstore

import (
	"context"
	"errors"
	"strings"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

// Version identifies one revision of a document. Zero means "absent".
type Version int64

var (
	// ErrNotFound is returned by Get for a missing path.
	ErrNotFound = shared.WrapError("docstore", "Get", shared.ErrNotFound, "document not found", nil)

	// ErrConflict is returned by CompareAndSwap when the stored version moved.
	ErrConflict = shared.WrapError("docstore", "CompareAndSwap", shared.ErrConflict, "version mismatch", nil)

	// ErrInvalidPath is returned for empty paths or paths with empty segments.
	ErrInvalidPath = errors.New("docstore: invalid path")
)

// Store is a key-path document store holding opaque JSON bodies.
//
// Put is last-writer-wins. CompareAndSwap is the only conditional write and is
// what optimistic transactions are built on. There is no single-document
// delete: a document's version only grows, and records that start over are
// rewritten through a transaction.
type Store interface {
	// Get returns the body and version at path, or ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, Version, error)

	// Put overwrites the body at path.
	Put(ctx context.Context, path string, body []byte) error

	// CompareAndSwap writes body only if the stored version equals expected
	// (zero: the document must not exist). Returns ErrConflict otherwise.
	CompareAndSwap(ctx context.Context, path string, expected Version, body []byte) error

	// List returns every document under prefix keyed by the remaining path.
	List(ctx context.Context, prefix string) (map[string][]byte, error)

	// DeletePrefix removes every document under prefix.
	DeletePrefix(ctx context.Context, prefix string) error

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Join builds a document path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidatePath rejects empty paths and empty segments.
func ValidatePath(path string) error {
	if path == "" {
		return ErrInvalidPath
	}
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			return ErrInvalidPath
		}
	}
	return nil
}

// Prefix normalizes a collection name into a listing prefix ending in "/".
func Prefix(collection string) string {
	return strings.TrimSuffix(collection, "/") + "/"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// LikePattern turns prefix into a SQL LIKE pattern escaped with '\'.
func LikePattern(prefix string) string {
	return likeEscaper.Replace(prefix) + "%"
}
