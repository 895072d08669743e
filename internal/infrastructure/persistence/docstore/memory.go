package docstore

import (
	"context"
	"strings"
	"sync"
)

type memoryDoc struct {
	body    []byte
	version Version
}

// MemoryStore is a process-local Store.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]memoryDoc
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]memoryDoc)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) ([]byte, Version, error) {
	if err := ValidatePath(path); err != nil {
		return nil, 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[path]
	if !ok {
		return nil, 0, ErrNotFound
	}
	return clone(doc.body), doc.version, nil
}

func (s *MemoryStore) Put(ctx context.Context, path string, body []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.docs[path] = memoryDoc{body: clone(body), version: s.docs[path].version + 1}
	return nil
}

func (s *MemoryStore) CompareAndSwap(ctx context.Context, path string, expected Version, body []byte) error {
	if err := ValidatePath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.docs[path].version
	if current != expected {
		return ErrConflict
	}
	s.docs[path] = memoryDoc{body: clone(body), version: current + 1}
	return nil
}

func (s *MemoryStore) List(ctx context.Context, prefix string) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]byte)
	for path, doc := range s.docs {
		if rest, ok := strings.CutPrefix(path, prefix); ok && rest != "" {
			out[rest] = clone(doc.body)
		}
	}
	return out, nil
}

func (s *MemoryStore) DeletePrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for path := range s.docs {
		if strings.HasPrefix(path, prefix) {
			delete(s.docs, path)
		}
	}
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

var _ Store = (*MemoryStore)(nil)
