package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore/docstoretest"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "seasons.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreSuite(t *testing.T) {
	docstoretest.Run(t, func(t *testing.T) docstore.Store { return openTestStore(t) })
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open("  ")
	assert.Error(t, err)
}

func TestStore_GetPutVersions(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, _, err := s.Get(ctx, "exp_data/1")
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, "exp_data/1", []byte(`{"exp":1}`)))
	require.NoError(t, s.Put(ctx, "exp_data/1", []byte(`{"exp":2}`)))

	body, v, err := s.Get(ctx, "exp_data/1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"exp":2}`, string(body))
	assert.Equal(t, docstore.Version(2), v)
}

func TestStore_CompareAndSwap(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.CompareAndSwap(ctx, "hidden_quest_data/q", 0, []byte(`{}`)))
	assert.ErrorIs(t, s.CompareAndSwap(ctx, "hidden_quest_data/q", 0, []byte(`{}`)), docstore.ErrConflict)
	assert.ErrorIs(t, s.CompareAndSwap(ctx, "hidden_quest_data/q", 5, []byte(`{}`)), docstore.ErrConflict)
	require.NoError(t, s.CompareAndSwap(ctx, "hidden_quest_data/q", 1, []byte(`{"completed":true}`)))

	body, v, err := s.Get(ctx, "hidden_quest_data/q")
	require.NoError(t, err)
	assert.Equal(t, docstore.Version(2), v)
	assert.JSONEq(t, `{"completed":true}`, string(body))
}

func TestStore_ListAndDeletePrefix(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	require.NoError(t, s.Put(ctx, "mission_data/a", []byte(`1`)))
	require.NoError(t, s.Put(ctx, "mission_data/b", []byte(`2`)))
	require.NoError(t, s.Put(ctx, "missionXdata/c", []byte(`3`)))
	require.NoError(t, s.Put(ctx, "exp_data/a", []byte(`4`)))

	docs, err := s.List(ctx, docstore.Prefix("mission_data"))
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{"a": []byte(`1`), "b": []byte(`2`)}, docs)

	require.NoError(t, s.DeletePrefix(ctx, docstore.Prefix("mission_data")))

	docs, err = s.List(ctx, docstore.Prefix("mission_data"))
	require.NoError(t, err)
	assert.Empty(t, docs)

	_, _, err = s.Get(ctx, "missionXdata/c")
	assert.NoError(t, err)
	_, _, err = s.Get(ctx, "exp_data/a")
	assert.NoError(t, err)
}

func TestStore_BacksProgressionStore(t *testing.T) {
	ctx := context.Background()
	ps := docstore.NewProgressionStore(openTestStore(t), docstore.ProgressionConfig{})

	p := progression.NewUserProgress()
	p.AddXP(progression.MustDefaultCurve(), 250)
	require.NoError(t, ps.PutUser(ctx, "u1", p))

	got, err := ps.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 250, got.Exp)
	assert.Equal(t, 2, got.Level)

	def := quest.Definition{ID: "q", Keyword: "봄", Target: 2}
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for range 2 {
		_, err := ps.TransactQuest(ctx, "q", func(r *quest.Record) error {
			r.Advance(def, "u1", now)
			return nil
		})
		require.NoError(t, err)
	}

	rec, found, err := ps.GetQuest(ctx, "q")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Completed)
	assert.Equal(t, "u1", rec.Winner)
}
