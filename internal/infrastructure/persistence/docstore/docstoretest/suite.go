// Package docstoretest holds the behaviour every docstore.Store backend must
// share. Backend packages call Run from their own tests.
package docstoretest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/pkg/retry"
)

// Run exercises open's store. Every case writes under its own random root so
// backends that share state between tests stay isolated.
func Run(t *testing.T, open func(t *testing.T) docstore.Store) {
	t.Run("GetPutVersions", func(t *testing.T) { testGetPutVersions(t, open(t)) })
	t.Run("CompareAndSwap", func(t *testing.T) { testCompareAndSwap(t, open(t)) })
	t.Run("ListAndDeletePrefix", func(t *testing.T) { testListAndDeletePrefix(t, open(t)) })
	t.Run("QuestResetRejectsStaleCommit", func(t *testing.T) { testQuestResetRejectsStaleCommit(t, open(t)) })
	t.Run("QuestSingleWinner", func(t *testing.T) { testQuestSingleWinner(t, open(t)) })
}

func root() string {
	return "t" + uuid.NewString()
}

func testGetPutVersions(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Join(root(), "1")

	_, _, err := s.Get(ctx, path)
	assert.ErrorIs(t, err, docstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, path, []byte(`{"exp":1}`)))
	require.NoError(t, s.Put(ctx, path, []byte(`{"exp":2}`)))

	body, v, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"exp":2}`, string(body))
	assert.Equal(t, docstore.Version(2), v)
}

func testCompareAndSwap(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	path := docstore.Join(root(), "q")

	require.NoError(t, s.CompareAndSwap(ctx, path, 0, []byte(`{}`)))
	assert.ErrorIs(t, s.CompareAndSwap(ctx, path, 0, []byte(`{}`)), docstore.ErrConflict)
	assert.ErrorIs(t, s.CompareAndSwap(ctx, path, 5, []byte(`{}`)), docstore.ErrConflict)
	require.NoError(t, s.CompareAndSwap(ctx, path, 1, []byte(`{"completed":true}`)))
	assert.ErrorIs(t, s.CompareAndSwap(ctx, path, 1, []byte(`{"completed":false}`)), docstore.ErrConflict)

	body, v, err := s.Get(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, docstore.Version(2), v)
	assert.JSONEq(t, `{"completed":true}`, string(body))
}

func testListAndDeletePrefix(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	r := root()
	other := root()

	require.NoError(t, s.Put(ctx, docstore.Join(r, "a"), []byte(`{"n":1}`)))
	require.NoError(t, s.Put(ctx, docstore.Join(r, "b"), []byte(`{"n":2}`)))
	require.NoError(t, s.Put(ctx, docstore.Join(other, "a"), []byte(`{"n":3}`)))

	docs, err := s.List(ctx, docstore.Prefix(r))
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.JSONEq(t, `{"n":1}`, string(docs["a"]))
	assert.JSONEq(t, `{"n":2}`, string(docs["b"]))

	require.NoError(t, s.DeletePrefix(ctx, docstore.Prefix(r)))
	docs, err = s.List(ctx, docstore.Prefix(r))
	require.NoError(t, err)
	assert.Empty(t, docs)

	docs, err = s.List(ctx, docstore.Prefix(other))
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func testQuestResetRejectsStaleCommit(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	ps := docstore.NewProgressionStore(s, docstore.ProgressionConfig{})
	id := root()
	def := quest.Definition{ID: id, Keyword: "sun", Target: 1}
	now := time.Date(2025, 7, 22, 12, 0, 0, 0, time.UTC)
	path := docstore.Join(docstore.QuestsCollection, id)

	_, err := ps.TransactQuest(ctx, id, func(r *quest.Record) error {
		r.Advance(def, "old", now)
		return nil
	})
	require.NoError(t, err)

	staleBody, staleVersion, err := s.Get(ctx, path)
	require.NoError(t, err)

	_, err = ps.TransactQuest(ctx, id, func(r *quest.Record) error {
		r.Reset()
		return nil
	})
	require.NoError(t, err)
	_, err = ps.TransactQuest(ctx, id, func(r *quest.Record) error {
		r.Advance(def, "new", now)
		return nil
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.CompareAndSwap(ctx, path, staleVersion, staleBody), docstore.ErrConflict)

	rec, found, err := ps.GetQuest(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, rec.Completed)
	assert.Equal(t, "new", rec.Winner)
}

func testQuestSingleWinner(t *testing.T, s docstore.Store) {
	ctx := context.Background()
	ps := docstore.NewProgressionStore(s, docstore.ProgressionConfig{
		Retrier: retry.New(
			retry.WithMaxAttempts(50),
			retry.WithInitialDelay(time.Millisecond),
			retry.WithMaxDelay(20*time.Millisecond),
			retry.WithJitter(0.5),
		),
	})
	id := root()
	def := quest.Definition{ID: id, Keyword: "moon", Target: 1}
	now := time.Date(2025, 7, 22, 12, 0, 0, 0, time.UTC)

	const players = 5
	winners := make([]string, players)
	var g errgroup.Group
	for i := 0; i < players; i++ {
		g.Go(func() error {
			rec, err := ps.TransactQuest(ctx, id, func(r *quest.Record) error {
				r.Advance(def, fmt.Sprintf("u%d", i), now)
				return nil
			})
			if err != nil {
				return err
			}
			winners[i] = rec.Winner
			return nil
		})
	}
	require.NoError(t, g.Wait())

	rec, found, err := ps.GetQuest(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	for _, w := range winners {
		assert.Equal(t, rec.Winner, w)
	}
}
