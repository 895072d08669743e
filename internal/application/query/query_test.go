package query

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/community/communitytest"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/quest"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/persistence/docstore"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

var testNow = time.Date(2025, 7, 22, 13, 0, 0, 0, timeutil.KST)

func fixedNow() time.Time { return testNow }

func newStore() *docstore.ProgressionStore {
	return docstore.NewProgressionStore(docstore.NewMemoryStore(), docstore.ProgressionConfig{})
}

func seedUsers(t *testing.T, store *docstore.ProgressionStore, exps map[string]int) {
	t.Helper()
	for id, exp := range exps {
		require.NoError(t, store.PutUser(context.Background(), id, &progression.UserProgress{Exp: exp}))
	}
}

func directory(names map[string]string) *communitytest.Platform {
	p := communitytest.New()
	for id, name := range names {
		p.AllMembers = append(p.AllMembers, community.Member{ID: id, DisplayName: name})
	}
	return p
}

// fakeIndex is an in-memory progression.XPRanking.
type fakeIndex struct {
	top []progression.RankedUser
	err error
}

func (f *fakeIndex) TopXP(ctx context.Context, count int) ([]progression.RankedUser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.top[:min(count, len(f.top))], nil
}

func (f *fakeIndex) RankXP(ctx context.Context, userID string) (progression.RankedUser, bool, error) {
	if f.err != nil {
		return progression.RankedUser{}, false, f.err
	}
	for _, r := range f.top {
		if r.UserID == userID {
			return r, true, nil
		}
	}
	return progression.RankedUser{}, false, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Progress
// ─────────────────────────────────────────────────────────────────────────────

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	curve := progression.MustDefaultCurve()
	handler := NewGetProgressHandler(store, curve, fixedNow)

	user := &progression.UserProgress{Exp: 300, Level: 1, VoiceMinutes: 42}
	user.Touch(testNow.Add(-50 * time.Hour))
	require.NoError(t, store.PutUser(ctx, "u1", user))

	dto, err := handler.Handle(ctx, GetProgressQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, dto.Level, "level is recomputed from the curve")
	assert.Equal(t, 200, dto.LevelStart)
	assert.Equal(t, 100, dto.Current)
	assert.Equal(t, dto.LevelNext-dto.LevelStart, dto.Needed)
	assert.Equal(t, 42, dto.VoiceMinutes)
	require.NotNil(t, dto.LastActivity)
	assert.Equal(t, 2, dto.DaysInactive)
	assert.True(t, dto.HasRecord)
}

func TestGetProgress_UnknownMember(t *testing.T) {
	handler := NewGetProgressHandler(newStore(), progression.MustDefaultCurve(), fixedNow)

	dto, err := handler.Handle(context.Background(), GetProgressQuery{UserID: "ghost"})
	require.NoError(t, err)
	assert.False(t, dto.HasRecord)
	assert.Nil(t, dto.LastActivity)
	assert.Equal(t, progression.MinLevel, dto.Level)

	_, err = handler.Handle(context.Background(), GetProgressQuery{})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

// ─────────────────────────────────────────────────────────────────────────────
// XP leaderboard
// ─────────────────────────────────────────────────────────────────────────────

func TestXPLeaderboard_ScansStore(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUsers(t, store, map[string]int{"a": 500, "b": 1500, "c": 50, "d": 500})
	dir := directory(map[string]string{"a": "Autumn", "b": "Bloom"})
	handler := NewGetXPLeaderboardHandler(store, nil, dir, progression.MustDefaultCurve(), nil)

	res, err := handler.Handle(ctx, GetXPLeaderboardQuery{Limit: 3, UserID: "c"})
	require.NoError(t, err)
	assert.False(t, res.FromIndex)

	require.Len(t, res.Entries, 3)
	assert.Equal(t, []string{"b", "a", "d"}, []string{res.Entries[0].UserID, res.Entries[1].UserID, res.Entries[2].UserID})
	assert.Equal(t, "Bloom", res.Entries[0].DisplayName)
	assert.Equal(t, UnknownName, res.Entries[2].DisplayName)

	require.NotNil(t, res.Own)
	assert.Equal(t, 4, res.Own.Rank)
	assert.Equal(t, 50, res.Own.Exp)
	assert.Equal(t, 1, res.Own.Level)
}

func TestXPLeaderboard_UsesIndex(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	index := &fakeIndex{top: []progression.RankedUser{
		{UserID: "x", Exp: 500, Rank: 1},
		{UserID: "y", Exp: 10, Rank: 2},
	}}
	handler := NewGetXPLeaderboardHandler(store, index, directory(nil), progression.MustDefaultCurve(), nil)

	res, err := handler.Handle(ctx, GetXPLeaderboardQuery{UserID: "y"})
	require.NoError(t, err)
	assert.True(t, res.FromIndex)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, 3, res.Entries[0].Level)
	require.NotNil(t, res.Own)
	assert.Equal(t, 2, res.Own.Rank)
}

func TestXPLeaderboard_FallsBackWhenIndexFailsOrIsEmpty(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	seedUsers(t, store, map[string]int{"a": 10})

	for name, index := range map[string]*fakeIndex{
		"failing": {err: errors.New("connection refused")},
		"empty":   {},
	} {
		t.Run(name, func(t *testing.T) {
			handler := NewGetXPLeaderboardHandler(store, index, directory(nil), progression.MustDefaultCurve(), nil)
			res, err := handler.Handle(ctx, GetXPLeaderboardQuery{UserID: "a"})
			require.NoError(t, err)
			assert.False(t, res.FromIndex)
			require.Len(t, res.Entries, 1)
			require.NotNil(t, res.Own)
			assert.Equal(t, 1, res.Own.Rank)
		})
	}
}

func TestXPLeaderboard_Empty(t *testing.T) {
	handler := NewGetXPLeaderboardHandler(newStore(), nil, directory(nil), progression.MustDefaultCurve(), nil)

	res, err := handler.Handle(context.Background(), GetXPLeaderboardQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Empty(t, res.Entries)
	assert.Nil(t, res.Own)
}

// ─────────────────────────────────────────────────────────────────────────────
// Attendance leaderboard
// ─────────────────────────────────────────────────────────────────────────────

func TestAttendanceLeaderboard_OrdersByTotalThenStreak(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	for id, a := range map[string]progression.Attendance{
		"a": {TotalDays: 10, Streak: 1},
		"b": {TotalDays: 10, Streak: 4},
		"c": {TotalDays: 12, Streak: 2},
		"d": {TotalDays: 3, Streak: 3},
	} {
		a := a
		require.NoError(t, store.PutAttendance(ctx, id, &a))
	}
	handler := NewGetAttendanceLeaderboardHandler(store, directory(map[string]string{"c": "Cloud"}))

	res, err := handler.Handle(ctx, GetAttendanceLeaderboardQuery{Limit: 2, UserID: "d"})
	require.NoError(t, err)
	require.Len(t, res.Entries, 2)
	assert.Equal(t, "c", res.Entries[0].UserID)
	assert.Equal(t, "Cloud", res.Entries[0].DisplayName)
	assert.Equal(t, "b", res.Entries[1].UserID)
	require.NotNil(t, res.Own)
	assert.Equal(t, 4, res.Own.Rank)
}

// ─────────────────────────────────────────────────────────────────────────────
// Quest status
// ─────────────────────────────────────────────────────────────────────────────

func TestQuestStatus(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	today := timeutil.DateKey(testNow)

	mission := progression.NewDailyMission(today)
	mission.Text.Count = 12
	mission.RepeatVoice.Minutes = 47
	require.NoError(t, store.PutMission(ctx, "u1", mission))
	require.NoError(t, store.PutAttendance(ctx, "u1", &progression.Attendance{LastDate: today, TotalDays: 1, Streak: 1}))

	stale := progression.NewDailyMission("2025-07-21")
	stale.Text.Count = 30
	stale.Text.Completed = true
	require.NoError(t, store.PutMission(ctx, "u2", stale))

	handler := NewGetQuestStatusHandler(store, store, fixedNow)

	dto, err := handler.Handle(ctx, GetQuestStatusQuery{UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, &QuestStatusDTO{
		TextCount:      12,
		TextRequired:   30,
		VoiceMinutes:   47,
		VoiceRewards:   3,
		CheckedInToday: true,
	}, dto)

	dto, err = handler.Handle(ctx, GetQuestStatusQuery{UserID: "u2"})
	require.NoError(t, err)
	assert.Zero(t, dto.TextCount)
	assert.False(t, dto.TextCompleted)
	assert.False(t, dto.CheckedInToday)
}

// ─────────────────────────────────────────────────────────────────────────────
// Hidden quest inspect
// ─────────────────────────────────────────────────────────────────────────────

func TestInspectHiddenQuest(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	defs := []quest.Definition{{ID: "q1", Keyword: "moon", Target: 2}}
	handler := NewInspectHiddenQuestHandler(defs, store, directory(map[string]string{"a": "Autumn"}))

	_, err := handler.Handle(ctx, InspectHiddenQuestQuery{QuestID: "nope"})
	assert.ErrorIs(t, err, shared.ErrQuestNotFound)

	dto, err := handler.Handle(ctx, InspectHiddenQuestQuery{QuestID: "q1"})
	require.NoError(t, err)
	assert.False(t, dto.Started)
	assert.Empty(t, dto.Counts)

	for _, uid := range []string{"b", "a", "a"} {
		_, err := store.TransactQuest(ctx, "q1", func(r *quest.Record) error {
			r.Advance(defs[0], uid, testNow)
			return nil
		})
		require.NoError(t, err)
	}

	dto, err = handler.Handle(ctx, InspectHiddenQuestQuery{QuestID: "q1"})
	require.NoError(t, err)
	assert.True(t, dto.Started)
	assert.True(t, dto.Completed)
	assert.Equal(t, "a", dto.Winner)
	assert.Equal(t, "Autumn", dto.WinnerName)
	require.NotNil(t, dto.CompletedAt)
	assert.Equal(t, []QuestCountDTO{
		{UserID: "a", DisplayName: "Autumn", Count: 2},
		{UserID: "b", DisplayName: UnknownName, Count: 1},
	}, dto.Counts)

	_, err = store.TransactQuest(ctx, "q1", func(r *quest.Record) error {
		r.Reset()
		return nil
	})
	require.NoError(t, err)
	dto, err = handler.Handle(ctx, InspectHiddenQuestQuery{QuestID: "q1"})
	require.NoError(t, err)
	assert.False(t, dto.Started, "a reset record reads as not started")
	assert.Empty(t, dto.Counts)
}
