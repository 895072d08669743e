package quest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

var moonDef = Definition{ID: "moon", Keyword: "달빛", Target: 3}

func TestRecord_AdvanceCompletesOnce(t *testing.T) {
	now := time.Date(2025, 7, 22, 10, 0, 0, 0, timeutil.KST)
	r := NewRecord()

	assert.Equal(t, OutcomeCounted, r.Advance(moonDef, "u1", now))
	assert.Equal(t, OutcomeCounted, r.Advance(moonDef, "u1", now.Add(time.Minute)))
	assert.Equal(t, OutcomeCompleted, r.Advance(moonDef, "u1", now.Add(2*time.Minute)))

	assert.True(t, r.Completed)
	assert.Equal(t, "u1", r.Winner)

	// Terminal: further increments are no-ops and the winner is stable.
	assert.Equal(t, OutcomeNoop, r.Advance(moonDef, "u2", now.Add(3*time.Minute)))
	assert.Equal(t, OutcomeNoop, r.Advance(moonDef, "u2", now.Add(4*time.Minute)))
	assert.Equal(t, "u1", r.Winner)
	assert.Zero(t, r.Counts["u2"])
}

func TestRecord_StaleWindowRestartsAtOne(t *testing.T) {
	now := time.Date(2025, 7, 22, 10, 0, 0, 0, timeutil.KST)
	r := &Record{
		LastDate:   timeutil.DateKey(now),
		Counts:     map[string]int{"u1": 2},
		Timestamps: map[string]string{"u1": now.Add(-25 * time.Hour).Format(time.RFC3339)},
	}

	assert.Equal(t, OutcomeCounted, r.Advance(moonDef, "u1", now))
	assert.Equal(t, 1, r.Counts["u1"])
	assert.Equal(t, now.Format(time.RFC3339), r.Timestamps["u1"])
}

func TestRecord_DailyResetRunsFirst(t *testing.T) {
	now := time.Date(2025, 7, 22, 10, 0, 0, 0, timeutil.KST)
	r := &Record{
		LastDate:   "2025-07-21",
		Counts:     map[string]int{"u1": 2, "u2": 2},
		Timestamps: map[string]string{"u1": now.Add(-time.Hour).Format(time.RFC3339)},
	}

	assert.Equal(t, OutcomeCounted, r.Advance(moonDef, "u1", now))
	assert.Equal(t, map[string]int{"u1": 1}, r.Counts)
	assert.Equal(t, "2025-07-22", r.LastDate)
}

func TestRecord_ResetReopensQuest(t *testing.T) {
	now := time.Date(2025, 7, 22, 10, 0, 0, 0, timeutil.KST)
	r := NewRecord()
	assert.False(t, r.Started())

	r.Advance(Definition{ID: "sun", Keyword: "해", Target: 1}, "u1", now)
	require.True(t, r.Completed)
	assert.True(t, r.Started())

	r.Reset()
	assert.False(t, r.Started())
	assert.False(t, r.Completed)
	assert.Empty(t, r.Winner)
	assert.Empty(t, r.Counts)

	assert.Equal(t, OutcomeCompleted, r.Advance(Definition{ID: "sun", Keyword: "해", Target: 1}, "u2", now))
	assert.Equal(t, "u2", r.Winner)
}

func TestParseDefinitions(t *testing.T) {
	defs, err := ParseDefinitions([]string{"moon:달빛:3", " star:Star:10 ", ""})
	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, Definition{ID: "star", Keyword: "Star", Target: 10}, defs[1])
	assert.True(t, defs[1].Matches("a STARry night"))
	assert.False(t, defs[0].Matches("hello"))

	for _, bad := range []string{"moon", "moon:달빛:0", "moon:달빛:x", ":a:1"} {
		_, err := ParseDefinitions([]string{bad})
		assert.Error(t, err, bad)
	}
	_, err = ParseDefinitions([]string{"a:b:1", "a:c:2"})
	assert.Error(t, err)
}
