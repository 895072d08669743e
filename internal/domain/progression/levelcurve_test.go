package progression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
)

func TestBuildDeltas_DefaultStagesStrictlyIncreasing(t *testing.T) {
	deltas := BuildDeltas(DefaultStages())

	require.Len(t, deltas, MaxLevel)
	assert.Equal(t, 200, deltas[0])
	for i := 1; i < len(deltas); i++ {
		assert.Greater(t, deltas[i], deltas[i-1], "delta %d", i)
	}
}

func TestNewCurve_ThresholdTable(t *testing.T) {
	c := MustDefaultCurve()
	th := c.Thresholds()

	require.Len(t, th, MaxLevel+1)
	assert.Equal(t, 0, th[0])
	for i := 1; i < len(th); i++ {
		assert.Greater(t, th[i], th[i-1])
	}
}

func TestBuildDeltas_MonotonicGuard(t *testing.T) {
	// A ratio this close to 1 rounds back to the same delta and must be bumped.
	deltas := BuildDeltas([]Stage{{StartLevel: 1, EndLevel: 4, StartDelta: 10, Ratio: 1.01}})

	assert.Equal(t, []int{10, 11, 12, 13}, deltas[:4])
	assert.Len(t, deltas, MaxLevel)
	assert.Equal(t, 13, deltas[MaxLevel-1], "padding repeats the last delta")
}

func TestBuildDeltas_InheritedStart(t *testing.T) {
	deltas := BuildDeltas([]Stage{
		{StartLevel: 1, EndLevel: 2, StartDelta: 100, Ratio: 1.5},
		{StartLevel: 3, EndLevel: 99, Ratio: 1.0, Jump: 2.0},
	})

	assert.Equal(t, 100, deltas[0])
	assert.Equal(t, 150, deltas[1])
	assert.Equal(t, 300, deltas[2])
	assert.Equal(t, 301, deltas[3])
}

func TestLevelOf_Boundaries(t *testing.T) {
	c := MustDefaultCurve()

	for level := MinLevel; level <= MaxLevel; level++ {
		assert.Equal(t, level, c.LevelOf(c.Threshold(level-1)), "entry of level %d", level)
		assert.Equal(t, level, c.LevelOf(c.Threshold(level)-1), "end of level %d", level)
	}
	for _, k := range []int{0, 1, 1_000_000} {
		assert.Equal(t, MaxLevel, c.LevelOf(c.Threshold(MaxLevel)+k))
	}
	assert.Equal(t, MinLevel, c.LevelOf(-5))
}

func TestLevelOf_IllustrativeTable(t *testing.T) {
	c, err := NewCurve([]Stage{{StartLevel: 1, EndLevel: 99, StartDelta: 240, Ratio: 1.0375}})
	require.NoError(t, err)

	assert.Equal(t, []int{0, 240, 489}, c.Thresholds()[:3])
	assert.Equal(t, 1, c.LevelOf(0))
	assert.Equal(t, 1, c.LevelOf(239))
	assert.Equal(t, 2, c.LevelOf(240))
	assert.Equal(t, 3, c.LevelOf(489))
}

func TestRange(t *testing.T) {
	c := MustDefaultCurve()

	start, next := c.Range(1)
	assert.Equal(t, 0, start)
	assert.Equal(t, 200, next)

	start, next = c.Range(MaxLevel)
	assert.Equal(t, c.Threshold(MaxLevel-1), start)
	assert.Equal(t, c.Threshold(MaxLevel), next)
}

func TestValidateStages(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{"empty", nil},
		{"no explicit first delta", []Stage{{StartLevel: 1, EndLevel: 99, Ratio: 1.1, Jump: 1}}},
		{"gap", []Stage{
			{StartLevel: 1, EndLevel: 5, StartDelta: 10, Ratio: 1.1},
			{StartLevel: 7, EndLevel: 99, Ratio: 1.1, Jump: 1},
		}},
		{"reversed", []Stage{{StartLevel: 1, EndLevel: 0, StartDelta: 10, Ratio: 1.1}}},
		{"zero ratio", []Stage{{StartLevel: 1, EndLevel: 99, StartDelta: 10}}},
		{"inherited without jump", []Stage{
			{StartLevel: 1, EndLevel: 5, StartDelta: 10, Ratio: 1.1},
			{StartLevel: 6, EndLevel: 99, Ratio: 1.1},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewCurve(tt.stages)
			assert.ErrorIs(t, err, shared.ErrConfiguration)
		})
	}
}
