package backup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
)

func TestMissionFile_MissingIsEmpty(t *testing.T) {
	f := NewMissionFile(filepath.Join(t.TempDir(), "nope", "mission.json"))

	missions, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, missions)
}

func TestMissionFile_SaveThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "mission.json")
	f := NewMissionFile(path)

	m := progression.NewDailyMission("2025-07-20")
	m.Text.Count = 30
	m.Text.Completed = true
	m.RepeatVoice.Minutes = 45
	want := map[string]*progression.DailyMission{"u1": m}

	require.NoError(t, f.Save(want))

	got, err := f.Load()
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("backup mismatch (-want +got):\n%s", diff)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestMissionFile_SaveEmptyAfterReset(t *testing.T) {
	f := NewMissionFile(filepath.Join(t.TempDir(), "mission.json"))
	require.NoError(t, f.Save(map[string]*progression.DailyMission{"u1": progression.NewDailyMission("2025-07-20")}))
	require.NoError(t, f.Save(nil))

	got, err := f.Load()
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewMissionFile_DefaultPath(t *testing.T) {
	assert.Equal(t, DefaultPath, NewMissionFile("").Path())
}
