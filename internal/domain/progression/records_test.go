package progression

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

func TestUserProgress_AddXP(t *testing.T) {
	c := MustDefaultCurve()
	p := NewUserProgress()

	change := p.AddXP(c, 199)
	assert.False(t, change.Changed())

	change = p.AddXP(c, 1)
	assert.True(t, change.Increased())
	assert.Equal(t, LevelChange{Old: 1, New: 2}, change)

	change = p.AddXP(c, -1000)
	assert.Equal(t, 0, p.Exp, "experience is floored at zero")
	assert.Equal(t, LevelChange{Old: 2, New: 1}, change)
	assert.True(t, change.Changed())
	assert.False(t, change.Increased())
}

func TestUserProgress_Activity(t *testing.T) {
	now := time.Date(2025, 7, 22, 12, 0, 0, 0, timeutil.KST)
	p := NewUserProgress()

	assert.True(t, p.CooledDown(now, 5*time.Second))
	assert.False(t, p.InactiveSince(now, 30*24*time.Hour), "no record means not inactive")

	p.Touch(now)
	assert.False(t, p.CooledDown(now.Add(4*time.Second), 5*time.Second))
	assert.True(t, p.CooledDown(now.Add(5*time.Second), 5*time.Second))

	assert.False(t, p.InactiveSince(now.Add(29*24*time.Hour), 30*24*time.Hour))
	assert.True(t, p.InactiveSince(now.Add(31*24*time.Hour), 30*24*time.Hour))
}

func TestDailyMission_StaleDateIsEmpty(t *testing.T) {
	stale := &DailyMission{
		Date:        "2025-07-21",
		Text:        TextMission{Count: 30, Completed: true},
		RepeatVoice: RepeatVoiceMission{Minutes: 45},
	}

	fresh := stale.ForDate("2025-07-22")
	if diff := cmp.Diff(NewDailyMission("2025-07-22"), fresh); diff != "" {
		t.Fatalf("stale mission leaked (-want +got):\n%s", diff)
	}

	// Resetting again on the same day changes nothing.
	assert.Same(t, fresh, fresh.ForDate("2025-07-22"))

	var missing *DailyMission
	assert.Equal(t, "2025-07-22", missing.ForDate("2025-07-22").Date)
}

func TestDailyMission_RecordTextCompletesOnce(t *testing.T) {
	m := NewDailyMission("2025-07-22")

	completions := 0
	for i := 0; i < TextMissionRequired+10; i++ {
		if m.RecordText(TextMissionRequired) {
			completions++
		}
	}

	assert.Equal(t, 1, completions)
	assert.True(t, m.Text.Completed)
	assert.Equal(t, TextMissionRequired, m.Text.Count)
}

func TestDailyMission_AddVoiceMinute(t *testing.T) {
	m := NewDailyMission("2025-07-22")

	rewards := 0
	for i := 0; i < 31; i++ {
		if m.AddVoiceMinute(RepeatVoiceMinutes) {
			rewards++
		}
	}

	assert.Equal(t, 2, rewards)
	assert.Equal(t, 2, m.VoiceRewards(RepeatVoiceMinutes))
}

func TestAttendance_CheckIn(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 7, d, 9, 0, 0, 0, timeutil.KST) }
	a := NewAttendance()

	res, err := a.CheckIn(day(20))
	require.NoError(t, err)
	assert.True(t, res.First)
	assert.Equal(t, 1, res.Streak)
	assert.Equal(t, 100, res.Gain)

	_, err = a.CheckIn(day(20).Add(3 * time.Hour))
	assert.ErrorIs(t, err, ErrAlreadyCheckedIn)

	res, err = a.CheckIn(day(21))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak)
	assert.Equal(t, 110, res.Gain)

	// Skipping a day restarts the streak.
	res, err = a.CheckIn(day(23))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Streak)
	assert.True(t, res.StreakBroken)
	assert.Equal(t, 3, res.TotalDays)

	assert.Equal(t, 3, a.Monthly["2025-7"])
	assert.Equal(t, 2, a.Weekly["2025-W30"])
	assert.Equal(t, 1, a.Weekly["2025-W29"])
}

func TestAttendanceXP_Capped(t *testing.T) {
	assert.Equal(t, 100, AttendanceXP(1))
	assert.Equal(t, 200, AttendanceXP(11))
	assert.Equal(t, 200, AttendanceXP(40))
}

func TestTierTable_RoleFor(t *testing.T) {
	tiers, err := NewTierTable([]string{"r1", "r2", "r3", "r4", "r5"})
	require.NoError(t, err)

	cases := map[int]string{1: "r1", 24: "r1", 25: "r2", 49: "r2", 50: "r3", 74: "r3", 75: "r4", 98: "r4", 99: "r5"}
	for level, want := range cases {
		assert.Equal(t, want, tiers.RoleFor(level), "level %d", level)
	}
	assert.True(t, tiers.IsTierRole("r3"))
	assert.False(t, tiers.IsTierRole("other"))

	_, err = NewTierTable([]string{"r1"})
	assert.Error(t, err)
}

func TestNickname(t *testing.T) {
	assert.Equal(t, "하늘 [ Lv . 12 ]", Nickname("하늘 [ Lv . 11 ]", 12))
	assert.Equal(t, "sky [ Lv . 3 ]", Nickname("sky", 3))

	long := Nickname("abcdefghijklmnopqrstuvwxyz", 99)
	assert.Len(t, []rune(long), MaxNicknameLength)
	assert.Equal(t, "abcdefghijklmnopqrstuvwxyz [ Lv ", long)
}
