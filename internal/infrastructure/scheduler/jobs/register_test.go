package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seasons-hub/seasons-bot/internal/domain/community/communitytest"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

func TestRegister(t *testing.T) {
	store := newStore()
	platform := communitytest.New()
	curve := progression.MustDefaultCurve()

	cfg := scheduler.DefaultSchedulerConfig()
	cfg.Now = fixedNow
	cfg.Timezone = timeutil.KST
	s := scheduler.NewScheduler(cfg)

	set := Set{
		VoiceTick:       NewVoiceTickJob(platform, store, curve, nil, VoiceTickConfig{}, nil),
		DailyReset:      NewDailyResetJob(store, nil, nil),
		SeasonChannels:  NewSeasonChannelsJob(platform, nil, nil),
		InactivitySweep: NewInactivitySweepJob(platform, store, nil, InactivitySweepConfig{}, nil),
	}
	enabled := func(name string) bool { return name != NameVoiceTick }
	require.NoError(t, Register(s, set, timeutil.KST, enabled))

	jobs := s.ListJobs()
	require.Len(t, jobs, 4)

	byName := map[string]scheduler.JobInfo{}
	for _, j := range jobs {
		byName[j.Name] = j
	}

	assert.False(t, byName[NameVoiceTick].Enabled)
	assert.Equal(t, "@every 1m0s", byName[NameVoiceTick].Schedule)

	reset := byName[NameDailyReset]
	assert.True(t, reset.Enabled)
	assert.Equal(t, "0 0 * * * (Asia/Seoul)", reset.Schedule)
	assert.Equal(t, timeutil.StartOfDay(testNow).AddDate(0, 0, 1), reset.NextRun.In(timeutil.KST))

	seasons := byName[NameSeasonChannels]
	assert.True(t, seasons.Enabled)
	assert.Equal(t, testNow, seasons.NextRun)

	sweep := byName[NameInactivitySweep]
	assert.True(t, sweep.Enabled)
	assert.Equal(t, "@every 24h0m0s", sweep.Schedule)
	assert.Equal(t, testNow, sweep.NextRun, "the first sweep runs at start, not a day later")

	assert.ErrorIs(t, Register(s, set, timeutil.KST, nil), scheduler.ErrJobAlreadyExists)
}
