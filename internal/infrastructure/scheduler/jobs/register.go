package jobs

import (
	"fmt"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/infrastructure/scheduler"
)

// Set holds the constructed jobs. Nil jobs are not registered.
type Set struct {
	VoiceTick          *VoiceTickJob
	RepeatPresence     *RepeatPresenceJob
	DailyReset         *DailyResetJob
	InactivitySweep    *InactivitySweepJob
	SeasonChannels     *SeasonChannelsJob
	RebuildLeaderboard *RebuildLeaderboardJob
}

// Production schedules.
const (
	VoiceTickInterval          = time.Minute
	RepeatPresenceInterval     = time.Minute
	InactivitySweepInterval    = 24 * time.Hour
	RebuildLeaderboardInterval = time.Hour
)

// Register adds every job of set to s. Daily reset and season channels run on
// wall-clock cron expressions in loc; season channels, the inactivity sweep
// and the ranking rebuild also run right after Start. Jobs for which enabled returns false are
// registered disabled and stay reachable through RunNow.
func Register(s *scheduler.Scheduler, set Set, loc *time.Location, enabled func(jobName string) bool) error {
	if enabled == nil {
		enabled = func(string) bool { return true }
	}

	midnight, err := scheduler.NewCronSchedule(scheduler.EveryDayMidnight, loc)
	if err != nil {
		return err
	}
	tenMinutes, err := scheduler.NewCronSchedule(scheduler.EveryTenMinutes, loc)
	if err != nil {
		return err
	}

	type entry struct {
		job        scheduler.Job
		schedule   scheduler.Schedule
		runOnStart bool
	}
	var entries []entry
	if set.VoiceTick != nil {
		entries = append(entries, entry{set.VoiceTick, scheduler.Every(VoiceTickInterval), false})
	}
	if set.RepeatPresence != nil {
		entries = append(entries, entry{set.RepeatPresence, scheduler.Every(RepeatPresenceInterval), false})
	}
	if set.DailyReset != nil {
		entries = append(entries, entry{set.DailyReset, midnight, false})
	}
	if set.InactivitySweep != nil {
		entries = append(entries, entry{set.InactivitySweep, scheduler.Every(InactivitySweepInterval), true})
	}
	if set.SeasonChannels != nil {
		entries = append(entries, entry{set.SeasonChannels, tenMinutes, true})
	}
	if set.RebuildLeaderboard != nil {
		entries = append(entries, entry{set.RebuildLeaderboard, scheduler.Every(RebuildLeaderboardInterval), true})
	}

	for _, e := range entries {
		var opts []scheduler.RegisterOption
		if e.runOnStart {
			opts = append(opts, scheduler.RunOnStart())
		}
		if !enabled(e.job.Name()) {
			opts = append(opts, scheduler.Disabled())
		}
		if err := s.Register(e.job, e.schedule, opts...); err != nil {
			return fmt.Errorf("register %s: %w", e.job.Name(), err)
		}
	}
	return nil
}
