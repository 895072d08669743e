// Package jobs contains the periodic passes of the bot: voice presence
// rewards, the daily reset, the inactivity sweep and channel upkeep.
//
// Every job follows the same shape: a config struct with production
// defaults, Name/Description/Run for the scheduler, and the statistics of
// its last run. A failure on one member is logged and the pass continues.
package jobs

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// Job names, as registered with the scheduler.
const (
	NameVoiceTick          = "voice_tick"
	NameRepeatPresence     = "repeat_presence_mission"
	NameDailyReset         = "daily_reset"
	NameInactivitySweep    = "inactivity_sweep"
	NameSeasonChannels     = "season_channels"
	NameRebuildLeaderboard = "rebuild_leaderboard"
)

// Clock returns the current time.
type Clock func() time.Time

// RandInt returns a uniform integer in [lo, hi].
type RandInt func(lo, hi int) int

func defaultRandInt(lo, hi int) int {
	if hi <= lo {
		return lo
	}
	return lo + rand.IntN(hi-lo+1)
}

// MissionBackup receives the full mission map after a pass.
type MissionBackup interface {
	Save(missions map[string]*progression.DailyMission) error
}

// afkSet holds the channels that never earn anything.
type afkSet []string

func (a afkSet) skip(p *community.Presence, ch community.VoiceChannel) bool {
	if p.AFKChannelID != "" && ch.ID == p.AFKChannelID {
		return true
	}
	return slices.Contains(a, ch.ID)
}

func publish(ctx context.Context, publisher shared.EventPublisher, log *slog.Logger, event shared.Event) {
	if err := publisher.Publish(ctx, event); err != nil {
		log.Warn("publish failed",
			slog.String("event_type", string(event.EventType())),
			logger.UserID(event.AggregateID()),
			logger.Err(err),
		)
	}
}

func saveBackup(backup MissionBackup, missions map[string]*progression.DailyMission, log *slog.Logger) {
	if backup == nil {
		return
	}
	if err := backup.Save(missions); err != nil {
		log.Error("mission backup failed", logger.Err(err))
	}
}
