package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPEAT PRESENCE MISSION JOB
// Members sitting in a busy voice channel earn a reward every quarter hour.
// ══════════════════════════════════════════════════════════════════════════════

// RepeatPresenceJob advances the repeat-voice daily mission.
type RepeatPresenceJob struct {
	presence  community.PresenceReader
	users     progression.UserRepository
	missions  progression.MissionRepository
	curve     *progression.Curve
	backup    MissionBackup
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    RepeatPresenceConfig

	lastRunStats atomic.Value // *RepeatPresenceStats
}

// RepeatPresenceConfig contains configuration for the job.
type RepeatPresenceConfig struct {
	// MinPeople is the number of humans a channel needs to count.
	MinPeople int

	// Every and Reward: Reward XP each time the day's minutes reach a
	// multiple of Every.
	Every  int
	Reward int

	AFKChannelIDs []string

	Now Clock
}

// DefaultRepeatPresenceConfig returns the production rules.
func DefaultRepeatPresenceConfig() RepeatPresenceConfig {
	return RepeatPresenceConfig{
		MinPeople: 5,
		Every:     progression.RepeatVoiceMinutes,
		Reward:    progression.RepeatVoiceReward,
	}
}

// RepeatPresenceStats describes the last pass.
type RepeatPresenceStats struct {
	StartedAt       time.Time
	Duration        time.Duration
	BusyChannels    int
	SkippedChannels int
	Counted         int
	Rewarded        int
	Errors          int
}

// NewRepeatPresenceJob creates the job. backup may be nil.
func NewRepeatPresenceJob(
	presence community.PresenceReader,
	users progression.UserRepository,
	missions progression.MissionRepository,
	curve *progression.Curve,
	backup MissionBackup,
	publisher shared.EventPublisher,
	config RepeatPresenceConfig,
	log *slog.Logger,
) *RepeatPresenceJob {
	if config.Now == nil {
		config.Now = timeutil.Now
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &RepeatPresenceJob{
		presence:  presence,
		users:     users,
		missions:  missions,
		curve:     curve,
		backup:    backup,
		publisher: publisher,
		logger:    log.With(logger.Job(NameRepeatPresence)),
		config:    config,
	}
}

// Name returns the job name.
func (j *RepeatPresenceJob) Name() string { return NameRepeatPresence }

// Description returns a human-readable description.
func (j *RepeatPresenceJob) Description() string {
	return "Counts minutes in busy voice channels toward the repeat-voice mission"
}

// Run executes one pass.
func (j *RepeatPresenceJob) Run(ctx context.Context) error {
	stats := &RepeatPresenceStats{StartedAt: j.config.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	presence, err := j.presence.Presence(ctx)
	if err != nil {
		return fmt.Errorf("read presence: %w", err)
	}
	today := timeutil.DateKey(stats.StartedAt)

	afk := afkSet(j.config.AFKChannelIDs)
	for _, ch := range presence.VoiceChannels {
		if afk.skip(presence, ch) {
			j.logger.Debug("skip afk channel", logger.ChannelID(ch.ID))
			stats.SkippedChannels++
			continue
		}
		humans := ch.Humans()
		if len(humans) < j.config.MinPeople {
			j.logger.Debug("skip channel below quorum",
				logger.ChannelID(ch.ID),
				slog.Int("count", len(humans)),
				slog.Int("required", j.config.MinPeople),
			)
			stats.SkippedChannels++
			continue
		}
		stats.BusyChannels++

		for _, member := range humans {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			rewarded, err := j.count(ctx, member, today)
			if err != nil {
				stats.Errors++
				j.logger.Warn("repeat presence failed", logger.UserID(member.ID), logger.Err(err))
				continue
			}
			stats.Counted++
			if rewarded {
				stats.Rewarded++
			}
		}
	}

	if stats.BusyChannels > 0 {
		j.writeBackup(ctx)
	}
	return nil
}

func (j *RepeatPresenceJob) count(ctx context.Context, member community.Member, today string) (bool, error) {
	mission, err := j.missions.GetMission(ctx, member.ID, today)
	if err != nil {
		return false, fmt.Errorf("load mission: %w", err)
	}
	mission = mission.ForDate(today)
	reached := mission.AddVoiceMinute(j.config.Every)

	if err := j.missions.PutMission(ctx, member.ID, mission); err != nil {
		return false, fmt.Errorf("save mission: %w", err)
	}
	if !reached {
		return false, nil
	}

	now := j.config.Now()
	user, err := j.users.GetUser(ctx, member.ID)
	if err != nil {
		return false, fmt.Errorf("load progress: %w", err)
	}
	change := user.AddXP(j.curve, j.config.Reward)
	user.Touch(now)
	if err := j.users.PutUser(ctx, member.ID, user); err != nil {
		return false, fmt.Errorf("save progress: %w", err)
	}

	j.logger.Info("repeat voice mission completed", logger.UserID(member.ID), logger.XP(j.config.Reward))
	publish(ctx, j.publisher, j.logger, progression.NewMissionCompletedEvent(member.ID, member.DisplayName, progression.MissionRepeatVoice, j.config.Reward, "", now))
	if change.Changed() {
		publish(ctx, j.publisher, j.logger, progression.NewLevelChangedEvent(member.ID, member.DisplayName, member.RoleIDs, change, user.Exp, now))
	}
	return true, nil
}

func (j *RepeatPresenceJob) writeBackup(ctx context.Context) {
	if j.backup == nil {
		return
	}
	missions, err := j.missions.GetAllMissions(ctx)
	if err != nil {
		j.logger.Error("mission backup skipped", logger.Err(err))
		return
	}
	saveBackup(j.backup, missions, j.logger)
}

// LastRunStats returns the statistics of the last pass, or nil.
func (j *RepeatPresenceJob) LastRunStats() *RepeatPresenceStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*RepeatPresenceStats)
	}
	return nil
}
