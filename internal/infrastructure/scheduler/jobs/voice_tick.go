package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/community"
	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/internal/domain/shared"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
	"github.com/seasons-hub/seasons-bot/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VOICE TICK JOB
// ══════════════════════════════════════════════════════════════════════════════

// VoiceTickJob pays every connected member for one minute of voice presence.
type VoiceTickJob struct {
	presence  community.PresenceReader
	users     progression.UserRepository
	curve     *progression.Curve
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    VoiceTickConfig

	lastRunStats atomic.Value // *VoiceTickStats
}

// VoiceTickConfig contains configuration for the voice tick job.
type VoiceTickConfig struct {
	// MinGain and MaxGain bound the uniform per-minute XP.
	MinGain int
	MaxGain int

	// ReducedCategoryIDs pay ReducedFactor of the gain and no voice minute.
	ReducedCategoryIDs []string
	ReducedFactor      float64

	// AFKChannelIDs never pay, in addition to the guild's AFK channel.
	AFKChannelIDs []string

	Now  Clock
	Rand RandInt
}

// DefaultVoiceTickConfig returns the production rules.
func DefaultVoiceTickConfig() VoiceTickConfig {
	return VoiceTickConfig{
		MinGain:       10,
		MaxGain:       50,
		ReducedFactor: 0.2,
	}
}

// VoiceTickStats describes the last pass.
type VoiceTickStats struct {
	StartedAt  time.Time
	Duration   time.Duration
	Channels   int
	Paid       int
	XPGranted  int
	LevelMoves int
	Errors     int
}

// NewVoiceTickJob creates the job.
func NewVoiceTickJob(
	presence community.PresenceReader,
	users progression.UserRepository,
	curve *progression.Curve,
	publisher shared.EventPublisher,
	config VoiceTickConfig,
	log *slog.Logger,
) *VoiceTickJob {
	if config.Now == nil {
		config.Now = timeutil.Now
	}
	if config.Rand == nil {
		config.Rand = defaultRandInt
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &VoiceTickJob{
		presence:  presence,
		users:     users,
		curve:     curve,
		publisher: publisher,
		logger:    log.With(logger.Job(NameVoiceTick)),
		config:    config,
	}
}

// Name returns the job name.
func (j *VoiceTickJob) Name() string { return NameVoiceTick }

// Description returns a human-readable description.
func (j *VoiceTickJob) Description() string {
	return "Grants per-minute XP to members connected to voice channels"
}

// Run executes one pass.
func (j *VoiceTickJob) Run(ctx context.Context) error {
	stats := &VoiceTickStats{StartedAt: j.config.Now()}
	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		j.lastRunStats.Store(stats)
	}()

	presence, err := j.presence.Presence(ctx)
	if err != nil {
		return fmt.Errorf("read presence: %w", err)
	}

	afk := afkSet(j.config.AFKChannelIDs)
	for _, ch := range presence.VoiceChannels {
		if afk.skip(presence, ch) {
			continue
		}
		stats.Channels++
		reduced := ch.CategoryID != "" && slices.Contains(j.config.ReducedCategoryIDs, ch.CategoryID)

		for _, member := range ch.Humans() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			gain, moved, err := j.pay(ctx, member, reduced)
			if err != nil {
				stats.Errors++
				j.logger.Warn("voice reward failed", logger.UserID(member.ID), logger.ChannelID(ch.ID), logger.Err(err))
				continue
			}
			stats.Paid++
			stats.XPGranted += gain
			if moved {
				stats.LevelMoves++
			}
		}
	}

	j.logger.Debug("voice tick completed",
		slog.Int("channels", stats.Channels),
		slog.Int("paid", stats.Paid),
		slog.Int("errors", stats.Errors),
	)
	return nil
}

func (j *VoiceTickJob) pay(ctx context.Context, member community.Member, reduced bool) (int, bool, error) {
	now := j.config.Now()

	user, err := j.users.GetUser(ctx, member.ID)
	if err != nil {
		return 0, false, fmt.Errorf("load progress: %w", err)
	}

	gain := j.config.Rand(j.config.MinGain, j.config.MaxGain)
	if reduced {
		gain = max(1, int(float64(gain)*j.config.ReducedFactor))
	} else {
		user.VoiceMinutes++
	}
	change := user.AddXP(j.curve, gain)
	user.Touch(now)

	if err := j.users.PutUser(ctx, member.ID, user); err != nil {
		return 0, false, fmt.Errorf("save progress: %w", err)
	}

	if change.Changed() {
		publish(ctx, j.publisher, j.logger, progression.NewLevelChangedEvent(member.ID, member.DisplayName, member.RoleIDs, change, user.Exp, now))
	}
	return gain, change.Changed(), nil
}

// LastRunStats returns the statistics of the last pass, or nil.
func (j *VoiceTickJob) LastRunStats() *VoiceTickStats {
	if v := j.lastRunStats.Load(); v != nil {
		return v.(*VoiceTickStats)
	}
	return nil
}
