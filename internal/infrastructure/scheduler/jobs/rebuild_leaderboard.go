package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD JOB
// ══════════════════════════════════════════════════════════════════════════════

// RankingIndex is a rebuildable experience ranking.
type RankingIndex interface {
	Rebuild(ctx context.Context, totals map[string]int) error
}

// RebuildLeaderboardJob reloads the ranking index from the store. Writes keep
// the index warm one member at a time; this pass repairs whatever a failed
// index write or a restarted cache lost.
type RebuildLeaderboardJob struct {
	users  progression.UserRepository
	index  RankingIndex
	logger *slog.Logger
	config RebuildLeaderboardConfig

	lastRebuildStats atomic.Value // *RebuildStats
}

// RebuildLeaderboardConfig contains configuration for the rebuild job.
type RebuildLeaderboardConfig struct {
	// Timeout is the maximum duration for the rebuild.
	Timeout time.Duration
}

// DefaultRebuildLeaderboardConfig returns sensible defaults.
func DefaultRebuildLeaderboardConfig() RebuildLeaderboardConfig {
	return RebuildLeaderboardConfig{Timeout: 2 * time.Minute}
}

// RebuildStats contains statistics from a rebuild run.
type RebuildStats struct {
	StartedAt time.Time
	Duration  time.Duration
	Members   int
	TotalXP   int
}

// NewRebuildLeaderboardJob creates the job.
func NewRebuildLeaderboardJob(users progression.UserRepository, index RankingIndex, config RebuildLeaderboardConfig, log *slog.Logger) *RebuildLeaderboardJob {
	if log == nil {
		log = slog.Default()
	}
	return &RebuildLeaderboardJob{
		users:  users,
		index:  index,
		logger: log.With(logger.Job(NameRebuildLeaderboard)),
		config: config,
	}
}

// Name returns the job name.
func (j *RebuildLeaderboardJob) Name() string { return NameRebuildLeaderboard }

// Description returns a human-readable description.
func (j *RebuildLeaderboardJob) Description() string {
	return "Reloads the experience ranking cache from the store"
}

// Run executes the rebuild.
func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	stats := &RebuildStats{StartedAt: time.Now()}

	if j.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.config.Timeout)
		defer cancel()
	}

	users, err := j.users.GetAllUsers(ctx)
	if err != nil {
		return fmt.Errorf("failed to load users: %w", err)
	}

	totals := make(map[string]int, len(users))
	for id, u := range users {
		totals[id] = u.Exp
		stats.TotalXP += u.Exp
	}
	stats.Members = len(totals)

	if err := j.index.Rebuild(ctx, totals); err != nil {
		return fmt.Errorf("failed to rebuild ranking: %w", err)
	}

	stats.Duration = time.Since(stats.StartedAt)
	j.lastRebuildStats.Store(stats)
	j.logger.Info("ranking rebuilt", slog.Int("members", stats.Members), logger.Latency(stats.Duration))
	return nil
}

// LastRebuildStats returns the statistics of the last rebuild, or nil.
func (j *RebuildLeaderboardJob) LastRebuildStats() *RebuildStats {
	if v := j.lastRebuildStats.Load(); v != nil {
		return v.(*RebuildStats)
	}
	return nil
}
