package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/seasons-hub/seasons-bot/internal/domain/progression"
	"github.com/seasons-hub/seasons-bot/pkg/logger"
)

// DailyResetJob clears every daily mission at local midnight.
type DailyResetJob struct {
	missions progression.MissionRepository
	backup   MissionBackup
	logger   *slog.Logger
}

// NewDailyResetJob creates the job. backup may be nil.
func NewDailyResetJob(missions progression.MissionRepository, backup MissionBackup, log *slog.Logger) *DailyResetJob {
	if log == nil {
		log = slog.Default()
	}
	return &DailyResetJob{
		missions: missions,
		backup:   backup,
		logger:   log.With(logger.Job(NameDailyReset)),
	}
}

// Name returns the job name.
func (j *DailyResetJob) Name() string { return NameDailyReset }

// Description returns a human-readable description.
func (j *DailyResetJob) Description() string {
	return "Clears all daily missions at local midnight"
}

// Run empties the backup and the store. Running it twice is harmless.
func (j *DailyResetJob) Run(ctx context.Context) error {
	saveBackup(j.backup, map[string]*progression.DailyMission{}, j.logger)

	if err := j.missions.ClearMissions(ctx); err != nil {
		return fmt.Errorf("clear missions: %w", err)
	}
	j.logger.Info("daily missions reset")
	return nil
}
